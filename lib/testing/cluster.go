package testing

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/gorilla/mux"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// --------------------------------------------------------------------------
// Node States
// --------------------------------------------------------------------------

// NodeState is the state a fake node reports in the pool metadata
type NodeState int

const (
	Healthy   NodeState = iota // active and healthy
	Unhealthy                  // active but unhealthy
	Inactive                   // failed over, no longer an active member
)

// membership returns the clusterMembership and status strings of the state
func (s NodeState) membership() (string, string) {
	switch s {
	case Healthy:
		return common.MembershipActive, common.StatusHealthy
	case Unhealthy:
		return common.MembershipActive, "unhealthy"
	default:
		return "inactiveFailed", "unhealthy"
	}
}

// --------------------------------------------------------------------------
// FakeCluster
// --------------------------------------------------------------------------

type fakeNode struct {
	name         string
	state        NodeState
	failStatus   int // if set, view requests are answered with this status
	viewRequests int
}

// FakeCluster is an in-process REST server that mimics the metadata and view api of a cluster.
// All logical nodes are served by the same http server under /<node name>/.
type FakeCluster struct {
	bucket string
	server *httptest.Server

	mu            sync.Mutex
	nodes         []*fakeNode
	views         map[string][]json.RawMessage
	poolStatus    int
	poolRequests  int
	viewRequests  int
	lastViewQuery string
}

// NewFakeCluster starts a fake cluster serving the given bucket
func NewFakeCluster(bucket string) *FakeCluster {
	fc := &FakeCluster{
		bucket: bucket,
		views:  make(map[string][]json.RawMessage),
	}

	router := mux.NewRouter()
	router.HandleFunc("/pools/{pool}", fc.handlePool).Methods(http.MethodGet)
	router.HandleFunc("/{node}/{bucket}/_design/{group}/_view/{view}", fc.handleView).Methods(http.MethodGet)

	fc.server = httptest.NewServer(router)
	return fc
}

// URL returns the address of the metadata api, to be used as seed server
func (fc *FakeCluster) URL() string {
	return fc.server.URL
}

// BaseURL returns the couchApiBase of the named node
func (fc *FakeCluster) BaseURL(name string) string {
	return fmt.Sprintf("%s/%s/", fc.server.URL, name)
}

// Close shuts the server down
func (fc *FakeCluster) Close() {
	fc.server.Close()
}

// AddNode adds a node in the given state and returns its couchApiBase
func (fc *FakeCluster) AddNode(name string, state NodeState) string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.nodes = append(fc.nodes, &fakeNode{name: name, state: state})
	return fc.BaseURL(name)
}

// RemoveNode removes a node from the metadata
func (fc *FakeCluster) RemoveNode(name string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for i, n := range fc.nodes {
		if n.name == name {
			fc.nodes = append(fc.nodes[:i], fc.nodes[i+1:]...)
			return
		}
	}
}

// SetState changes the reported state of a node
func (fc *FakeCluster) SetState(name string, state NodeState) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if n := fc.node(name); n != nil {
		n.state = state
	}
}

// FailNode makes view requests to the node return status (0 to succeed again)
func (fc *FakeCluster) FailNode(name string, status int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if n := fc.node(name); n != nil {
		n.failStatus = status
	}
}

// FailPool makes metadata requests return status (0 to succeed again)
func (fc *FakeCluster) FailPool(status int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.poolStatus = status
}

// SetRows sets the rows of a view. Each row is encoded as json.
func (fc *FakeCluster) SetRows(group, view string, rows ...any) error {
	encoded := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		encoded[i] = b
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.views[group+"/"+view] = encoded
	return nil
}

// ViewRequests returns the number of view requests the named node received
func (fc *FakeCluster) ViewRequests(name string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if n := fc.node(name); n != nil {
		return n.viewRequests
	}
	return 0
}

// TotalViewRequests returns the number of view requests received by all nodes
func (fc *FakeCluster) TotalViewRequests() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.viewRequests
}

// PoolRequests returns the number of metadata requests
func (fc *FakeCluster) PoolRequests() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.poolRequests
}

// LastViewQuery returns the raw query string of the last view request
func (fc *FakeCluster) LastViewQuery() string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.lastViewQuery
}

// --------------------------------------------------------------------------
// Handlers
// --------------------------------------------------------------------------

// handlePool answers GET /pools/{pool}
func (fc *FakeCluster) handlePool(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	fc.poolRequests++
	status := fc.poolStatus
	info := common.PoolInfo{Name: mux.Vars(r)["pool"], Nodes: []common.PoolNode{}}
	for _, n := range fc.nodes {
		membership, health := n.state.membership()
		info.Nodes = append(info.Nodes, common.PoolNode{
			Hostname:          n.name,
			ClusterMembership: membership,
			Status:            health,
			CouchAPIBase:      fc.BaseURL(n.name),
			Ports:             common.NodePorts{Proxy: common.DefaultCacheProxyPort},
		})
	}
	fc.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, info)
}

// handleView answers GET /{node}/{bucket}/_design/{group}/_view/{view}
func (fc *FakeCluster) handleView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	fc.mu.Lock()
	fc.viewRequests++
	fc.lastViewQuery = r.URL.RawQuery
	n := fc.node(vars["node"])
	if n == nil {
		fc.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	n.viewRequests++
	failStatus := n.failStatus
	rows := fc.views[vars["group"]+"/"+vars["view"]]
	fc.mu.Unlock()

	if failStatus != 0 {
		w.WriteHeader(failStatus)
		return
	}
	if vars["bucket"] != fc.bucket {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		limit = len(rows)
	}

	page := []json.RawMessage{}
	if skip < len(rows) {
		end := min(skip+limit, len(rows))
		page = rows[skip:end]
	}

	writeJSON(w, common.ViewResult{TotalRows: len(rows), Rows: page})
}

// node returns the named node, the caller holds the lock
func (fc *FakeCluster) node(name string) *fakeNode {
	for _, n := range fc.nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// writeJSON writes v as json response
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}
