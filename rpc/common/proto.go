package common

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Cluster Metadata (GET /pools/<name>)
// --------------------------------------------------------------------------

const (
	MembershipActive = "active"
	StatusHealthy    = "healthy"
)

// PoolInfo is the part of the pool metadata the client needs
type PoolInfo struct {
	Name  string     `json:"name,omitempty"`
	Nodes []PoolNode `json:"nodes"`
}

// PoolNode describes a single cluster member as reported by the metadata api
type PoolNode struct {
	Hostname          string    `json:"hostname,omitempty"`
	ClusterMembership string    `json:"clusterMembership"`
	Status            string    `json:"status"`
	CouchAPIBase      string    `json:"couchApiBase"`
	Ports             NodePorts `json:"ports,omitempty"`
}

// NodePorts lists the data ports of a node
type NodePorts struct {
	Proxy  int `json:"proxy,omitempty"`
	Direct int `json:"direct,omitempty"`
}

// IsActiveHealthy returns true if the member is part of the cluster and healthy
func (n PoolNode) IsActiveHealthy() bool {
	return n.ClusterMembership == MembershipActive && n.Status == StatusHealthy
}

// --------------------------------------------------------------------------
// View Results (GET /<bucket>/_design/<group>/_view/<view>)
// --------------------------------------------------------------------------

// ViewResult is the envelope returned by a view query
type ViewResult struct {
	TotalRows int               `json:"total_rows,omitempty"`
	Rows      []json.RawMessage `json:"rows"`
	Errors    []ViewError       `json:"errors,omitempty"`
}

// ViewError is a partial error reported by a view query
type ViewError struct {
	From   string `json:"from"`
	Reason string `json:"reason"`
}

// viewRow is used to look into a single row without decoding the payload
type viewRow struct {
	Doc json.RawMessage `json:"doc"`
}

// viewDoc is the embedded document of a row queried with include_docs=true
type viewDoc struct {
	JSON json.RawMessage `json:"json"`
}

// ProjectRow returns the payload of a row that should be decoded into the result type.
// Rows with an embedded document yield the document's json body (or the document itself
// if it has no json body), all other rows yield the row itself.
func ProjectRow(row json.RawMessage) (json.RawMessage, error) {
	var r viewRow
	if err := json.Unmarshal(row, &r); err != nil {
		return nil, fmt.Errorf("invalid view row: %w", err)
	}
	if isNull(r.Doc) {
		return row, nil
	}

	var d viewDoc
	if err := json.Unmarshal(r.Doc, &d); err != nil || isNull(d.JSON) {
		return r.Doc, nil
	}
	return d.JSON, nil
}

// isNull returns true for an absent or json null value
func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
