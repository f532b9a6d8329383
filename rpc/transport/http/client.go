package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/ValentinKolb/cbrest/rpc/transport"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var Logger = logger.GetLogger("transport")

// NewHttpClientTransport creates a new, unconnected http transport
func NewHttpClientTransport() transport.IRESTTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	client   *http.Client
	username string
	password string
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRESTTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	timeout := config.RequestTimeout()
	if timeout <= 0 {
		timeout = time.Duration(common.DefaultRequestTimeoutMillis) * time.Millisecond
	}

	// Create client with its own transport, no proxy like the metadata api expects
	t.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               nil,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     300 * time.Second,
			// compression is negotiated and decoded by hand to support deflate
			DisableCompression: true,
		},
	}
	t.username = config.Username
	t.password = config.Password

	// No error
	return nil
}

func (t *httpClientTransport) FetchPool(ctx context.Context, address *url.URL) (*common.PoolInfo, error) {
	info := &common.PoolInfo{}
	if err := t.getJSON(ctx, address, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (t *httpClientTransport) FetchRows(ctx context.Context, address *url.URL) (*common.ViewResult, error) {
	result := &common.ViewResult{}
	if err := t.getJSON(ctx, address, result); err != nil {
		return nil, err
	}
	for _, e := range result.Errors {
		Logger.Warningf("View query %s reported a partial error from %s: %s", address, e.From, e.Reason)
	}
	return result, nil
}

func (t *httpClientTransport) Close() error {
	// requests that are still running keep their connection
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// getJSON sends a GET request to the address and decodes the json body into v
func (t *httpClientTransport) getJSON(ctx context.Context, address *url.URL, v any) error {
	// Check if the transport is initialized
	if t.client == nil {
		return fmt.Errorf("http transport not initialized")
	}

	target := address.String()

	// Create the request
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept-Encoding", "gzip, deflate")
	if t.username != "" || t.password != "" {
		httpRequest.SetBasicAuth(t.username, t.password)
	}

	// Send the request
	httpResponse, err := t.client.Do(httpRequest)
	if err != nil {
		// the caller gave up, this says nothing about the node
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &transport.NodeOfflineError{Address: target, Reason: "unable to connect to the remote server", Err: err}
	}
	defer func() {
		if err := httpResponse.Body.Close(); err != nil {
			Logger.Errorf("Failed to close response body: %v", err)
		}
	}()

	// Check if the response status code is OK
	if httpResponse.StatusCode != http.StatusOK {
		return &transport.NodeOfflineError{Address: target, StatusCode: httpResponse.StatusCode, Reason: fmt.Sprintf("http error: %s", httpResponse.Status)}
	}

	// Read the response body
	body, err := readBody(httpResponse)
	if err != nil {
		return &transport.NodeOfflineError{Address: target, StatusCode: httpResponse.StatusCode, Reason: "failed to read response", Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return &transport.NodeOfflineError{Address: target, StatusCode: httpResponse.StatusCode, Reason: "node failed to return response"}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

// readBody reads the response body and decodes gzip or deflate content encodings
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case "", "identity":
	default:
		return nil, errors.New("unsupported content encoding " + resp.Header.Get("Content-Encoding"))
	}

	return io.ReadAll(reader)
}
