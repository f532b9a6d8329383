package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ValentinKolb/cbrest/lib/errs"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/ValentinKolb/cbrest/rpc/transport"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T) transport.IRESTTransport {
	t.Helper()
	tr := NewHttpClientTransport()
	config := common.DefaultClientConfig("default", "admin", "password", "http://localhost:8091")
	require.NoError(t, tr.Connect(config))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFetchPool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "password" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/pools/default", r.URL.Path)
		_, _ = w.Write([]byte(`{"nodes":[{"clusterMembership":"active","status":"healthy","couchApiBase":"http://10.0.0.1:8092/"}]}`))
	}))
	defer srv.Close()

	info, err := newTransport(t).FetchPool(context.Background(), parse(t, srv.URL+"/pools/default"))
	require.NoError(t, err)
	require.Len(t, info.Nodes, 1)
	assert.True(t, info.Nodes[0].IsActiveHealthy())
}

func TestFetchRowsDecodesCompressedBodies(t *testing.T) {
	body := `{"total_rows":2,"rows":[{"id":"a","key":"a","value":1},{"id":"b","key":"b","value":2}]}`

	for _, encoding := range []string{"gzip", "deflate", ""} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", encoding)
				switch encoding {
				case "gzip":
					gz := gzip.NewWriter(w)
					_, _ = gz.Write([]byte(body))
					_ = gz.Close()
				case "deflate":
					zw := zlib.NewWriter(w)
					_, _ = zw.Write([]byte(body))
					_ = zw.Close()
				default:
					_, _ = w.Write([]byte(body))
				}
			}))
			defer srv.Close()

			result, err := newTransport(t).FetchRows(context.Background(), parse(t, srv.URL+"/default/_design/d/_view/v"))
			require.NoError(t, err)
			assert.Equal(t, 2, result.TotalRows)
			assert.Len(t, result.Rows, 2)
		})
	}
}

func TestNodeOfflineClassification(t *testing.T) {
	t.Run("non success status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := newTransport(t).FetchRows(context.Background(), parse(t, srv.URL))
		var offline *transport.NodeOfflineError
		require.True(t, errors.As(err, &offline))
		assert.Equal(t, http.StatusServiceUnavailable, offline.StatusCode)
		assert.ErrorIs(t, err, errs.ErrNodeUnreachable)
	})

	t.Run("empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		_, err := newTransport(t).FetchPool(context.Background(), parse(t, srv.URL))
		assert.ErrorIs(t, err, errs.ErrNodeUnreachable)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		addr := srv.URL
		srv.Close()

		_, err := newTransport(t).FetchPool(context.Background(), parse(t, addr))
		assert.ErrorIs(t, err, errs.ErrNodeUnreachable)
	})

	t.Run("invalid json is not a node failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"rows": [`))
		}))
		defer srv.Close()

		_, err := newTransport(t).FetchRows(context.Background(), parse(t, srv.URL))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errs.ErrNodeUnreachable)
	})

	t.Run("cancelled context is not a node failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := newTransport(t).FetchRows(ctx, parse(t, srv.URL))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, errs.ErrNodeUnreachable)
	})
}

func TestNotConnected(t *testing.T) {
	_, err := NewHttpClientTransport().FetchPool(context.Background(), parse(t, "http://localhost:1"))
	assert.Error(t, err)
}
