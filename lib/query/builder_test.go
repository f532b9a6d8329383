package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestResolve(t *testing.T) {
	base := mustParse(t, "http://10.0.0.1:8092/")

	t.Run("segments and parameters", func(t *testing.T) {
		b := New().
			AddCommand("default", "_design").
			AddCommand("beer", "_view", "by_name").
			AddParameter("stale", "ok").
			AddParameter("limit", 10)

		assert.Equal(t, "http://10.0.0.1:8092/default/_design/beer/_view/by_name?stale=ok&limit=10", b.Resolve(base).String())
	})

	t.Run("no segments", func(t *testing.T) {
		b := New().AddParameter("client_id", "cbrest")
		assert.Equal(t, "http://10.0.0.1:8092?client_id=cbrest", b.Resolve(base).String())
	})

	t.Run("no parameters", func(t *testing.T) {
		b := New().AddCommand("pools", "default")
		assert.Equal(t, "http://10.0.0.1:8092/pools/default", b.Resolve(base).String())
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "http://10.0.0.1:8092", New().Resolve(base).String())
	})

	t.Run("base path is kept", func(t *testing.T) {
		b := New().AddCommand("_design", "d", "_view", "v")
		got := b.Resolve(mustParse(t, "http://host:8092/default"))
		assert.Equal(t, "http://host:8092/default/_design/d/_view/v", got.String())
	})

	t.Run("values are escaped", func(t *testing.T) {
		b := New().AddParameter("key", `"a b"`).AddParameter("keys", `["x","y"]`)
		got := b.Resolve(base)
		assert.Equal(t, []string{`"a b"`}, got.Query()["key"])
		assert.Equal(t, []string{`["x","y"]`}, got.Query()["keys"])
	})
}

func TestParameters(t *testing.T) {
	t.Run("add keeps duplicate keys", func(t *testing.T) {
		b := New().AddParameter("key", 1).AddParameter("key", 2)
		assert.Equal(t, []string{"1", "2"}, b.Parameters().Values("key"))
		assert.Equal(t, "key=1&key=2", b.Parameters().Encode())
	})

	t.Run("set overwrites in place", func(t *testing.T) {
		b := New().
			AddParameter("limit", 10).
			AddParameter("skip", 0).
			AddParameter("stale", "ok").
			SetParameter("skip", 20)
		assert.Equal(t, "limit=10&skip=20&stale=ok", b.Parameters().Encode())
	})

	t.Run("set collapses duplicates", func(t *testing.T) {
		b := New().AddParameter("skip", 0).AddParameter("skip", 1).SetParameter("skip", 5)
		assert.Equal(t, []string{"5"}, b.Parameters().Values("skip"))
	})

	t.Run("set appends missing key", func(t *testing.T) {
		b := New().SetParameter("limit", 3)
		v, ok := b.Parameters().Get("limit")
		assert.True(t, ok)
		assert.Equal(t, "3", v)
	})
}

func TestCloneIsIndependent(t *testing.T) {
	template, err := Parse("http://10.0.0.1:8092/")
	require.NoError(t, err)

	clone := template.Clone().AddCommand("default").AddParameter("skip", 0)
	clone.SetParameter("skip", 10)

	assert.Empty(t, template.Commands())
	assert.Empty(t, template.Parameters())
	assert.Equal(t, "http://10.0.0.1:8092", template.String())
	assert.Equal(t, "http://10.0.0.1:8092/default?skip=10", clone.String())
}

func TestMerge(t *testing.T) {
	template, err := Parse("http://10.0.0.2:8092/")
	require.NoError(t, err)

	req := New().AddCommand("default", "_design", "d", "_view", "v").AddParameter("limit", 10)
	merged := template.Merge(req)

	assert.Equal(t, "http://10.0.0.2:8092/default/_design/d/_view/v?limit=10", merged.String())

	// mutating the merged builder leaves both sources untouched
	merged.SetParameter("limit", 99).AddCommand("extra")
	assert.Equal(t, "/default/_design/d/_view/v?limit=10", req.String())
	assert.Equal(t, "http://10.0.0.2:8092", template.String())
}

func TestParse(t *testing.T) {
	b, err := Parse("http://host:8091/?a=1&b=2&a=3")
	require.NoError(t, err)
	assert.Equal(t, "a=1&b=2&a=3", b.Parameters().Encode())

	_, err = Parse("not a url")
	assert.Error(t, err)
}
