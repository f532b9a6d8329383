package query

import (
	"fmt"
	"net/url"
	"strings"
)

// --------------------------------------------------------------------------
// Parameters
// --------------------------------------------------------------------------

// param is a single key value pair of the query string
type param struct {
	Key   string
	Value string
}

// Parameters is an ordered multimap of query string parameters.
// The insertion order is kept so resolved addresses are deterministic.
type Parameters []param

// Get returns the first value for the key and whether it was found
func (p Parameters) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Values returns all values for the key in insertion order
func (p Parameters) Values(key string) []string {
	var values []string
	for _, kv := range p {
		if kv.Key == key {
			values = append(values, kv.Value)
		}
	}
	return values
}

// Encode renders the parameters as an url encoded query string (without the leading '?')
func (p Parameters) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// Builder accumulates the path segments and parameters of a single request.
// A Builder is not safe for concurrent mutation, use Clone to hand out copies.
type Builder struct {
	base     *url.URL
	commands []string
	params   Parameters
}

// New creates an empty builder without a base address
func New() *Builder {
	return &Builder{}
}

// NewFromURL creates a builder seeded with a base address.
// Query parameters that are part of the base address are kept as parameters.
func NewFromURL(base *url.URL) *Builder {
	b := &Builder{}
	if base == nil {
		return b
	}

	root := *base
	root.RawQuery = ""
	root.Fragment = ""
	b.base = &root

	// keep the order of the raw query, url.Values would lose it
	for _, pair := range strings.Split(base.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, errK := url.QueryUnescape(key)
		v, errV := url.QueryUnescape(value)
		if errK != nil || errV != nil {
			continue
		}
		b.params = append(b.params, param{Key: k, Value: v})
	}
	return b
}

// Parse creates a builder from a raw base address
func Parse(raw string) (*Builder, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid address %q: scheme and host are required", raw)
	}
	return NewFromURL(u), nil
}

// AddCommand appends path segments. Segments are stacked in order.
func (b *Builder) AddCommand(segments ...string) *Builder {
	b.commands = append(b.commands, segments...)
	return b
}

// AddParameter appends a parameter. Existing values of the same key are kept.
func (b *Builder) AddParameter(key string, value any) *Builder {
	b.params = append(b.params, param{Key: key, Value: format(value)})
	return b
}

// SetParameter replaces all values of key with a single value.
// The position of the first existing value is reused, otherwise the parameter is appended.
func (b *Builder) SetParameter(key string, value any) *Builder {
	v := format(value)
	replaced := false
	params := b.params[:0:0]
	for _, kv := range b.params {
		if kv.Key != key {
			params = append(params, kv)
			continue
		}
		if !replaced {
			params = append(params, param{Key: key, Value: v})
			replaced = true
		}
	}
	if !replaced {
		params = append(params, param{Key: key, Value: v})
	}
	b.params = params
	return b
}

// Commands returns a copy of the path segments
func (b *Builder) Commands() []string {
	return append([]string(nil), b.commands...)
}

// Parameters returns a copy of the parameters
func (b *Builder) Parameters() Parameters {
	return append(Parameters(nil), b.params...)
}

// Base returns a copy of the base address or nil if the builder has none
func (b *Builder) Base() *url.URL {
	if b.base == nil {
		return nil
	}
	u := *b.base
	return &u
}

// Clone returns an independent copy of the builder in its current state
func (b *Builder) Clone() *Builder {
	return &Builder{
		base:     b.Base(),
		commands: b.Commands(),
		params:   b.Parameters(),
	}
}

// Merge returns a new builder with the base address of b and the
// commands and parameters of other. Neither b nor other is modified.
func (b *Builder) Merge(other *Builder) *Builder {
	return &Builder{
		base:     b.Base(),
		commands: other.Commands(),
		params:   other.Parameters(),
	}
}

// Resolve returns the final address of the request against the given base.
// The result has the form scheme://authority[/basepath]/seg1/.../segN?k1=v1&k2=v2.
// The path suffix is omitted when there are no segments, the query when there are no parameters.
func (b *Builder) Resolve(base *url.URL) *url.URL {
	u := &url.URL{}
	basePath := ""
	if base != nil {
		u.Scheme = base.Scheme
		u.Host = base.Host
		u.User = base.User
		basePath = strings.TrimSuffix(base.Path, "/")
	}

	path := basePath
	if len(b.commands) > 0 {
		escaped := make([]string, len(b.commands))
		for i, c := range b.commands {
			escaped[i] = url.PathEscape(c)
		}
		path = basePath + "/" + strings.Join(escaped, "/")
	}
	if path != "" {
		// RawPath keeps the escaping of segments like design document names
		if unescaped, err := url.PathUnescape(path); err == nil {
			u.Path = unescaped
			u.RawPath = path
		} else {
			u.Path = path
		}
	}

	if len(b.params) > 0 {
		u.RawQuery = b.params.Encode()
	}
	return u
}

// Address resolves the builder against its own base address
func (b *Builder) Address() *url.URL {
	return b.Resolve(b.base)
}

// String returns the resolved address, or the relative path and query if the builder has no base
func (b *Builder) String() string {
	return b.Address().String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// format converts a parameter value to its string representation
func format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
