package common

import (
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/errs"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultClientID                 = "cbrest"
	DefaultPollIntervalSeconds      = 60
	DefaultRequestTimeoutMillis     = 500
	DefaultFailNodeOnErrorCount     = 10
	DefaultResetErrorCountAfterSecs = 60
	DefaultCacheProxyPort           = 11211
	DefaultLogLevel                 = "info"
)

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters of the cluster client
type ClientConfig struct {
	// Servers is the ordered list of seed servers (e.g. http://10.0.0.1:8091).
	// The first server that answers with valid metadata wins.
	Servers []string

	// Bucket and credentials
	Bucket   string
	Username string
	Password string

	// ClientID is sent as client_id parameter with every view request
	ClientID string

	// topology tracking
	PollIntervalSeconds int

	// RequestTimeoutMillis is the timeout of a single REST request
	RequestTimeoutMillis int

	// node health
	FailNodeOnErrorCount        int
	ResetErrorCountAfterSeconds int

	// CacheProxyPort is the port of the memcached proxy on every node
	CacheProxyPort int

	// Logging configuration
	LogLevel string
}

// DefaultClientConfig returns a configuration with all optional values set to their defaults
func DefaultClientConfig(bucket, username, password string, servers ...string) ClientConfig {
	return ClientConfig{
		Servers:                     servers,
		Bucket:                      bucket,
		Username:                    username,
		Password:                    password,
		ClientID:                    DefaultClientID,
		PollIntervalSeconds:         DefaultPollIntervalSeconds,
		RequestTimeoutMillis:        DefaultRequestTimeoutMillis,
		FailNodeOnErrorCount:        DefaultFailNodeOnErrorCount,
		ResetErrorCountAfterSeconds: DefaultResetErrorCountAfterSecs,
		CacheProxyPort:              DefaultCacheProxyPort,
		LogLevel:                    DefaultLogLevel,
	}
}

// Validate checks that all required values are set. Optional values that are
// zero are replaced with their defaults. The returned error wraps errs.ErrMisconfiguration.
func (c *ClientConfig) Validate() error {
	if len(c.Servers) == 0 {
		return errs.Misconfigured("at least one seed server is required")
	}
	for _, server := range c.Servers {
		u, err := url.Parse(strings.TrimSpace(server))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errs.Misconfigured("invalid seed server %q", server)
		}
	}
	if c.Bucket == "" {
		return errs.Misconfigured("bucket is required")
	}
	if c.Username == "" {
		return errs.Misconfigured("username is required")
	}
	// an empty password is allowed for the unauthenticated default bucket, but it must be set explicitly

	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.RequestTimeoutMillis <= 0 {
		c.RequestTimeoutMillis = DefaultRequestTimeoutMillis
	}
	if c.FailNodeOnErrorCount <= 0 {
		c.FailNodeOnErrorCount = DefaultFailNodeOnErrorCount
	}
	if c.ResetErrorCountAfterSeconds <= 0 {
		c.ResetErrorCountAfterSeconds = DefaultResetErrorCountAfterSecs
	}
	if c.CacheProxyPort <= 0 {
		c.CacheProxyPort = DefaultCacheProxyPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return nil
}

// PollInterval returns the refresh interval as duration
func (c *ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RequestTimeout returns the per request timeout as duration
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

// ErrorWindow returns the duration in which node errors are accumulated
func (c *ClientConfig) ErrorWindow() time.Duration {
	return time.Duration(c.ResetErrorCountAfterSeconds) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-26s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Bucket", c.Bucket)
	addField("Username", c.Username)
	addField("Client ID", c.ClientID)
	addField("Request Timeout", fmt.Sprintf("%d ms", c.RequestTimeoutMillis))

	// Topology
	addSection("Topology")
	addField("Poll Interval", fmt.Sprintf("%d sec", c.PollIntervalSeconds))
	addField("Fail Node On Error Count", strconv.Itoa(c.FailNodeOnErrorCount))
	addField("Reset Error Count After", fmt.Sprintf("%d sec", c.ResetErrorCountAfterSeconds))
	addField("Cache Proxy Port", strconv.Itoa(c.CacheProxyPort))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Seeds
	addSection("Seed Servers")
	for i, server := range c.Servers {
		addField(strconv.Itoa(i), server)
	}

	return sb.String()
}
