package util

import (
	"context"
	"github.com/ValentinKolb/cbrest/lib/client"
	"github.com/ValentinKolb/cbrest/rpc/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the cluster connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	key := "servers"
	flags.String(key, "http://localhost:8091", WrapString("Comma separated list of seed servers (REST base addresses). They are tried in order when the topology is loaded"))

	key = "bucket"
	flags.String(key, "default", WrapString("The bucket to work with"))

	key = "username"
	flags.String(key, "", WrapString("User for the REST api (defaults to the bucket name)"))

	key = "password"
	flags.String(key, "", WrapString("Password for the REST api and the cache proxy"))

	key = "client-id"
	flags.String(key, common.DefaultClientID, WrapString("Client id sent with every view request"))

	key = "poll-interval"
	flags.Int(key, common.DefaultPollIntervalSeconds, WrapString("Seconds between two topology refreshes"))

	key = "request-timeout"
	flags.Int(key, common.DefaultRequestTimeoutMillis, WrapString("Timeout of a single REST request in milliseconds"))

	key = "fail-node-on-error-count"
	flags.Int(key, common.DefaultFailNodeOnErrorCount, WrapString("Number of errors inside the error window after which a node is removed"))

	key = "reset-error-count-after"
	flags.Int(key, common.DefaultResetErrorCountAfterSecs, WrapString("Length of the error window in seconds"))

	key = "cache-proxy-port"
	flags.Int(key, common.DefaultCacheProxyPort, WrapString("Port of the memcached proxy on every node"))

	key = "wait"
	flags.Int(key, 10, WrapString("Seconds a command may run (including the wait for the cluster topology) before giving up"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("cbrest")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	username := viper.GetString("username")
	if username == "" {
		username = viper.GetString("bucket")
	}

	var servers []string
	for _, s := range strings.Split(viper.GetString("servers"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}

	return common.ClientConfig{
		Servers:                     servers,
		Bucket:                      viper.GetString("bucket"),
		Username:                    username,
		Password:                    viper.GetString("password"),
		ClientID:                    viper.GetString("client-id"),
		PollIntervalSeconds:         viper.GetInt("poll-interval"),
		RequestTimeoutMillis:        viper.GetInt("request-timeout"),
		FailNodeOnErrorCount:        viper.GetInt("fail-node-on-error-count"),
		ResetErrorCountAfterSeconds: viper.GetInt("reset-error-count-after"),
		CacheProxyPort:              viper.GetInt("cache-proxy-port"),
		LogLevel:                    viper.GetString("log-level"),
	}
}

// NewClient creates a client from the viper configuration
func NewClient() (*client.Client, error) {
	return client.New(GetClientConfig())
}

// WaitContext returns a context bounded by the --wait flag
func WaitContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(viper.GetInt("wait"))*time.Second)
}

// BindCommandFlags binds a command's flags to viper and applies the log level
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}
