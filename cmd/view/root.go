package view

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/cbrest/cmd/util"
	"github.com/ValentinKolb/cbrest/lib/client"
	"github.com/ValentinKolb/cbrest/lib/view"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"time"
)

var (
	// ViewCmd runs a view query and prints the rows
	ViewCmd = &cobra.Command{
		Use:               "view [design document] [view]",
		Short:             "Query a view",
		Long:              "Runs a view query on a random healthy node and prints every row as one json line.",
		Args:              cobra.ExactArgs(2),
		PersistentPreRunE: bindFlags,
		RunE:              run,
	}
)

func init() {
	util.SetupClientFlags(ViewCmd)

	flags := ViewCmd.Flags()
	flags.String("key", "", util.WrapString("Only return rows with this key (json encoded, e.g. '\"abc\"')"))
	flags.String("start-key", "", util.WrapString("Return rows starting at this key (json encoded)"))
	flags.String("end-key", "", util.WrapString("Stop returning rows at this key (json encoded)"))
	flags.Bool("descending", false, util.WrapString("Reverse the order of the rows"))
	flags.Bool("include-docs", false, util.WrapString("Embed the full documents into the rows"))
	flags.Bool("reduce-group", false, util.WrapString("Group the reduced rows"))
	flags.String("stale", "", util.WrapString("Index staleness (ok, update_after, false)"))
	flags.Int("limit", view.DefaultLimit, util.WrapString("Page size"))
	flags.Int("skip", 0, util.WrapString("Rows to skip before the first page"))
	flags.Int("retries", 3, util.WrapString("Attempts per page"))
	flags.Duration("view-timeout", 0, util.WrapString("Time the server waits for the view index (0 for the server default)"))
	flags.Bool("all", false, util.WrapString("Fetch all pages instead of only the first one"))
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func run(_ *cobra.Command, args []string) error {
	c, err := util.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	q := client.View[json.RawMessage](c, args[0], args[1]).
		Limit(viper.GetInt("limit")).
		Skip(viper.GetInt("skip")).
		Retry(viper.GetInt("retries"))

	keyFlags := []struct {
		flag  string
		apply func(any) *view.ViewQuery[json.RawMessage]
	}{
		{"key", q.Key},
		{"start-key", q.StartKey},
		{"end-key", q.EndKey},
	}
	for _, kf := range keyFlags {
		raw := viper.GetString(kf.flag)
		if raw == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("--%s must be valid json: %w", kf.flag, err)
		}
		kf.apply(v)
	}
	if viper.GetBool("descending") {
		q.Descending()
	}
	if viper.GetBool("include-docs") {
		q.IncludeDocs(true)
	}
	if viper.GetBool("reduce-group") {
		q.Group(true)
	}
	if raw := viper.GetString("stale"); raw != "" {
		stale, err := view.ParseStale(raw)
		if err != nil {
			return err
		}
		q.Stale(stale)
	}
	if timeout := viper.GetDuration("view-timeout"); timeout > 0 {
		q.ViewWaitTimeout(timeout)
	}

	ctx, cancel := util.WaitContext()
	defer cancel()

	start := time.Now()
	count := 0
	for row, err := range q.Query(ctx, viper.GetBool("all")) {
		if err != nil {
			return err
		}
		count++
		fmt.Fprintln(os.Stdout, string(row))
	}
	fmt.Fprintf(os.Stderr, "%d row(s) in %v\n", count, time.Since(start).Round(time.Millisecond))
	return nil
}
