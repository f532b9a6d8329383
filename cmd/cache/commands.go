package cache

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/spf13/cobra"
	"time"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [json value] [ttl]",
		Short: "Stores a json value for a key (ttl e.g. 10m, 0 for none)",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  storeRunE(cache.StoreModeSet),
	}
	addCmd = &cobra.Command{
		Use:   "add [key] [json value] [ttl]",
		Short: "Stores a json value only if the key does not exist",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  storeRunE(cache.StoreModeAdd),
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [json value] [ttl]",
		Short: "Stores a json value only if the key already exists",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  storeRunE(cache.StoreModeReplace),
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the json value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if value, found, err := cache.GetJSON[json.RawMessage](cacheClient, key); err != nil {
				return err
			} else if !found {
				fmt.Printf("key=%s, found=false\n", key)
			} else {
				fmt.Printf("key=%s, found=true, value=%s\n", key, value)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := cacheClient.Delete(key); cache.IsCacheMiss(err) {
				fmt.Printf("key=%s not found\n", key)
			} else if err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
)

// storeRunE returns the RunE of a store command with the given mode
func storeRunE(mode cache.StoreMode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		key := args[0]

		var value json.RawMessage
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("value must be valid json: %w", err)
		}

		var ttl time.Duration
		if len(args) == 3 {
			var err error
			if ttl, err = time.ParseDuration(args[2]); err != nil {
				return fmt.Errorf("ttl must be a duration: %w", err)
			}
		}

		if err := cache.StoreJSON(cacheClient, mode, key, value, ttl); err != nil {
			return err
		}
		fmt.Printf("%s successfully\n", mode)
		return nil
	}
}
