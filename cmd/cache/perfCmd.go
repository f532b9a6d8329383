package cache

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/cbrest/cmd/util"
	"github.com/ValentinKolb/cbrest/lib/cache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the bucket cache",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__cbrest_perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfCase is a single benchmark, prepare runs before the timer starts
type perfCase struct {
	name    string
	prepare bool
	op      func(key string, counter int) error
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	config := util.GetClientConfig()

	fmt.Println("Performance testing tool for the bucket cache")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()
	fmt.Println("starting tests...")

	smallValue := []byte(`"test"`)
	largeValue := []byte(`"` + strings.Repeat("x", perfLargeValueSizeKB*1024) + `"`)

	cases := []perfCase{
		{"set", false, func(key string, _ int) error {
			return cacheClient.Set(&cache.Item{Key: key, Value: smallValue})
		}},
		{"set-large", false, func(key string, _ int) error {
			return cacheClient.Set(&cache.Item{Key: key, Value: largeValue})
		}},
		{"get", true, func(key string, _ int) error {
			_, err := cacheClient.Get(key)
			return err
		}},
		{"get-miss", false, func(key string, _ int) error {
			if _, err := cacheClient.Get(key + "-missing"); !cache.IsCacheMiss(err) {
				return err
			}
			return nil
		}},
		{"delete", true, func(key string, _ int) error {
			if err := cacheClient.Delete(key); !cache.IsCacheMiss(err) {
				return err
			}
			return nil
		}},
		{"mixed", true, func(key string, counter int) error {
			var err error
			switch counter % 3 {
			case 0:
				err = cacheClient.Set(&cache.Item{Key: key, Value: smallValue})
			case 1:
				_, err = cacheClient.Get(key)
			case 2:
				err = cacheClient.Delete(key)
			}
			if cache.IsCacheMiss(err) {
				return nil
			}
			return err
		}},
	}

	names := make([]string, 0, len(cases))
	results := make(map[string]testing.BenchmarkResult, len(cases))
	for _, pc := range cases {
		names = append(names, pc.name)
		if slices.Contains(perfSkip, pc.name) {
			results[pc.name] = testing.BenchmarkResult{}
			printResult(pc.name, results[pc.name])
			continue
		}
		results[pc.name] = testing.Benchmark(func(b *testing.B) { benchmark(b, pc, smallValue) })
		printResult(pc.name, results[pc.name])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, names, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	// pool counters show rebuilds or evictions that happened during the run
	fmt.Println()
	cbClient.WriteMetrics(os.Stdout)
	return nil
}

// benchmark runs a single case in parallel on the shared cache client
func benchmark(b *testing.B, pc perfCase, value []byte) {
	getKey, iter := getKeys(pc.name)

	if pc.prepare {
		iter(func(k string) {
			if err := cacheClient.Set(&cache.Item{Key: k, Value: value}); err != nil {
				log.Printf("(%s) - error setting key: %v\n", pc.name, err)
			}
		})
	}

	b.Cleanup(func() {
		iter(func(k string) {
			if err := cacheClient.Delete(k); err != nil && !cache.IsCacheMiss(err) {
				log.Printf("(%s) - error deleting key: %v\n", pc.name, err)
			}
		})
	})

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if err := pc.op(getKey(counter), counter); err != nil {
				log.Printf("(%s) - error: %v\n", pc.name, err)
			}
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}
	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file in run order
func writeResultsToCSV(csvPath string, names []string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Servers", "Bucket", "CacheProxyPort", "RequestTimeoutMs",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range names {
		result := results[test]
		nsPerOp, opsPerSec, skipped := 0.0, 0.0, "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Servers, ";"),
			config.Bucket,
			strconv.Itoa(config.CacheProxyPort),
			strconv.Itoa(config.RequestTimeoutMillis),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
