package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ma99us/MikeDB/cmd/util"
	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for MikeDB servers",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfDB               = store.EphemeralPrefix + "perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfBenchmarks lists the benchmarks in execution order
var perfBenchmarks = []struct {
	name  string
	setup bool // the keys hold a value before the timer starts
	op    func(key string, counter int) error
}{
	{"put", false, func(key string, _ int) error {
		_, err := apiStore.Put(perfDB, key, value.MustParse(`{"id":1,"name":"test"}`), "")
		return err
	}},
	{"put-large", false, func(key string, _ int) error {
		_, err := apiStore.Put(perfDB, key, value.String(strings.Repeat("x", perfLargeValueSizeKB*1024)), "")
		return err
	}},
	{"get", true, func(key string, _ int) error {
		_, _, err := apiStore.Get(perfDB, key, nil)
		return err
	}},
	{"append", true, func(key string, _ int) error {
		_, err := apiStore.Append(perfDB, key, value.MustParse(`{"name":"entry"}`), store.NoIndex, "")
		return err
	}},
	{"count", true, func(key string, _ int) error {
		_, err := apiStore.Count(perfDB, key)
		return err
	}},
	{"remove", true, func(key string, _ int) error {
		_, err := apiStore.Remove(perfDB, key, "")
		return err
	}},
	{"mixed", true, func(key string, counter int) error {
		var err error
		switch counter % 4 {
		case 0:
			_, err = apiStore.Put(perfDB, key, value.String("test"), "")
		case 1:
			_, _, err = apiStore.Get(perfDB, key, nil)
		case 2:
			_, err = apiStore.Append(perfDB, key, value.Int(int64(counter)), store.NoIndex, "")
		case 3:
			_, err = apiStore.Remove(perfDB, key, "")
		}
		return err
	}},
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "db"
	perfTestCmd.Flags().String(key, perfDB, util.WrapString("Database used for the tests (dropped afterwards)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfDB = viper.GetString("db")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return store.ValidateDBName(perfDB)
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for MikeDB servers")

	fmt.Println()
	fmt.Println("Configuration:")
	config := util.GetClientConfig()
	fmt.Println(config.String())
	fmt.Printf("Database: %s\n", perfDB)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bench := range perfBenchmarks {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bench.name) {
				return
			}

			getKey, iter := getKeys(bench.name)
			if bench.setup {
				iter(func(k string) {
					if _, err := apiStore.Put(perfDB, k, value.List(value.String("test")), ""); err != nil {
						log.Printf("(%s) - error preparing key: %v\n", bench.name, err)
					}
				})
			}
			b.Cleanup(func() {
				iter(func(k string) {
					if _, err := apiStore.Remove(perfDB, k, ""); err != nil {
						log.Printf("(%s) - error deleting key: %v\n", bench.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)
			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bench.op(getKey(counter), counter); err != nil {
						log.Printf("(%s) - error: %v\n", bench.name, err)
					}
					counter++
				}
			})
		})
		results[bench.name] = result
		printResult(bench.name, result)
	}

	if _, err := apiStore.DropDatabase(perfDB, ""); err != nil {
		log.Printf("error dropping %s: %v\n", perfDB, err)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

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

	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
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
		"Endpoint", "TimeoutSec", "Database",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, bench := range perfBenchmarks {
		result := results[bench.name]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			bench.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			config.Endpoint,
			strconv.Itoa(config.TimeoutSecond),
			perfDB,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", bench.name, err)
		}
	}

	return nil
}
