package kv

import (
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sphagnumdb/sphagnum/cmd/util"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Measures latency and throughput of a SphagnumDB cluster",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfOps              = 10000
	perfSkip             []string
)

func init() {
	flags := perfTestCmd.Flags()
	flags.String("skip", "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	flags.Int("threads", 10, util.WrapString("Number of concurrent clients"))
	flags.Int("ops", 10000, util.WrapString("Operations per benchmark, spread over all threads"))
	flags.Int("large-value-size", 100, util.WrapString("How large the value for the set-large benchmark should be (in KB)"))
	flags.Int("keys", 100, util.WrapString("How many different keys to use for the benchmarks"))
	flags.String("csv", "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfOps = max(1, viper.GetInt("ops"))
	perfSkip = util.SplitList(viper.GetString("skip"))
	return nil
}

// benchmark is one measured operation. setup and cleanup run outside of the measurement.
type benchmark struct {
	name    string
	setup   func(keys []string) error
	op      func(key string, i int) error
	cleanup func(keys []string) error
}

// result holds the measurements of one benchmark
type result struct {
	name    string
	skipped bool
	elapsed time.Duration
	timer   gometrics.Timer
	errors  gometrics.Counter
}

func setAll(value []byte) func(keys []string) error {
	return func(keys []string) error {
		for _, k := range keys {
			if err := rpcClient.Set(k, value); err != nil {
				return err
			}
		}
		return nil
	}
}

func deleteAll(keys []string) error {
	_, err := rpcClient.Delete(keys...)
	return err
}

func benchmarks() []benchmark {
	small := []byte("moss")
	large := make([]byte, perfLargeValueSizeKB*1024)

	return []benchmark{
		{name: "set", op: func(k string, _ int) error { return rpcClient.Set(k, small) }, cleanup: deleteAll},
		{name: "set-large", op: func(k string, _ int) error { return rpcClient.Set(k, large) }, cleanup: deleteAll},
		{name: "setE", op: func(k string, _ int) error { return rpcClient.SetE(k, small, 1<<32, 1<<33) }, cleanup: deleteAll},
		{name: "get", setup: setAll(small), op: func(k string, _ int) error {
			_, _, err := rpcClient.Get(k)
			return err
		}, cleanup: deleteAll},
		{name: "append", op: func(k string, _ int) error {
			_, err := rpcClient.Append(k, small)
			return err
		}, cleanup: deleteAll},
		{name: "has", setup: setAll(small), op: func(k string, _ int) error {
			_, err := rpcClient.Has(k)
			return err
		}, cleanup: deleteAll},
		{name: "has-not", op: func(k string, _ int) error {
			_, err := rpcClient.Has(k + "-missing")
			return err
		}},
		{name: "exists", setup: setAll(small), op: func(k string, _ int) error {
			_, err := rpcClient.Exists(k, k+"-missing")
			return err
		}, cleanup: deleteAll},
		{name: "delete", setup: setAll(small), op: func(k string, _ int) error {
			_, err := rpcClient.Delete(k)
			return err
		}},
		{name: "mixed", setup: setAll(small), op: func(k string, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = rpcClient.Set(k, small)
			case 1:
				_, _, err = rpcClient.Get(k)
			case 2:
				_, err = rpcClient.Delete(k)
			case 3:
				_, err = rpcClient.Has(k)
			}
			return err
		}, cleanup: deleteAll},
	}
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for SphagnumDB")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Operations: %d, Keys: %d\n\n", perfNumThreads, perfOps, perfKeySpread)

	var results []*result
	for _, b := range benchmarks() {
		r, err := measure(b)
		if err != nil {
			return fmt.Errorf("benchmark %s: %w", b.name, err)
		}
		printResult(r)
		results = append(results, r)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
	}
	return nil
}

// measure runs a benchmark with perfNumThreads workers sharing perfOps operations
func measure(b benchmark) (*result, error) {
	r := &result{
		name:    b.name,
		timer:   gometrics.NewTimer(),
		errors:  gometrics.NewCounter(),
		skipped: slices.Contains(perfSkip, b.name),
	}
	if r.skipped {
		return r, nil
	}

	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, b.name, i)
	}
	if b.setup != nil {
		if err := b.setup(keys); err != nil {
			return nil, err
		}
	}

	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i < perfOps; i += perfNumThreads {
				opStart := time.Now()
				if err := b.op(keys[i%len(keys)], i); err != nil {
					r.errors.Inc(1)
				}
				r.timer.UpdateSince(opStart)
			}
		}()
	}
	wg.Wait()
	r.elapsed = time.Since(start)

	if b.cleanup != nil {
		if err := b.cleanup(keys); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *result) opsPerSec() float64 {
	if r.elapsed <= 0 {
		return 0
	}
	return float64(r.timer.Count()) / r.elapsed.Seconds()
}

// printResult prints the result of a benchmark in a formatted way
func printResult(r *result) {
	if r.skipped {
		fmt.Printf("%-12sskipped\n", r.name)
		return
	}
	ps := r.timer.Percentiles([]float64{0.5, 0.99})
	fmt.Printf("%-12s%8.0f ops/sec  mean %-10s p50 %-10s p99 %-10s errors %d\n",
		r.name,
		r.opsPerSec(),
		time.Duration(r.timer.Mean()).Round(time.Microsecond),
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		r.errors.Count(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results []*result) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()
	header := []string{
		"Test", "Skipped", "Ops", "Errors", "OpsPerSec", "MeanNs", "P50Ns", "P99Ns",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"ShardID", "Serializer", "Transport", "Threads", "LargeValueSizeKB", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range results {
		ps := r.timer.Percentiles([]float64{0.5, 0.99})
		row := []string{
			r.name,
			strconv.FormatBool(r.skipped),
			strconv.FormatInt(r.timer.Count(), 10),
			strconv.FormatInt(r.errors.Count(), 10),
			fmt.Sprintf("%.0f", r.opsPerSec()),
			fmt.Sprintf("%.0f", r.timer.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", r.name, err)
		}
	}
	return nil
}
