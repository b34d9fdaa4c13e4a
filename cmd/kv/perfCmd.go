package kv

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
	"github.com/sealkv/sealkv/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for sealKV vaults",
		Long:    "",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "__test"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfOps        = 10000
	perfSkip       = make([]string, 0)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("Number of operations per benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfNumThreads = viper.GetInt("threads")
	perfKeySpread = viper.GetInt("keys")
	perfOps = viper.GetInt("ops")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func shouldSkip(name string) bool {
	for _, s := range perfSkip {
		if s == name {
			return true
		}
	}
	return false
}

// benchmark runs op perfOps times across perfNumThreads workers and records
// every call in a go-metrics timer.
func benchmark(name string, op func(i int) error) gometrics.Timer {
	timer := gometrics.NewTimer()

	opsPerThread := perfOps / perfNumThreads

	var wg sync.WaitGroup
	wg.Add(perfNumThreads)
	for t := 0; t < perfNumThreads; t++ {
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < opsPerThread; i++ {
				n := offset + i
				start := time.Now()
				if err := op(n); err != nil {
					fmt.Printf("(%s) - error: %v\n", name, err)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t * opsPerThread)
	}
	wg.Wait()

	return timer
}

func printResult(name string, timer gometrics.Timer) {
	snap := timer.Snapshot()
	toMs := func(ns float64) float64 { return ns / float64(time.Millisecond) }

	fmt.Printf("%-15s %8d ops   mean %8.3f ms   p95 %8.3f ms   p99 %8.3f ms   %10.0f ops/s\n",
		name,
		snap.Count(),
		toMs(snap.Mean()),
		toMs(snap.Percentile(0.95)),
		toMs(snap.Percentile(0.99)),
		snap.RateMean(),
	)
}

func runPerf(cmd *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for sealKV vaults")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Ops:     %d\n", perfOps)
	fmt.Printf("Keys:    %d\n", perfKeySpread)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	testKey := func(i int) string {
		return fmt.Sprintf("%s-%d", perfKeyPrefix, i%perfKeySpread)
	}

	results := map[string]gometrics.Timer{}
	order := []string{}
	run := func(name string, op func(i int) error) {
		if shouldSkip(name) {
			return
		}
		timer := benchmark(name, op)
		results[name] = timer
		order = append(order, name)
		printResult(name, timer)
	}

	run("put", func(i int) error {
		return kvVault.PutDirect(testKey(i), int64(i), false)
	})
	run("get", func(i int) error {
		_, err := kvVault.GetDirect(testKey(i), int64(0), false)
		return err
	})
	run("put-encrypted", func(i int) error {
		return kvVault.PutDirect(testKey(i), int64(i), true)
	})
	run("get-encrypted", func(i int) error {
		_, err := kvVault.GetDirect(testKey(i), int64(0), true)
		return err
	})
	// one flush barrier at the end, timed separately: a barrier per
	// iteration would only measure the coalescing window
	if !shouldSkip("sync") {
		syncCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		start := time.Now()
		err := kvVault.Sync(syncCtx)
		cancel()
		if err != nil {
			return err
		}
		fmt.Printf("%-15s final flush took %.3f ms\n", "sync", float64(time.Since(start))/float64(time.Millisecond))
	}

	// cleanup the test keys
	for i := 0; i < perfKeySpread; i++ {
		_ = kvVault.DeleteDirect(testKey(i), false)
		_ = kvVault.DeleteDirect(testKey(i), true)
	}

	// optionally save the results as CSV
	if path := viper.GetString("csv"); path != "" {
		if err := writeCSV(path, order, results); err != nil {
			return err
		}
		fmt.Printf("results saved to %s\n", path)
	}

	return nil
}

func writeCSV(path string, order []string, results map[string]gometrics.Timer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"benchmark", "ops", "mean_ms", "p95_ms", "p99_ms", "ops_per_sec"}); err != nil {
		return err
	}

	for _, name := range order {
		snap := results[name].Snapshot()
		toMs := func(ns float64) float64 { return ns / float64(time.Millisecond) }
		row := []string{
			name,
			strconv.FormatInt(snap.Count(), 10),
			strconv.FormatFloat(toMs(snap.Mean()), 'f', 3, 64),
			strconv.FormatFloat(toMs(snap.Percentile(0.95)), 'f', 3, 64),
			strconv.FormatFloat(toMs(snap.Percentile(0.99)), 'f', 3, 64),
			strconv.FormatFloat(snap.RateMean(), 'f', 0, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
