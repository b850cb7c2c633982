package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	thunder "github.com/cuemby/thunder"
)

// benchValueSize, benchBatchSize and benchBatchTxs mirror the constants the
// original benchmark suite uses for its sequential/batch scenarios.
const (
	benchValueSize = 100
	benchBatchSize = 100
	benchBatchTxs  = 1000
)

var benchNumKeys int

var benchCmd = &cobra.Command{
	Use:   "bench <path>",
	Short: "Run the built-in micro-benchmark suite against a scratch database",
	Long: `bench exercises sequential writes, sequential reads, random reads,
a full iterator scan, a mixed 70/30 read/write workload, many small batch
transactions, and a few large overflow-sized values, reporting throughput
for each. The sequential-write, mixed, batch and large-value scenarios
each start from a freshly removed target file; the sequential-read,
random-read and scan scenarios run against the file the sequential writes
left behind.`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchNumKeys, "keys", 100_000, "number of keys for the sequential/read scenarios")
}

func runBench(cmd *cobra.Command, args []string) error {
	path := args[0]
	fmt.Println("=== Thunder Benchmark Suite ===")
	fmt.Printf("Keys: %d, Value size: %d bytes\n\n", benchNumKeys, benchValueSize)

	if err := benchSequentialWrites(cmd, path); err != nil {
		return err
	}
	if err := benchSequentialReads(cmd, path); err != nil {
		return err
	}
	if err := benchRandomReads(cmd, path); err != nil {
		return err
	}
	if err := benchIteratorScan(cmd, path); err != nil {
		return err
	}
	if err := benchMixedWorkload(cmd, path); err != nil {
		return err
	}
	if err := benchBatchWrites(cmd, path); err != nil {
		return err
	}
	if err := benchLargeValues(cmd, path); err != nil {
		return err
	}
	os.Remove(path)
	return nil
}

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("key_%08d", i))
}

func benchSequentialWrites(cmd *cobra.Command, path string) error {
	os.Remove(path)
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	value := make([]byte, benchValueSize)
	for i := range value {
		value[i] = 'v'
	}

	start := time.Now()
	wtx := db.WriteTx()
	for i := 0; i < benchNumKeys; i++ {
		if err := wtx.Put(benchKey(i), value); err != nil {
			wtx.Rollback()
			return err
		}
	}
	if err := wtx.Commit(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	opsPerSec := float64(benchNumKeys) / elapsed.Seconds()
	fmt.Printf("Sequential writes (%dK keys, 1 tx): %s (%.0f ops/sec)\n", benchNumKeys/1000, elapsed, opsPerSec)
	return nil
}

func benchSequentialReads(cmd *cobra.Command, path string) error {
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	warm := db.ReadTx()
	_, _ = warm.Get(benchKey(0))
	warm.Close()

	start := time.Now()
	rtx := db.ReadTx()
	for i := 0; i < benchNumKeys; i++ {
		_, _ = rtx.Get(benchKey(i))
	}
	rtx.Close()
	elapsed := time.Since(start)

	opsPerSec := float64(benchNumKeys) / elapsed.Seconds()
	fmt.Printf("Sequential reads (%dK keys): %s (%.0f ops/sec)\n", benchNumKeys/1000, elapsed, opsPerSec)
	return nil
}

func benchRandomReads(cmd *cobra.Command, path string) error {
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	indices := make([]int, benchNumKeys)
	for i := range indices {
		indices[i] = (i*7919 + 104729) % benchNumKeys
	}

	start := time.Now()
	rtx := db.ReadTx()
	for _, i := range indices {
		_, _ = rtx.Get(benchKey(i))
	}
	rtx.Close()
	elapsed := time.Since(start)

	opsPerSec := float64(benchNumKeys) / elapsed.Seconds()
	fmt.Printf("Random reads (%dK lookups): %s (%.0f ops/sec)\n", benchNumKeys/1000, elapsed, opsPerSec)
	return nil
}

func benchIteratorScan(cmd *cobra.Command, path string) error {
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	rtx := db.ReadTx()
	count := 0
	_ = rtx.Ascend(func(_, _ []byte) bool {
		count++
		return true
	})
	rtx.Close()
	elapsed := time.Since(start)

	if count != benchNumKeys {
		return fmt.Errorf("iterator scan: expected %d keys, saw %d", benchNumKeys, count)
	}

	opsPerSec := float64(benchNumKeys) / elapsed.Seconds()
	fmt.Printf("Iterator scan (%dK keys): %s (%.0f ops/sec)\n", benchNumKeys/1000, elapsed, opsPerSec)
	return nil
}

func benchMixedWorkload(cmd *cobra.Command, path string) error {
	os.Remove(path)
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	value := make([]byte, benchValueSize)
	for i := range value {
		value[i] = 'v'
	}

	const prepopulate = 10_000
	wtx := db.WriteTx()
	for i := 0; i < prepopulate; i++ {
		if err := wtx.Put(benchKey(i), value); err != nil {
			wtx.Rollback()
			return err
		}
	}
	if err := wtx.Commit(); err != nil {
		return err
	}

	const mixedOps = 10_000
	indices := make([]int, mixedOps)
	for i := range indices {
		indices[i] = (i*7919 + 104729) % prepopulate
	}

	start := time.Now()
	for opIdx, i := range indices {
		if opIdx%10 < 7 {
			rtx := db.ReadTx()
			_, _ = rtx.Get(benchKey(i))
			rtx.Close()
		} else {
			wtx := db.WriteTx()
			key := []byte(fmt.Sprintf("mixed_%08d", opIdx))
			if err := wtx.Put(key, value); err != nil {
				wtx.Rollback()
				return err
			}
			if err := wtx.Commit(); err != nil {
				return err
			}
		}
	}
	elapsed := time.Since(start)

	opsPerSec := float64(mixedOps) / elapsed.Seconds()
	fmt.Printf("Mixed workload (%dK ops, 70%% read): %s (%.0f ops/sec)\n", mixedOps/1000, elapsed, opsPerSec)
	return nil
}

func benchBatchWrites(cmd *cobra.Command, path string) error {
	os.Remove(path)
	db, err := openDB(cmd, path)
	if err != nil {
		return err
	}
	defer db.Close()

	value := make([]byte, benchValueSize)
	for i := range value {
		value[i] = 'v'
	}

	start := time.Now()
	for txIdx := 0; txIdx < benchBatchTxs; txIdx++ {
		wtx := db.WriteTx()
		for opIdx := 0; opIdx < benchBatchSize; opIdx++ {
			key := []byte(fmt.Sprintf("batch_%06d_%04d", txIdx, opIdx))
			if err := wtx.Put(key, value); err != nil {
				wtx.Rollback()
				return err
			}
		}
		if err := wtx.Commit(); err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	totalOps := benchBatchTxs * benchBatchSize
	opsPerSec := float64(totalOps) / elapsed.Seconds()
	txPerSec := float64(benchBatchTxs) / elapsed.Seconds()
	fmt.Printf("Batch writes (%dK tx, %d ops/tx): %s (%.0f ops/sec, %.0f tx/sec)\n",
		benchBatchTxs/1000, benchBatchSize, elapsed, opsPerSec, txPerSec)
	return nil
}

func benchLargeValues(cmd *cobra.Command, path string) error {
	sizes := []struct {
		bytes int
		label string
	}{
		{1024, "1KB"},
		{10 * 1024, "10KB"},
		{100 * 1024, "100KB"},
		{1024 * 1024, "1MB"},
	}

	const numLarge = 100

	for _, sz := range sizes {
		os.Remove(path)

		opts := thunder.DefaultOptions()
		if sz.bytes >= 100*1024 {
			opts.LargeValueOptimized = true
		}
		db, err := thunder.Open(path, opts)
		if err != nil {
			return err
		}

		value := make([]byte, sz.bytes)
		for i := range value {
			value[i] = 'x'
		}

		start := time.Now()
		wtx := db.WriteTx()
		for i := 0; i < numLarge; i++ {
			key := []byte(fmt.Sprintf("large_%04d", i))
			if err := wtx.Put(key, value); err != nil {
				wtx.Rollback()
				db.Close()
				return err
			}
		}
		if err := wtx.Commit(); err != nil {
			db.Close()
			return err
		}
		elapsed := time.Since(start)
		db.Close()

		totalBytes := numLarge * sz.bytes
		mbPerSec := (float64(totalBytes) / (1024.0 * 1024.0)) / elapsed.Seconds()
		fmt.Printf("Large values (%d x %s): %s (%.1f MB/sec)\n", numLarge, sz.label, elapsed, mbPerSec)
	}
	return nil
}
