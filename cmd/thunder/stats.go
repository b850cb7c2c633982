package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	thunder "github.com/cuemby/thunder"
)

var statsWatchInterval time.Duration

func init() {
	statsCmd.Flags().DurationVar(&statsWatchInterval, "watch", 0,
		"keep sampling counters into the Prometheus registry at this interval until interrupted (e.g. --watch=5s)")
}

var statsCmd = &cobra.Command{
	Use:   "stats <path>",
	Short: "Print database counters (entries, WAL size, bloom filter, checkpoint LSN)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		printStats(db.Stats())

		if statsWatchInterval <= 0 {
			return nil
		}

		collector := db.Collector(statsWatchInterval)
		collector.Start()
		defer collector.Stop()

		fmt.Printf("\nwatching every %s, press ctrl-c to stop\n", statsWatchInterval)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		<-sig
		printStats(db.Stats())
		return nil
	},
}

func printStats(s thunder.Stats) {
	fmt.Printf("entries:             %d\n", s.EntryCount)
	fmt.Printf("raw entries on disk: %d\n", s.RawEntryCount)
	fmt.Printf("wal segments:        %d\n", s.WALSegments)
	fmt.Printf("wal size (bytes):    %d\n", s.WALSize)
	fmt.Printf("bloom bits:          %d\n", s.BloomBits)
	fmt.Printf("bloom items:         %d\n", s.BloomItems)
	fmt.Printf("overflow next page:  %d\n", s.OverflowNextPage)
	fmt.Printf("last checkpoint lsn: %d\n", s.LastCheckpointLSN)
	fmt.Printf("active read tx:      %d\n", s.ActiveReadTx)
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <path>",
	Short: "Force a full checkpoint and WAL truncation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Checkpoint(); err != nil {
			return fmt.Errorf("checkpoint failed: %w", err)
		}
		fmt.Println("checkpoint complete")
		return nil
	},
}
