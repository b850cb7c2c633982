package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open (or create) a database and report its current stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		s := db.Stats()
		fmt.Printf("opened %s\n", db.Path())
		fmt.Printf("  entries:            %d (%d raw on disk)\n", s.EntryCount, s.RawEntryCount)
		fmt.Printf("  wal segments:       %d (%d bytes)\n", s.WALSegments, s.WALSize)
		fmt.Printf("  bloom:              %d bits, %d items\n", s.BloomBits, s.BloomItems)
		fmt.Printf("  last checkpoint lsn: %d\n", s.LastCheckpointLSN)
		return nil
	},
}
