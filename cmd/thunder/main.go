package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	log "github.com/cuemby/thunder/internal/tlog"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "thunder",
	Short: "Thunder - embedded transactional key-value storage engine",
	Long: `Thunder is an embedded, single-file, transactional ordered
key-value storage engine: snapshot reads, single-writer transactions,
group-commit durability over a write-ahead log, checkpointing, and
hierarchical bucket namespaces.

This binary is a thin operator CLI over the library: open a database,
put/get/delete keys, inspect buckets, force a checkpoint, dump stats,
and run the built-in micro-benchmark.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"thunder version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("options", "", "Path to a YAML Options file (defaults applied where absent)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(bucketCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(benchCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
