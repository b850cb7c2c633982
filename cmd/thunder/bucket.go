package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Manage hierarchical bucket namespaces",
}

var bucketCreateCmd = &cobra.Command{
	Use:   "create <path> <bucket...>",
	Short: "Create a bucket (additional args nest it inside the previous one)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		wtx := db.WriteTx()
		if err := wtx.CreateBucket(args[1:]...); err != nil {
			wtx.Rollback()
			return fmt.Errorf("create bucket failed: %w", err)
		}
		if err := wtx.Commit(); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		fmt.Println("OK")
		return nil
	},
}

var bucketDeleteCmd = &cobra.Command{
	Use:   "delete <path> <bucket...>",
	Short: "Delete a bucket and everything stored beneath it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		wtx := db.WriteTx()
		if err := wtx.DeleteBucket(args[1:]...); err != nil {
			wtx.Rollback()
			return fmt.Errorf("delete bucket failed: %w", err)
		}
		if err := wtx.Commit(); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		fmt.Println("OK")
		return nil
	},
}

var bucketListCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "List every top-level bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		rtx := db.ReadTx()
		defer rtx.Close()

		for _, name := range rtx.Buckets() {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	bucketCmd.AddCommand(bucketCreateCmd)
	bucketCmd.AddCommand(bucketDeleteCmd)
	bucketCmd.AddCommand(bucketListCmd)
}
