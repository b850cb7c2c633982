package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <path> <key> <value>",
	Short: "Write a root-level key/value pair and commit",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		wtx := db.WriteTx()
		if err := wtx.Put([]byte(args[1]), []byte(args[2])); err != nil {
			wtx.Rollback()
			return fmt.Errorf("put failed: %w", err)
		}
		if err := wtx.Commit(); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		fmt.Println("OK")
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path> <key>",
	Short: "Read a root-level key from the latest snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		rtx := db.ReadTx()
		defer rtx.Close()

		v, err := rtx.Get([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}
		fmt.Println(string(v))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <path> <key>",
	Short: "Delete a root-level key and commit",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd, args[0])
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		wtx := db.WriteTx()
		if err := wtx.Delete([]byte(args[1])); err != nil {
			wtx.Rollback()
			return fmt.Errorf("delete failed: %w", err)
		}
		if err := wtx.Commit(); err != nil {
			return fmt.Errorf("commit failed: %w", err)
		}
		fmt.Println("OK")
		return nil
	},
}
