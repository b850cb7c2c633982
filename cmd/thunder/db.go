package main

import (
	"github.com/spf13/cobra"

	thunder "github.com/cuemby/thunder"
)

// openDB resolves the --options flag (if any) into thunder.Options and
// opens the database at path.
func openDB(cmd *cobra.Command, path string) (*thunder.DB, error) {
	optsPath, _ := cmd.Flags().GetString("options")

	opts := thunder.DefaultOptions()
	if optsPath != "" {
		var err error
		opts, err = thunder.LoadOptionsFile(optsPath)
		if err != nil {
			return nil, err
		}
	}
	return thunder.Open(path, opts)
}
