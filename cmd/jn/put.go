package main

import (
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <address>",
	Short: "Read NDJSON records from stdin and write them to an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rr := env.Put(cmd.Context(), args[0], cmd.InOrStdin(), cmd.ErrOrStderr())
		return rr.Err
	},
}
