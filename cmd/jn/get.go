package main

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <address>",
	Short: "Read an address and stream NDJSON records to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rr := env.Get(cmd.Context(), args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		return rr.Err
	},
}
