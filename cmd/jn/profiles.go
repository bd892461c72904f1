package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jn-run/jn/internal/address"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Resolve and inspect named profiles",
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <namespace/name>",
	Short: "Resolve a profile reference and print its merged, substituted configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := address.Parse("@"+args[0], address.DirectionIn)
		if err != nil {
			return err
		}
		if addr.ProfileRef == nil {
			return fmt.Errorf("profiles show: %q is not a profile reference", args[0])
		}
		resolved, err := env.Profiles.Resolve(*addr.ProfileRef)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resolved.Config)
	},
}

func init() {
	profilesCmd.AddCommand(profilesShowCmd)
}
