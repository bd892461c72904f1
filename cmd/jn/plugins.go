package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jn-run/jn/pkg/jnplugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect the discovered plugin registry",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every discovered plugin, grouped by role",
	RunE: func(cmd *cobra.Command, args []string) error {
		byRole := env.Registry().All()
		var roles []jnplugin.Role
		for role := range byRole {
			roles = append(roles, role)
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })

		out := cmd.OutOrStdout()
		for _, role := range roles {
			fmt.Fprintf(out, "%s:\n", role)
			for _, d := range byRole[role] {
				fmt.Fprintf(out, "  %-20s %-10s tier=%s modes=%v\n", d.Name, d.Version, d.Tier, d.Modes)
			}
		}
		return nil
	},
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
}
