package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ariarun/aria/internal/registry"
)

func buildToolsCmd(manifestsDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the registered tool set",
	}
	cmd.AddCommand(buildToolsListCmd(manifestsDir))
	return cmd
}

func buildToolsListCmd(manifestsDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered tool manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listTools(cmd, *manifestsDir)
		},
	}
}

func listTools(cmd *cobra.Command, manifestsDir string) error {
	reg := registry.New()
	if mErr := reg.LoadDir(manifestsDir); mErr != nil {
		return exitErr(exitUserError, mErr)
	}

	names := reg.Names()
	sort.Strings(names)

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		fmt.Fprintln(out, "no tools registered")
		return nil
	}
	for _, name := range names {
		m, _ := reg.Get(name)
		fmt.Fprintf(out, "%s\t%s\t%s\n", m.Name, m.Version, m.Description)
	}
	return nil
}
