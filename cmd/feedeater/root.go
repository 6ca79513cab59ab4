package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feedeater",
		Short: "Modular event-driven feed aggregation worker",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newModulesCmd())
	return root
}
