package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jhacksman/FeedEater-sub001/module"
)

func newModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Inspect module manifests",
	}
	cmd.AddCommand(newModulesListCmd())
	return cmd
}

func newModulesListCmd() *cobra.Command {
	var modulesDir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover module manifests and print a summary table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModulesList(modulesDir)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "/app/modules", "Root directory to discover module manifests under")
	return cmd
}

func runModulesList(modulesDir string) error {
	manifests, failed, err := module.Discover(modulesDir)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("discover modules: %w", err)}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODULE\tJOBS\tSCHEDULES")
	for _, m := range manifests {
		var jobs, schedules []string
		for _, j := range m.Jobs {
			jobs = append(jobs, j.Queue+"/"+j.Name)
			if j.Schedule != "" {
				schedules = append(schedules, j.Schedule)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, strings.Join(jobs, ","), strings.Join(schedules, ","))
	}
	w.Flush()

	for name, ferr := range failed {
		fmt.Fprintf(os.Stderr, "failed to load manifest for %s: %v\n", name, ferr)
	}
	return nil
}
