package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	projectDir  string
	libraryPath string

	craftSeconds  float64
	craftSeed     int64
	craftOut      string
	craftTemplate string

	runTemplates []string
	runTUI       bool
	runPreview   bool

	rootCmd = &cobra.Command{
		Use:   "chainforge",
		Short: "Fabricate endless generative music chains segment by segment",
		Long: `chainforge crafts the segments of long running music chains ahead of
playback, using the programs and instruments of a content library, and
hands each crafted segment to dub.`,
		SilenceUsage: true,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the .chainforge directory with a default config",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [library.yaml]",
		Short: "Load a content library and report problems",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}

	craftCmd = &cobra.Command{
		Use:   "craft",
		Short: "Craft a fixed length of one chain in memory and dub it to JSON",
		Args:  cobra.NoArgs,
		RunE:  runCraft,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start chains and keep them fabricated ahead of playback",
		Args:  cobra.NoArgs,
		RunE:  runService,
	}

	monitorCmd = &cobra.Command{
		Use:   "monitor",
		Short: "Watch the chains of a running service from its store and journal",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}
)

// init() wires flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", "", "Project directory (defaults to the working directory)")
	rootCmd.PersistentFlags().StringVar(&libraryPath, "library", "", "Content library file (overrides the config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.AddCommand(craftCmd)
	craftCmd.Flags().Float64Var(&craftSeconds, "seconds", 60, "Seconds of chain time to craft")
	craftCmd.Flags().Int64Var(&craftSeed, "seed", 0, "Chain seed (0 uses the template seed, then the clock)")
	craftCmd.Flags().StringVar(&craftOut, "out", "", "Directory for dubbed segment plans (defaults to .chainforge/dub)")
	craftCmd.Flags().StringVarP(&craftTemplate, "template", "t", "", "Template key")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVarP(&runTemplates, "template", "t", nil, "Start a new chain for each template key")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the monitor while running")
	runCmd.Flags().BoolVar(&runPreview, "preview", false, "Start new chains as Preview chains (draft content allowed)")

	rootCmd.AddCommand(monitorCmd)
}
