package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/chainforge/internal/config"
	"github.com/kingrea/chainforge/internal/content"
)

func runInit(cmd *cobra.Command, _ []string) error {
	dir, err := resolveProjectDir()
	if err != nil {
		return err
	}
	if err := config.InitDir(dir); err != nil {
		return fmt.Errorf("initializing %s: %w", config.Dir, err)
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initialized %s\n", cfg.StateDir)
	fmt.Fprintf(out, "Config:  %s\n", cfg.ProjectConfigPath())
	fmt.Fprintf(out, "Library: %s\n", cfg.LibraryPath())
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.LibraryPath()
	}
	out := cmd.OutOrStdout()
	lib, err := content.LoadLibrary(path)
	if err != nil {
		fmt.Fprintf(out, "Invalid: %s\n", path)
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(out, "- %s\n", line)
		}
		return fmt.Errorf("library %s is invalid", path)
	}

	fmt.Fprintf(out, "OK: %s (%d programs, %d instruments, %d templates)\n",
		path, len(lib.Programs), len(lib.Instruments), len(lib.Templates))
	keys := make([]string, 0, len(lib.Templates))
	for _, t := range lib.Templates {
		keys = append(keys, t.Key)
	}
	sort.Strings(keys)
	var failed bool
	for _, key := range keys {
		c, err := lib.Bind(key)
		if err != nil {
			failed = true
			fmt.Fprintf(out, "- template %s: %v\n", key, err)
			continue
		}
		sm := content.NewSourceMaterial(key, c)
		counts := make([]string, 0, len(content.ProgramTypes))
		for _, t := range content.ProgramTypes {
			counts = append(counts, fmt.Sprintf("%d %s", len(sm.Programs(t)), strings.ToLower(string(t))))
		}
		fmt.Fprintf(out, "- template %s: %s, %d instruments\n", key, strings.Join(counts, ", "), len(sm.Instruments()))
	}
	if failed {
		return fmt.Errorf("library %s has templates that do not bind", path)
	}
	return nil
}
