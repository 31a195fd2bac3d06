package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/config"
)

// resolveProjectDir returns --dir, or the working directory.
func resolveProjectDir() (string, error) {
	if dir := strings.TrimSpace(projectDir); dir != "" {
		return filepath.Abs(dir)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return cwd, nil
}

// loadConfig reads the project config, applying --library.
func loadConfig() (*config.Config, error) {
	dir, err := resolveProjectDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(dir)
	if err != nil {
		return nil, err
	}
	if lib := strings.TrimSpace(libraryPath); lib != "" {
		abs, err := filepath.Abs(lib)
		if err != nil {
			return nil, fmt.Errorf("resolving library path: %w", err)
		}
		cfg.Project.Library = abs
	}
	return cfg, nil
}

// openStore opens the chain store the config selects.
func openStore(cfg *config.Config) (chain.Store, error) {
	switch cfg.Project.Store.Driver {
	case "memory":
		return chain.NewMemoryStore(), nil
	case "sqlite", "":
		path := cfg.Project.Store.Path
		if path == "" {
			path = filepath.Join(cfg.StateDir, "state", "chains.db")
		}
		return chain.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Project.Store.Driver)
	}
}

func templateKey(key string) string {
	if key = strings.TrimSpace(key); key != "" {
		return key
	}
	return config.DefaultTemplate
}
