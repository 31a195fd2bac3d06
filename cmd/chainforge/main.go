// cmd/chainforge/main.go
//
// Entry point for the chainforge CLI. Every subcommand works against the
// project in the current directory (or --dir) and its .chainforge/ folder.

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
