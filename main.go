// Package main is the entry point for the application server.
package main

import (
	"context"
	"fmt"
	"os"

	"appserver/cmd"
)

// run executes the CLI; without a subcommand the server is started.
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"serve"}
	}

	rootCmd := cmd.NewRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SilenceErrors = true
	return rootCmd.ExecuteContext(ctx)
}

// main is the entry point.
func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
