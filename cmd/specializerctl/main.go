// Package main provides specializerctl, an offline companion to the
// specializer service for producing and checking workflows from the shell.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const appName = "specializerctl"

// version is set at build time.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Specialize conversational agent workflows offline",
		Long: `specializerctl runs the workflow specialization pipeline without the
service: it binds credentials, writes the agent instructions and scheduling
policy, assigns a webhook and validates the result.

Request, schedule and template files may be YAML or JSON.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			_ = level.UnmarshalText([]byte(logLevel))
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newSpecializeCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newStripCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
		},
	})

	return cmd
}
