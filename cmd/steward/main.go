// Steward: cooperative proposal evaluation engine.
//
// Scores funding proposals against a cooperative's charter, proposes
// stronger alternatives, lists what the author still has to answer and
// decides whether the proposal is ready for a member vote.
//
// Usage:
//
//	steward serve                     # MCP server on stdio
//	steward evaluate -f proposal.md   # evaluate once and print the result
//	steward charter validate c.yaml   # check a charter file
//	steward version
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/steward/internal/config"
	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/server"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "steward",
		Short: "Evaluate cooperative funding proposals against a charter",
		Long: `Steward scores proposals against the cooperative's mission goals,
suggests better-scoring variants, asks for missing information and
decides whether a proposal should advance to a vote, be revised or be
blocked.

Settings come from STEWARD_* environment variables; see the README.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newEvaluateCommand(),
		newCharterCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the steward and engine versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "steward %s (%s)\n", server.Version, pipeline.EngineVersionString())
			return err
		},
	}
}

// loadConfig reads the environment and builds the process logger,
// which writes to w. stdout belongs to the MCP transport and to
// command output.
func loadConfig(w io.Writer) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Logger(w)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
