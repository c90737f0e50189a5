package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/pipeline"
)

func newCharterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charter",
		Short: "Work with cooperative charter files",
	}
	cmd.AddCommand(newCharterValidateCommand(), newCharterDefaultCommand())
	return cmd
}

func newCharterValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a charter file against the schema and engine",
		Long: `Parse and validate a charter file. Schema and semantic errors fail the
command. Weight sums other than 1 and engine version mismatches are
printed as warnings, since the engine records them in every audit
instead of refusing to run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := charter.LoadFile(args[0])
			if err != nil {
				return err
			}
			digest, err := cfg.Digest()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ok: coop %s, %d goals, digest %s\n", cfg.CoopID, len(cfg.GoalDefinitions), digest)
			if sum := cfg.GoalWeightSum(); math.Abs(sum-1) > 1e-9 {
				fmt.Fprintf(w, "warning: goal weights sum to %.4f, not 1\n", sum)
			}
			if sum := cfg.ScoringWeightSum(); math.Abs(sum-1) > 1e-9 {
				fmt.Fprintf(w, "warning: scoring weights sum to %.4f, not 1\n", sum)
			}
			if err := cfg.CheckEngine(pipeline.EngineVersion); err != nil {
				fmt.Fprintf(w, "warning: %v\n", err)
			}
			return nil
		},
	}
}

func newCharterDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default",
		Short: "Print the built-in charter as a starting point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(charter.DefaultYAML())
			return err
		},
	}
}
