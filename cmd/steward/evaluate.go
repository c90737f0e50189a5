package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/server"
	"github.com/HendryAvila/steward/internal/templates"
)

// evaluateFlags holds the flags for the evaluate command.
type evaluateFlags struct {
	file   string
	coop   string
	format string
	save   bool
	region string
}

func newEvaluateCommand() *cobra.Command {
	flags := &evaluateFlags{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one proposal and print the result",
		Long: `Evaluate a proposal read from --file or stdin against the charter of
--coop and print the full evaluation record.

Examples:
  # Evaluate a markdown proposal against the default charter
  steward evaluate -f proposal.md

  # Read from stdin, print a markdown report and keep the record
  cat proposal.md | steward evaluate --coop riverside --format markdown --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "Read the proposal from this file instead of stdin")
	cmd.Flags().StringVar(&flags.coop, "coop", "", "Cooperative id (default: STEWARD_DEFAULT_COOP)")
	cmd.Flags().StringVar(&flags.format, "format", "json", "Output format: json or markdown")
	cmd.Flags().BoolVar(&flags.save, "save", false, "Store the evaluation record")
	cmd.Flags().StringVar(&flags.region, "region", "", "Region code the proposal serves")

	return cmd
}

func runEvaluate(cmd *cobra.Command, flags *evaluateFlags) error {
	if flags.format != "json" && flags.format != "markdown" {
		return fmt.Errorf("unsupported format %q: use json or markdown", flags.format)
	}
	text, err := readProposal(cmd.InOrStdin(), flags.file)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	rt, cleanup, err := server.NewRuntime(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	coop := flags.coop
	if coop == "" {
		coop = cfg.DefaultCoop
	}
	charterCfg, err := rt.Charters.ActiveConfig(coop)
	if err != nil {
		return err
	}

	in := proposal.Input{Text: text}
	if flags.region != "" {
		in.Region = &proposal.Region{Code: flags.region}
	}
	out, err := rt.Engine.Evaluate(cmd.Context(), in, charterCfg)
	if err != nil {
		return err
	}

	if flags.save {
		if rt.Store == nil {
			return errors.New("proposal store is unavailable; see the warning above")
		}
		if err := rt.Store.Save(coop, out); err != nil {
			return fmt.Errorf("saving proposal: %w", err)
		}
		logger.Info("proposal saved", "id", out.ID, "coop", coop)
	}

	w := cmd.OutOrStdout()
	if flags.format == "markdown" {
		report, err := rt.Renderer.Render(templates.Report, templates.NewReportData(out))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, report)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func readProposal(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading proposal: %w", err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no proposal text given: pass --file or pipe it on stdin")
	}
	return text, nil
}
