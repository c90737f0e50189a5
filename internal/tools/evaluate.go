package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/templates"
)

// EvaluateTool handles the steward_evaluate_proposal MCP tool.
type EvaluateTool struct {
	engine      Evaluator
	charters    charter.Registry
	store       Store
	renderer    templates.Renderer
	defaultCoop string
	logger      *slog.Logger
}

// NewEvaluateTool creates an EvaluateTool. A nil store disables saving.
func NewEvaluateTool(engine Evaluator, charters charter.Registry, store Store, renderer templates.Renderer, defaultCoop string) *EvaluateTool {
	return &EvaluateTool{
		engine:      engine,
		charters:    charters,
		store:       store,
		renderer:    renderer,
		defaultCoop: defaultCoop,
		logger:      slog.Default(),
	}
}

// SetLogger replaces the default logger.
func (t *EvaluateTool) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Definition returns the MCP tool definition for steward_evaluate_proposal.
func (t *EvaluateTool) Definition() mcp.Tool {
	return mcp.NewTool("steward_evaluate_proposal",
		mcp.WithDescription(
			"Evaluate a cooperative funding proposal against the cooperative's charter. "+
				"Returns goal scores, better-scoring alternatives, missing information and a "+
				"decision (advance, revise or block) with its reasons and an audit trail.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Full proposal text, at least 20 characters"),
		),
		mcp.WithString("coop",
			mcp.Description("Cooperative id whose charter applies (default: the server's default coop)"),
		),
		mcp.WithString("proposer_wallet", mcp.Description("Proposer wallet address")),
		mcp.WithString("proposer_role",
			mcp.Description("Proposer role"),
			mcp.Enum("member", "merchant", "anchor", "bot"),
		),
		mcp.WithString("proposer_name", mcp.Description("Proposer display name")),
		mcp.WithString("region_code", mcp.Description("Region code the proposal serves")),
		mcp.WithString("region_name", mcp.Description("Human-readable region name")),
		mcp.WithString("title", mcp.Description("Declared title; overrides the one read from the text")),
		mcp.WithString("category",
			mcp.Description("Declared category"),
			mcp.Enum("grocery", "housing", "energy", "education", "health", "transport", "agriculture", "technology", "finance", "other"),
		),
		mcp.WithString("currency",
			mcp.Description("Declared currency"),
			mcp.Enum("UC", "USD", "mixed"),
		),
		mcp.WithNumber("amount_requested", mcp.Description("Declared budget amount, at least 0")),
		mcp.WithNumber("local_percent", mcp.Description("Declared local treasury share, 0-100")),
		mcp.WithNumber("national_percent", mcp.Description("Declared national treasury share, 0-100")),
		mcp.WithBoolean("save", mcp.Description("Store the result for later lookup (default: true)")),
		mcp.WithString("format",
			mcp.Description("Result format: json (default) or markdown"),
			mcp.Enum(formatJSON, formatMarkdown),
		),
	)
}

// Handle processes the steward_evaluate_proposal tool call.
func (t *EvaluateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	format, bad := formatArg(req, formatJSON)
	if bad != nil {
		return bad, nil
	}

	coop := req.GetString("coop", t.defaultCoop)
	cfg, err := t.charters.ActiveConfig(coop)
	if err != nil {
		if errors.Is(err, charter.ErrUnknownCoop) {
			return mcp.NewToolResultError(fmt.Sprintf("no charter published for coop %q", coop)), nil
		}
		return nil, fmt.Errorf("resolving charter: %w", err)
	}

	out, err := t.engine.Evaluate(ctx, inputFrom(req, text), cfg)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrValidation):
		return mcp.NewToolResultError(fmt.Sprintf("invalid proposal: %v", err)), nil
	case errors.Is(err, charter.ErrInvalidCharter):
		return mcp.NewToolResultError(fmt.Sprintf("charter for coop %q is invalid: %v", coop, err)), nil
	default:
		return nil, fmt.Errorf("evaluating proposal: %w", err)
	}

	if t.store != nil && boolArg(req, "save", true) {
		if err := t.store.Save(coop, out); err != nil {
			return nil, fmt.Errorf("saving proposal %s: %w", out.ID, err)
		}
		t.logger.Debug("proposal saved", "id", out.ID, "coop", coop)
	}

	return outputResult(t.renderer, format, out)
}

// inputFrom builds the engine input from tool arguments. Optional
// groups are only set when one of their fields is given.
func inputFrom(req mcp.CallToolRequest, text string) proposal.Input {
	in := proposal.Input{Text: text}

	wallet := req.GetString("proposer_wallet", "")
	role := req.GetString("proposer_role", "")
	name := req.GetString("proposer_name", "")
	if wallet != "" || role != "" || name != "" {
		in.Proposer = &proposal.Proposer{Wallet: wallet, Role: proposal.Role(role), DisplayName: name}
	}

	code := req.GetString("region_code", "")
	regionName := req.GetString("region_name", "")
	if code != "" || regionName != "" {
		in.Region = &proposal.Region{Code: code, Name: regionName}
	}

	d := proposal.Declared{
		Title:           req.GetString("title", ""),
		Category:        proposal.Category(req.GetString("category", "")),
		Currency:        proposal.Currency(req.GetString("currency", "")),
		AmountRequested: floatArg(req, "amount_requested"),
		LocalPercent:    floatArg(req, "local_percent"),
		NationalPercent: floatArg(req, "national_percent"),
	}
	if d != (proposal.Declared{}) {
		in.Declared = &d
	}
	return in
}
