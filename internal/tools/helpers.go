// Package tools implements the Steward MCP tool handlers.
//
// Each tool is a struct with its dependencies injected through its
// constructor. Definition returns the mcp.Tool schema and Handle serves
// a call. Caller mistakes (bad arguments, unknown ids, invalid
// proposals) come back as tool errors; only infrastructure failures are
// returned as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
)

// Evaluator runs the evaluation pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, in proposal.Input, cfg *charter.Config) (*proposal.Output, error)
}

// Store persists and queries evaluated proposals.
type Store interface {
	Save(coopID string, out *proposal.Output) error
	Get(id string) (*proposal.Output, error)
	Recent(coopID string, limit int) ([]store.Summary, error)
	Search(query string, opts store.SearchOptions) ([]store.SearchResult, error)
	Stats() (*store.Stats, error)
}

var (
	_ Store     = (*store.Store)(nil)
	_ Evaluator = (*pipeline.Evaluator)(nil)
)

// Output formats.
const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// floatArg returns nil when key is absent so optional numbers stay
// distinguishable from zero.
func floatArg(req mcp.CallToolRequest, key string) *float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return nil
	}
	return proposal.Float(v)
}

// formatArg reads the "format" argument. The second return is non-nil
// when the value is not supported.
func formatArg(req mcp.CallToolRequest, defaultVal string) (string, *mcp.CallToolResult) {
	f := req.GetString("format", defaultVal)
	switch f {
	case formatJSON, formatMarkdown:
		return f, nil
	default:
		return "", mcp.NewToolResultError(fmt.Sprintf("unsupported format %q: use json or markdown", f))
	}
}

// jsonResult marshals v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// renderResult renders data with the named template.
func renderResult(r templates.Renderer, name string, data any) (*mcp.CallToolResult, error) {
	text, err := r.Render(name, data)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}

// outputResult formats one evaluation record.
func outputResult(r templates.Renderer, format string, out *proposal.Output) (*mcp.CallToolResult, error) {
	if format == formatMarkdown {
		return renderResult(r, templates.Report, templates.NewReportData(out))
	}
	return jsonResult(out)
}

func listRows(summaries []store.Summary) []templates.ListRow {
	rows := make([]templates.ListRow, len(summaries))
	for i, s := range summaries {
		rows[i] = templates.ListRow{
			ID:        s.ID,
			CoopID:    s.CoopID,
			Title:     s.Title,
			Decision:  s.Decision,
			Status:    s.Status,
			Composite: s.Composite,
			CreatedAt: s.CreatedAt,
		}
	}
	return rows
}

func parseDecision(s string) (proposal.Decision, bool) {
	switch d := proposal.Decision(s); d {
	case "", proposal.DecisionAdvance, proposal.DecisionRevise, proposal.DecisionBlock:
		return d, true
	}
	return "", false
}
