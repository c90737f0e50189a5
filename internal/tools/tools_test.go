package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/pipeline"
	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/store"
	"github.com/HendryAvila/steward/internal/templates"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

const (
	solarText   = "# Rooftop solar for the community hall\nInstall solar panels on the hall roof. We request $40,000 with 80% local / 20% national. It will cut energy bills for 300 members."
	groceryText = "# Neighbourhood grocery\nOpen a member-owned grocery store selling produce from local farms. We request $120,000 with a 70% local / 30% national split. It will serve 400 households."
)

type fixture struct {
	store    *store.Store
	charters *charter.StaticRegistry
	engine   *pipeline.Evaluator
	renderer templates.Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(store.Config{DataDir: t.TempDir(), MaxSearchResults: 20})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	reg, err := charter.NewStaticRegistry(charter.Default())
	if err != nil {
		t.Fatalf("NewStaticRegistry: %v", err)
	}
	engine, err := pipeline.New(pipeline.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	r, err := templates.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return &fixture{store: s, charters: reg, engine: engine, renderer: r}
}

func (f *fixture) evaluateTool() *EvaluateTool {
	return NewEvaluateTool(f.engine, f.charters, f.store, f.renderer, "default")
}

// evaluate runs steward_evaluate_proposal and decodes the JSON result.
func (f *fixture) evaluate(t *testing.T, args map[string]interface{}) *proposal.Output {
	t.Helper()
	res, err := f.evaluateTool().Handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}
	var out proposal.Output
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return &out
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func hasProperty(def mcp.Tool, name string) bool {
	_, ok := def.InputSchema.Properties[name]
	return ok
}

func isRequired(def mcp.Tool, name string) bool {
	for _, r := range def.InputSchema.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
		props    []string
	}{
		{f.evaluateTool().Definition(), "steward_evaluate_proposal", []string{"text"}, []string{"coop", "region_code", "amount_requested", "local_percent", "save", "format"}},
		{NewGetProposalTool(f.store, f.renderer).Definition(), "steward_get_proposal", []string{"id"}, []string{"format"}},
		{NewListProposalsTool(f.store, f.renderer).Definition(), "steward_list_proposals", nil, []string{"coop", "limit"}},
		{NewSearchProposalsTool(f.store, f.renderer).Definition(), "steward_search_proposals", []string{"query"}, []string{"coop", "decision", "limit"}},
		{NewGetCharterTool(f.charters, "default").Definition(), "steward_get_charter", nil, []string{"coop"}},
	}
	for _, tt := range tests {
		if tt.def.Name != tt.name {
			t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
		}
		for _, r := range tt.required {
			if !isRequired(tt.def, r) {
				t.Errorf("%s: %q should be required", tt.name, r)
			}
		}
		for _, p := range tt.props {
			if !hasProperty(tt.def, p) {
				t.Errorf("%s: missing %q parameter", tt.name, p)
			}
		}
	}
}

// ─── EvaluateTool ────────────────────────────────────────────────────────────

func TestEvaluateTool_EvaluatesAndSaves(t *testing.T) {
	f := newFixture(t)
	out := f.evaluate(t, map[string]interface{}{"text": groceryText})

	if !strings.HasPrefix(out.ID, "prop_") {
		t.Errorf("ID = %q, want prop_ prefix", out.ID)
	}
	if out.CoopID != "default" {
		t.Errorf("CoopID = %q, want default", out.CoopID)
	}
	if len(out.DecisionReasons) == 0 {
		t.Error("no decision reasons")
	}

	stored, err := f.store.Get(out.ID)
	if err != nil {
		t.Fatalf("stored proposal: %v", err)
	}
	if stored.Audit.RecordDigest != out.Audit.RecordDigest {
		t.Error("stored record differs from the returned one")
	}
}

func TestEvaluateTool_SaveFalse(t *testing.T) {
	f := newFixture(t)
	out := f.evaluate(t, map[string]interface{}{"text": solarText, "save": false})
	if _, err := f.store.Get(out.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after save=false = %v, want ErrNotFound", err)
	}
}

func TestEvaluateTool_NilStoreSkipsSaving(t *testing.T) {
	f := newFixture(t)
	tool := NewEvaluateTool(f.engine, f.charters, nil, f.renderer, "default")
	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"text": solarText}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Errorf("tool error: %s", resultText(res))
	}
}

func TestEvaluateTool_DeclaredFieldsAndContext(t *testing.T) {
	f := newFixture(t)
	out := f.evaluate(t, map[string]interface{}{
		"text":             "We want to open a small bakery run by members near the market square.",
		"title":            "Member bakery",
		"category":         "grocery",
		"currency":         "USD",
		"amount_requested": float64(30000),
		"local_percent":    float64(60),
		"national_percent": float64(40),
		"region_code":      "east",
		"region_name":      "East District",
		"proposer_role":    "member",
		"proposer_name":    "Ana",
	})

	if out.Title != "Member bakery" {
		t.Errorf("Title = %q, want declared title", out.Title)
	}
	if out.Budget.AmountRequested == nil || *out.Budget.AmountRequested != 30000 {
		t.Errorf("AmountRequested = %v, want 30000", out.Budget.AmountRequested)
	}
	if out.TreasuryPlan.LocalPercent == nil || *out.TreasuryPlan.LocalPercent != 60 {
		t.Errorf("LocalPercent = %v, want 60", out.TreasuryPlan.LocalPercent)
	}
	if out.Region == nil || out.Region.Code != "east" {
		t.Errorf("Region = %+v, want east", out.Region)
	}
	if out.Proposer == nil || out.Proposer.DisplayName != "Ana" {
		t.Errorf("Proposer = %+v, want Ana", out.Proposer)
	}
}

func TestEvaluateTool_Markdown(t *testing.T) {
	f := newFixture(t)
	res, err := f.evaluateTool().Handle(context.Background(), makeReq(map[string]interface{}{
		"text":   groceryText,
		"format": "markdown",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	for _, want := range []string{"# Neighbourhood grocery", "**Decision:**", "## Goal Scores", "## Audit"} {
		if !strings.Contains(text, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestEvaluateTool_UserErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		args    map[string]interface{}
		wantMsg string
	}{
		{"missing text", map[string]interface{}{}, "'text' is required"},
		{"short text", map[string]interface{}{"text": "too short"}, "invalid proposal"},
		{"bad role", map[string]interface{}{"text": groceryText, "proposer_role": "king"}, "invalid proposal"},
		{"split not 100", map[string]interface{}{"text": groceryText, "local_percent": float64(70), "national_percent": float64(20)}, "invalid proposal"},
		{"unknown coop", map[string]interface{}{"text": groceryText, "coop": "atlantis"}, "no charter published"},
		{"bad format", map[string]interface{}{"text": groceryText, "format": "pdf"}, "unsupported format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.evaluateTool().Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("Handle returned Go error: %v", err)
			}
			if !res.IsError {
				t.Fatalf("expected tool error, got %s", resultText(res))
			}
			if !strings.Contains(resultText(res), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", resultText(res), tt.wantMsg)
			}
		})
	}

	stats, err := f.store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalProposals != 0 {
		t.Errorf("rejected calls stored %d proposals", stats.TotalProposals)
	}
}

func TestEvaluateTool_CancelledContextIsGoError(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.evaluateTool().Handle(ctx, makeReq(map[string]interface{}{"text": groceryText}))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Handle error = %v, want context.Canceled", err)
	}
}

type failingStore struct{ Store }

func (failingStore) Save(string, *proposal.Output) error { return errors.New("disk full") }

func TestEvaluateTool_SaveFailureIsGoError(t *testing.T) {
	f := newFixture(t)
	tool := NewEvaluateTool(f.engine, f.charters, failingStore{f.store}, f.renderer, "default")
	_, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"text": groceryText}))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Handle error = %v, want disk full", err)
	}
}

func TestInputFrom_OmitsEmptyGroups(t *testing.T) {
	in := inputFrom(makeReq(map[string]interface{}{}), groceryText)
	if in.Proposer != nil || in.Region != nil || in.Declared != nil {
		t.Errorf("inputFrom(no args) = %+v, want only text", in)
	}

	in = inputFrom(makeReq(map[string]interface{}{"amount_requested": float64(0)}), groceryText)
	if in.Declared == nil || in.Declared.AmountRequested == nil || *in.Declared.AmountRequested != 0 {
		t.Errorf("declared zero amount lost: %+v", in.Declared)
	}
}

// ─── GetProposalTool ─────────────────────────────────────────────────────────

func TestGetProposalTool(t *testing.T) {
	f := newFixture(t)
	out := f.evaluate(t, map[string]interface{}{"text": solarText})
	tool := NewGetProposalTool(f.store, f.renderer)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": out.ID}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var got proposal.Output
	if err := json.Unmarshal([]byte(resultText(res)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.ID != out.ID || got.Decision != out.Decision {
		t.Errorf("got %s/%s, want %s/%s", got.ID, got.Decision, out.ID, out.Decision)
	}

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"id": out.ID, "format": "markdown"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resultText(res), out.ID) {
		t.Error("markdown report missing the proposal id")
	}
}

func TestGetProposalTool_Errors(t *testing.T) {
	f := newFixture(t)
	tool := NewGetProposalTool(f.store, f.renderer)

	for name, args := range map[string]map[string]interface{}{
		"missing id": {},
		"unknown id": {"id": "prop_zzzzzz"},
	} {
		res, err := tool.Handle(context.Background(), makeReq(args))
		if err != nil {
			t.Fatalf("%s: Go error %v", name, err)
		}
		if !res.IsError {
			t.Errorf("%s: expected tool error", name)
		}
	}
}

// ─── ListProposalsTool ───────────────────────────────────────────────────────

func TestListProposalsTool(t *testing.T) {
	f := newFixture(t)
	solar := f.evaluate(t, map[string]interface{}{"text": solarText})
	grocery := f.evaluate(t, map[string]interface{}{"text": groceryText})
	tool := NewListProposalsTool(f.store, f.renderer)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	for _, want := range []string{"# Recent proposals", solar.ID, grocery.ID, "Totals:"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing missing %q:\n%s", want, text)
		}
	}

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"format": "json", "limit": float64(1)}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var got listResult
	if err := json.Unmarshal([]byte(resultText(res)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got.Proposals) != 1 {
		t.Errorf("limit 1 returned %d proposals", len(got.Proposals))
	}
	if got.Stats == nil || got.Stats.TotalProposals != 2 {
		t.Errorf("Stats = %+v, want 2 total", got.Stats)
	}
}

func TestListProposalsTool_CoopFilterHasNoTotals(t *testing.T) {
	f := newFixture(t)
	f.evaluate(t, map[string]interface{}{"text": solarText})
	tool := NewListProposalsTool(f.store, f.renderer)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"coop": "elsewhere"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	if !strings.Contains(text, "No proposals found.") {
		t.Errorf("expected empty listing:\n%s", text)
	}
	if strings.Contains(text, "Totals:") {
		t.Error("filtered listing printed global totals")
	}
}

// ─── SearchProposalsTool ─────────────────────────────────────────────────────

func TestSearchProposalsTool(t *testing.T) {
	f := newFixture(t)
	solar := f.evaluate(t, map[string]interface{}{"text": solarText})
	f.evaluate(t, map[string]interface{}{"text": groceryText})
	tool := NewSearchProposalsTool(f.store, f.renderer)

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "solar", "format": "json"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var got []store.SearchResult
	if err := json.Unmarshal([]byte(resultText(res)), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(got) != 1 || got[0].ID != solar.ID {
		t.Errorf("search(solar) = %+v, want only %s", got, solar.ID)
	}

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "solar"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(resultText(res), "# Search: solar") {
		t.Errorf("markdown heading missing:\n%s", resultText(res))
	}

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"query": "windmill", "format": "json"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if strings.TrimSpace(resultText(res)) != "[]" {
		t.Errorf("no-match json = %q, want []", resultText(res))
	}
}

func TestSearchProposalsTool_Validation(t *testing.T) {
	f := newFixture(t)
	tool := NewSearchProposalsTool(f.store, f.renderer)
	for name, args := range map[string]map[string]interface{}{
		"missing query": {},
		"bad decision":  {"query": "solar", "decision": "maybe"},
	} {
		res, err := tool.Handle(context.Background(), makeReq(args))
		if err != nil {
			t.Fatalf("%s: Go error %v", name, err)
		}
		if !res.IsError {
			t.Errorf("%s: expected tool error", name)
		}
	}
}

// ─── GetCharterTool ──────────────────────────────────────────────────────────

func TestGetCharterTool(t *testing.T) {
	f := newFixture(t)
	tool := NewGetCharterTool(f.charters, "default")

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := resultText(res)
	want, err := charter.Default().Digest()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(text, "# digest: "+want+"\n") {
		t.Errorf("charter text does not start with its digest:\n%s", text)
	}
	if _, err := charter.Parse([]byte(text)); err != nil {
		t.Errorf("charter text does not parse back: %v", err)
	}

	res, err = tool.Handle(context.Background(), makeReq(map[string]interface{}{"coop": "atlantis"}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Error("unknown coop should be a tool error")
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func TestParseDecision(t *testing.T) {
	for in, ok := range map[string]bool{"": true, "advance": true, "revise": true, "block": true, "maybe": false} {
		if _, got := parseDecision(in); got != ok {
			t.Errorf("parseDecision(%q) ok = %v, want %v", in, got, ok)
		}
	}
}

func TestFloatArg(t *testing.T) {
	req := makeReq(map[string]interface{}{"n": float64(2.5), "s": "x"})
	if v := floatArg(req, "n"); v == nil || *v != 2.5 {
		t.Errorf("floatArg(n) = %v, want 2.5", v)
	}
	if floatArg(req, "s") != nil || floatArg(req, "missing") != nil {
		t.Error("non-number arguments should be nil")
	}
}
