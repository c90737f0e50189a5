package pipeline

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/extract"
	"github.com/HendryAvila/steward/internal/proposal"
)

func init() {
	// Freeze time for deterministic tests.
	timeNow = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
}

const groceryText = `# Community Grocery Co-op
We propose opening a member-owned grocery store in the east district, stocked with produce from local farms and local suppliers.
We request $150,000 with a 70% local / 30% national treasury split.
The store will serve 400 households and create 12 jobs within the first year.`

// testCharter is a small valid charter with weights summing to 1.
func testCharter() *charter.Config {
	return &charter.Config{
		CoopID: "testcoop",
		GoalDefinitions: []charter.GoalDefinition{
			{Key: "local_economy", Label: "Local economy", Weight: 0.4, Signal: charter.SignalLocalShare, Keywords: []string{"local", "community", "local farms"}},
			{Key: "prudence", Label: "Financial prudence", Weight: 0.3, Signal: charter.SignalBudgetEfficiency},
			{Key: "impact", Label: "Measurable impact", Weight: 0.3, Signal: charter.SignalImpactEvidence},
		},
		QuorumPercent:            20,
		ApprovalThresholdPercent: 60,
		VotingWindowDays:         7,
		ReferenceBudget:          200000,
		SectorExclusions:         []string{"gambling", "tobacco"},
	}
}

func newTestEvaluator(t *testing.T, opts Options) *Evaluator {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func evaluate(t *testing.T, e *Evaluator, in proposal.Input, cfg *charter.Config) *proposal.Output {
	t.Helper()
	out, err := e.Evaluate(context.Background(), in, cfg)
	if err != nil {
		t.Fatalf("Evaluate() error: %v", err)
	}
	return out
}

// staticExtractor returns the same draft for every call.
func staticExtractor(d proposal.StructuredDraft) extract.Extractor {
	return extract.Func(func(ctx context.Context, _ string) (proposal.StructuredDraft, error) {
		return d.Clone(), ctx.Err()
	})
}

// fullDraft is a complete, valid draft.
func fullDraft() proposal.StructuredDraft {
	return proposal.StructuredDraft{
		Title:           "Community solar",
		Summary:         "Rooftop panels on the community hall.",
		Category:        proposal.CategoryEnergy,
		Currency:        proposal.CurrencyUSD,
		AmountRequested: proposal.Float(50000),
		LocalPercent:    proposal.Float(90),
		NationalPercent: proposal.Float(10),
		ImpactClaims:    []string{"Cuts hall energy bills by 40% for 300 members."},
	}
}

func hasMissing(items []proposal.MissingDataItem, field string, blocking bool) bool {
	for _, m := range items {
		if m.Field == field && m.Blocking == blocking {
			return true
		}
	}
	return false
}

func reasonsContain(reasons []string, sub string) bool {
	for _, r := range reasons {
		if strings.Contains(r, sub) {
			return true
		}
	}
	return false
}
