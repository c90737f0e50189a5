package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

const (
	budgetReduction  = 0.25
	pilotShare       = 0.5
	localShareTarget = 80.0
)

const (
	pilotClaim  = "Phase 1 pilot with a milestone review before the remaining budget is released."
	targetClaim = "Report progress against at least 3 numeric targets every 90 days."
)

// authoredClaims are the claims strategies add on the proposer's
// behalf. They are commitments, not evidence, and scoring skips them.
var authoredClaims = map[string]bool{
	pilotClaim:  true,
	targetClaim: true,
}

// strategy rewrites a cloned draft in place. ok is false when the
// strategy does not apply to this draft.
type strategy struct {
	label string
	apply func(d *proposal.StructuredDraft) (changes []string, rationale string, ok bool)
}

var strategies = []strategy{
	{label: "Reduced budget", apply: reduceBudget},
	{label: "Higher local share", apply: raiseLocalShare},
	{label: "Phased pilot", apply: phaseScope},
	{label: "Measurable targets", apply: addTargets},
}

func reduceBudget(d *proposal.StructuredDraft) ([]string, string, bool) {
	if d.AmountRequested == nil || *d.AmountRequested <= 0 {
		return nil, "", false
	}
	from := *d.AmountRequested
	to := from * (1 - budgetReduction)
	d.AmountRequested = proposal.Float(to)
	return []string{fmt.Sprintf("budget.amountRequested: %s -> %s", num(from), num(to))},
		"A smaller request is easier for the treasury to absorb and scores higher on financial prudence.", true
}

func raiseLocalShare(d *proposal.StructuredDraft) ([]string, string, bool) {
	if d.LocalPercent == nil || d.NationalPercent == nil || *d.LocalPercent >= localShareTarget {
		return nil, "", false
	}
	fromL, fromN := *d.LocalPercent, *d.NationalPercent
	d.LocalPercent = proposal.Float(localShareTarget)
	d.NationalPercent = proposal.Float(100 - localShareTarget)
	return []string{
			fmt.Sprintf("treasuryPlan.localPercent: %s -> %s", num(fromL), num(localShareTarget)),
			fmt.Sprintf("treasuryPlan.nationalPercent: %s -> %s", num(fromN), num(100-localShareTarget)),
		},
		"Keeping more of the funds in the local treasury strengthens local economic impact.", true
}

func phaseScope(d *proposal.StructuredDraft) ([]string, string, bool) {
	if d.AmountRequested == nil || *d.AmountRequested <= 0 {
		return nil, "", false
	}
	from := *d.AmountRequested
	to := from * pilotShare
	d.AmountRequested = proposal.Float(to)
	d.ImpactClaims = append(d.ImpactClaims, pilotClaim)
	return []string{
			fmt.Sprintf("budget.amountRequested: %s -> %s (pilot phase)", num(from), num(to)),
			"impactClaims: + " + pilotClaim,
		},
		"Starting with a pilot limits risk and lets members judge results before funding the full scope.", true
}

func addTargets(d *proposal.StructuredDraft) ([]string, string, bool) {
	for _, c := range realClaims(d.ImpactClaims) {
		if hasDigit(c) {
			return nil, "", false
		}
	}
	d.ImpactClaims = append(d.ImpactClaims, targetClaim)
	return []string{"impactClaims: + " + targetClaim},
		"Quantified targets make the claimed impact verifiable.", true
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// candidate is a scored alternative before selection. err is set when
// scoring it failed.
type candidate struct {
	alt proposal.Alternative
	err error
}

// generateAlternatives applies every applicable strategy to a clone of
// d and scores each result exactly like the original. Candidates are
// returned in strategy order; selection happens once the original's
// score is known.
func generateAlternatives(ctx context.Context, scorer GoalScorer, d proposal.StructuredDraft, cfg *charter.Config) []candidate {
	var built []candidate
	for _, s := range strategies {
		clone := d.Clone()
		changes, rationale, ok := s.apply(&clone)
		if !ok {
			continue
		}
		built = append(built, candidate{alt: proposal.Alternative{
			Label:     s.label,
			Changes:   changes,
			Rationale: rationale,
			Draft:     clone,
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range built {
		g.Go(func() error {
			gs, err := scoreDraft(gctx, scorer, built[i].alt.Draft, cfg)
			built[i].alt.Scores = gs
			built[i].err = err
			return nil
		})
	}
	_ = g.Wait()
	return built
}

// selectAlternatives keeps the candidates whose composite strictly
// exceeds the original's, best first, at most limit of them.
func selectAlternatives(cands []candidate, original float64, limit int) []proposal.Alternative {
	var kept []proposal.Alternative
	for _, c := range cands {
		if c.err == nil && c.alt.Scores.Composite > original {
			kept = append(kept, c.alt)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Scores.Composite > kept[j].Scores.Composite
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
