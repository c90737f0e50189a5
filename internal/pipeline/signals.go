package pipeline

import (
	"math"
	"strings"
	"unicode"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/textnorm"
)

// keywordSaturation is the number of distinct keyword hits that earns
// full keyword coverage.
const keywordSaturation = 3

// signalBlend is the share of a goal's score taken by its feature
// signal when the goal also lists keywords.
const signalBlend = 0.7

// corpus is the folded text keyword signals search.
func corpus(d proposal.StructuredDraft) string {
	parts := make([]string, 0, 3+len(d.ImpactClaims))
	parts = append(parts, d.Title, d.Summary, d.Text)
	parts = append(parts, d.ImpactClaims...)
	return textnorm.Fold(strings.Join(parts, "\n"))
}

func keywordCoverage(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if textnorm.ContainsTerm(text, k) {
			hits++
		}
	}
	return clamp01(float64(hits) / float64(min(len(keywords), keywordSaturation)))
}

// featureSignal returns the goal's structured signal and whether the
// draft carries the fields it needs.
func featureSignal(sig charter.Signal, d proposal.StructuredDraft, cfg *charter.Config) (float64, bool) {
	switch sig {
	case charter.SignalLocalShare:
		if d.LocalPercent == nil {
			return 0, false
		}
		return clamp01(*d.LocalPercent / 100), true
	case charter.SignalNationalShare:
		if d.NationalPercent == nil {
			return 0, false
		}
		return clamp01(*d.NationalPercent / 100), true
	case charter.SignalBudgetEfficiency:
		return budgetEfficiency(d, cfg.EffectiveReferenceBudget())
	case charter.SignalImpactEvidence:
		return impactEvidence(d), true
	case charter.SignalCompleteness:
		return completeness(d), true
	}
	return 0, false
}

// budgetEfficiency is ref/(ref+amount): 1 for a free proposal, 0.5 at
// the reference budget, approaching 0 as the ask grows.
func budgetEfficiency(d proposal.StructuredDraft, ref float64) (float64, bool) {
	if d.AmountRequested == nil {
		return 0, false
	}
	amount := math.Max(*d.AmountRequested, 0)
	return clamp01(ref / (ref + amount)), true
}

// impactEvidence rewards having claims and, more, having quantified
// ones.
func impactEvidence(d proposal.StructuredDraft) float64 {
	claims := realClaims(d.ImpactClaims)
	if len(claims) == 0 {
		return 0
	}
	quantified := 0
	for _, c := range claims {
		if hasDigit(c) {
			quantified++
		}
	}
	base := math.Min(0.3*float64(len(claims)), 0.6)
	return clamp01(base + 0.4*float64(quantified)/float64(len(claims)))
}

// completeness is the share of core fields present and not
// placeholders.
func completeness(d proposal.StructuredDraft) float64 {
	present := 0
	for _, ok := range []bool{
		!isPlaceholder(d.Title),
		!isPlaceholder(d.Summary),
		d.Category != "",
		d.Currency != "",
		d.AmountRequested != nil,
		d.LocalPercent != nil && d.NationalPercent != nil,
		len(realClaims(d.ImpactClaims)) > 0,
	} {
		if ok {
			present++
		}
	}
	return float64(present) / 7
}

// clarity rates how readable the proposal is: enough words to judge it
// plus a title and a summary.
func clarity(d proposal.StructuredDraft) float64 {
	words := len(textnorm.Words(d.Text))
	length := math.Min(float64(words)/120, 1)
	framing := 0.0
	if !isPlaceholder(d.Title) {
		framing += 0.5
	}
	if !isPlaceholder(d.Summary) {
		framing += 0.5
	}
	return clamp01(0.6*length + 0.4*framing)
}

// feasibility combines budget proportion with having a complete
// treasury plan.
func feasibility(d proposal.StructuredDraft, cfg *charter.Config) float64 {
	score := 0.0
	if eff, ok := budgetEfficiency(d, cfg.EffectiveReferenceBudget()); ok {
		score += 0.6 * eff
	}
	if d.LocalPercent != nil && d.NationalPercent != nil {
		score += 0.4
	}
	return clamp01(score)
}

// realClaims drops placeholders and claims the engine wrote itself.
func realClaims(claims []string) []string {
	var out []string
	for _, c := range claims {
		if !isPlaceholder(c) && !authoredClaims[c] {
			out = append(out, c)
		}
	}
	return out
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
