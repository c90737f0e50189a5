package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

// ErrInternalScoring marks an unexpected failure inside a scorer. It is
// recovered locally and never returned from Evaluate.
var ErrInternalScoring = errors.New("internal scoring error")

// GoalScorer computes a [0,1] alignment score per charter goal. It must
// be deterministic for identical draft and charter. Out-of-range values
// are clamped and missing keys count as 0.
type GoalScorer interface {
	Score(ctx context.Context, draft proposal.StructuredDraft, cfg *charter.Config) (map[string]float64, error)
}

// SignalScorer is the default GoalScorer. Each goal blends keyword
// coverage with the structured feature its signal names.
type SignalScorer struct{}

// Score implements GoalScorer.
func (SignalScorer) Score(ctx context.Context, d proposal.StructuredDraft, cfg *charter.Config) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := corpus(d)
	scores := make(map[string]float64, len(cfg.GoalDefinitions))
	for _, g := range cfg.GoalDefinitions {
		kw := keywordCoverage(text, g.Keywords)
		sig := g.EffectiveSignal()
		if sig == charter.SignalKeywords {
			scores[g.Key] = kw
			continue
		}
		feature, _ := featureSignal(sig, d, cfg)
		if len(g.Keywords) == 0 {
			scores[g.Key] = clamp01(feature)
			continue
		}
		scores[g.Key] = clamp01(signalBlend*feature + (1-signalBlend)*kw)
	}
	return scores, nil
}

// Composite is Σ(score×weight)/Σ(weight) over the goals. Weights are
// renormalised by construction; a zero total yields 0.
func Composite(goals map[string]float64, defs []charter.GoalDefinition) float64 {
	total, sum := 0.0, 0.0
	for _, g := range defs {
		w := g.Weight
		if w <= 0 {
			continue
		}
		total += w
		sum += clamp01(goals[g.Key]) * w
	}
	if total == 0 {
		return 0
	}
	return clamp01(sum / total)
}

// scoreDraft runs scorer over d and packages the result. Scorer errors
// and panics come back as ErrInternalScoring.
func scoreDraft(ctx context.Context, scorer GoalScorer, d proposal.StructuredDraft, cfg *charter.Config) (gs proposal.GoalScores, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInternalScoring, r)
		}
	}()

	raw, err := scorer.Score(ctx, d, cfg)
	if err != nil {
		return proposal.GoalScores{}, fmt.Errorf("%w: %w", ErrInternalScoring, err)
	}
	goals := make(map[string]float64, len(cfg.GoalDefinitions))
	for _, g := range cfg.GoalDefinitions {
		goals[g.Key] = clamp01(raw[g.Key])
	}
	return proposal.GoalScores{Goals: goals, Composite: Composite(goals, cfg.GoalDefinitions)}, nil
}

// zeroScores is what the original gets when scoring fails.
func zeroScores(cfg *charter.Config) proposal.GoalScores {
	goals := make(map[string]float64, len(cfg.GoalDefinitions))
	for _, g := range cfg.GoalDefinitions {
		goals[g.Key] = 0
	}
	return proposal.GoalScores{Goals: goals}
}

// --- Legacy evaluation payload ---

func structuralScores(d proposal.StructuredDraft, cfg *charter.Config) proposal.StructuralScores {
	return proposal.StructuralScores{
		Completeness: completeness(d),
		Clarity:      clarity(d),
		Feasibility:  feasibility(d, cfg),
	}
}

func evaluation(d proposal.StructuredDraft, gs proposal.GoalScores, cfg *charter.Config) proposal.Evaluation {
	ss := structuralScores(d, cfg)
	structural := clamp01((ss.Completeness + ss.Clarity + ss.Feasibility) / 3)

	mission := make([]proposal.MissionImpactScore, 0, len(cfg.GoalDefinitions))
	for _, g := range cfg.GoalDefinitions {
		mission = append(mission, proposal.MissionImpactScore{
			Goal:   g.Key,
			Label:  g.Label,
			Score:  gs.Goals[g.Key],
			Weight: g.Weight,
		})
	}

	w := cfg.EffectiveScoringWeights()
	ws, wm := w[charter.WeightStructural], w[charter.WeightMission]
	overall := 0.0
	if ws+wm > 0 {
		overall = clamp01((ws*structural + wm*gs.Composite) / (ws + wm))
	}
	return proposal.Evaluation{
		StructuralScores:    ss,
		MissionImpactScores: mission,
		ComputedScores: proposal.ComputedScores{
			Structural: structural,
			Mission:    gs.Composite,
			Overall:    overall,
		},
	}
}
