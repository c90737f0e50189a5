package pipeline

import (
	"fmt"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

// Policy holds the decision constants taken from a charter.
type Policy struct {
	// AdvanceCutoff is the composite an original must reach to advance.
	AdvanceCutoff float64
	// MaterialMargin is how far the best alternative must beat the
	// original before the original is blocked.
	MaterialMargin    float64
	HardFailureStatus proposal.Status
}

// PolicyFor reads the policy constants out of cfg.
func PolicyFor(cfg *charter.Config) Policy {
	return Policy{
		AdvanceCutoff:     cfg.AdvanceCutoff(),
		MaterialMargin:    cfg.MaterialMargin(),
		HardFailureStatus: cfg.HardFailureStatus(),
	}
}

// DecisionInput is everything the policy looks at. Alternatives must
// already be sorted best first.
type DecisionInput struct {
	Original     proposal.GoalScores
	Alternatives []proposal.Alternative
	Missing      []proposal.MissingDataItem
	Goals        []charter.GoalDefinition
	Policy       Policy
}

// DecisionResult is the policy outcome. Reasons is never empty.
type DecisionResult struct {
	Decision        proposal.Decision
	Status          proposal.Status
	Reasons         []string
	BestAlternative *proposal.Alternative
}

// Decide applies the decision rules in priority order:
//
//  1. blocking missing data: revise, or block on a compliance failure
//  2. an alternative better by more than the margin: block
//  3. composite at or above the cutoff: advance
//  4. otherwise revise, naming the goals that fell short
func Decide(in DecisionInput) DecisionResult {
	var res DecisionResult
	if len(in.Alternatives) > 0 && in.Alternatives[0].Scores.Composite > in.Original.Composite {
		best := in.Alternatives[0]
		res.BestAlternative = &best
	}

	var blocking []proposal.MissingDataItem
	compliance := false
	for _, m := range in.Missing {
		if m.Blocking {
			blocking = append(blocking, m)
			compliance = compliance || m.Compliance
		}
	}

	switch {
	case len(blocking) > 0:
		res.Decision = proposal.DecisionRevise
		if compliance {
			res.Decision = proposal.DecisionBlock
		}
		for _, m := range blocking {
			if m.Compliance {
				res.Reasons = append(res.Reasons, fmt.Sprintf("Compliance failure (%s): %s", m.Field, m.WhyNeeded))
				continue
			}
			res.Reasons = append(res.Reasons, fmt.Sprintf("Missing required information (%s): %s", m.Field, m.Question))
		}

	case res.BestAlternative != nil && res.BestAlternative.Scores.Composite-in.Original.Composite > in.Policy.MaterialMargin:
		best := res.BestAlternative
		res.Decision = proposal.DecisionBlock
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"Alternative %q scores %.2f against %.2f for the original, more than the %.2f margin; resubmit the improved formulation.",
			best.Label, best.Scores.Composite, in.Original.Composite, in.Policy.MaterialMargin))

	case in.Original.Composite >= in.Policy.AdvanceCutoff:
		res.Decision = proposal.DecisionAdvance
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"Composite score %.2f meets the approval cutoff %.2f.", in.Original.Composite, in.Policy.AdvanceCutoff))

	default:
		res.Decision = proposal.DecisionRevise
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"Composite score %.2f is below the approval cutoff %.2f.", in.Original.Composite, in.Policy.AdvanceCutoff))
		for _, g := range in.Goals {
			if s := in.Original.Goals[g.Key]; s < in.Policy.AdvanceCutoff {
				res.Reasons = append(res.Reasons, fmt.Sprintf("Goal %q (%s) scored %.2f.", g.Key, g.Label, s))
			}
		}
	}

	if res.Decision != proposal.DecisionBlock && res.BestAlternative != nil {
		res.Reasons = append(res.Reasons, fmt.Sprintf(
			"Consider alternative %q (composite %.2f).", res.BestAlternative.Label, res.BestAlternative.Scores.Composite))
	}

	res.Status = StatusFor(res.Decision, compliance, in.Policy.HardFailureStatus)
	return res
}

// StatusFor maps a decision to the legacy workflow status: advance and
// revise are votable; block is draft, or hardFailure when a compliance
// failure caused it.
func StatusFor(d proposal.Decision, compliance bool, hardFailure proposal.Status) proposal.Status {
	switch d {
	case proposal.DecisionAdvance, proposal.DecisionRevise:
		return proposal.StatusVotable
	}
	if compliance {
		if hardFailure == "" {
			return proposal.StatusFailed
		}
		return hardFailure
	}
	return proposal.StatusDraft
}
