package pipeline

import (
	"testing"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

func testPolicy() Policy {
	return Policy{AdvanceCutoff: 0.6, MaterialMargin: 0.05, HardFailureStatus: proposal.StatusFailed}
}

func scores(composite float64) proposal.GoalScores {
	return proposal.GoalScores{Goals: map[string]float64{"a": composite, "b": composite}, Composite: composite}
}

func alt(label string, composite float64) proposal.Alternative {
	return proposal.Alternative{Label: label, Scores: scores(composite)}
}

var twoGoals = []charter.GoalDefinition{
	{Key: "a", Label: "Goal A", Weight: 0.5},
	{Key: "b", Label: "Goal B", Weight: 0.5},
}

// --- Decide ---

func TestDecide_Advance(t *testing.T) {
	res := Decide(DecisionInput{Original: scores(0.6), Goals: twoGoals, Policy: testPolicy()})
	if res.Decision != proposal.DecisionAdvance {
		t.Errorf("Decision = %v, want advance at the cutoff", res.Decision)
	}
	if res.Status != proposal.StatusVotable {
		t.Errorf("Status = %v, want votable", res.Status)
	}
	if len(res.Reasons) == 0 {
		t.Error("Reasons is empty")
	}
}

func TestDecide_ReviseBelowCutoffNamesGoals(t *testing.T) {
	res := Decide(DecisionInput{Original: scores(0.4), Goals: twoGoals, Policy: testPolicy()})
	if res.Decision != proposal.DecisionRevise {
		t.Fatalf("Decision = %v, want revise", res.Decision)
	}
	if !reasonsContain(res.Reasons, `Goal "a"`) || !reasonsContain(res.Reasons, `Goal "b"`) {
		t.Errorf("Reasons = %v, want both short goals named", res.Reasons)
	}
	if res.Status != proposal.StatusVotable {
		t.Errorf("Status = %v, want votable", res.Status)
	}
}

func TestDecide_BlockingMissingDataRevises(t *testing.T) {
	res := Decide(DecisionInput{
		Original: scores(0.9),
		Missing: []proposal.MissingDataItem{
			{Field: "budget.amountRequested", Question: "How much?", Blocking: true},
			{Field: "title", Question: "Title?"},
		},
		Goals:  twoGoals,
		Policy: testPolicy(),
	})
	if res.Decision != proposal.DecisionRevise {
		t.Fatalf("Decision = %v, want revise with blocking data", res.Decision)
	}
	if len(res.Reasons) != 1 || !reasonsContain(res.Reasons, "budget.amountRequested") {
		t.Errorf("Reasons = %v, want exactly the blocking item", res.Reasons)
	}
}

func TestDecide_ComplianceBlocks(t *testing.T) {
	res := Decide(DecisionInput{
		Original: scores(0.9),
		Missing: []proposal.MissingDataItem{
			{Field: "compliance.sector_exclusion", WhyNeeded: "The charter excludes gambling.", Blocking: true, Compliance: true},
		},
		Goals:  twoGoals,
		Policy: testPolicy(),
	})
	if res.Decision != proposal.DecisionBlock {
		t.Fatalf("Decision = %v, want block", res.Decision)
	}
	if res.Status != proposal.StatusFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
	if !reasonsContain(res.Reasons, "Compliance failure") {
		t.Errorf("Reasons = %v, want a compliance reason", res.Reasons)
	}
}

func TestDecide_ComplianceUsesConfiguredStatus(t *testing.T) {
	p := testPolicy()
	p.HardFailureStatus = proposal.StatusRejected
	res := Decide(DecisionInput{
		Original: scores(0.2),
		Missing:  []proposal.MissingDataItem{{Field: "compliance.x", Blocking: true, Compliance: true}},
		Policy:   p,
	})
	if res.Status != proposal.StatusRejected {
		t.Errorf("Status = %v, want rejected", res.Status)
	}
}

func TestDecide_DominatingAlternativeBlocks(t *testing.T) {
	res := Decide(DecisionInput{
		Original:     scores(0.7),
		Alternatives: []proposal.Alternative{alt("Reduced budget", 0.8)},
		Goals:        twoGoals,
		Policy:       testPolicy(),
	})
	if res.Decision != proposal.DecisionBlock {
		t.Fatalf("Decision = %v, want block", res.Decision)
	}
	if res.Status != proposal.StatusDraft {
		t.Errorf("Status = %v, want draft for a non-compliance block", res.Status)
	}
	if res.BestAlternative == nil || res.BestAlternative.Label != "Reduced budget" {
		t.Errorf("BestAlternative = %+v, want Reduced budget", res.BestAlternative)
	}
	if !reasonsContain(res.Reasons, "Reduced budget") {
		t.Errorf("Reasons = %v, want the alternative named", res.Reasons)
	}
}

func TestDecide_MarginIsStrict(t *testing.T) {
	// 0.04 above the original is inside the 0.05 margin.
	res := Decide(DecisionInput{
		Original:     scores(0.6),
		Alternatives: []proposal.Alternative{alt("Phased pilot", 0.64)},
		Goals:        twoGoals,
		Policy:       testPolicy(),
	})
	if res.Decision != proposal.DecisionAdvance {
		t.Fatalf("Decision = %v, want advance within the margin", res.Decision)
	}
	if !reasonsContain(res.Reasons, `Consider alternative "Phased pilot"`) {
		t.Errorf("Reasons = %v, want the alternative suggested", res.Reasons)
	}
	if res.BestAlternative == nil {
		t.Error("BestAlternative is nil")
	}
}

func TestDecide_MissingDataOutranksDominance(t *testing.T) {
	res := Decide(DecisionInput{
		Original:     scores(0.3),
		Alternatives: []proposal.Alternative{alt("Reduced budget", 0.9)},
		Missing:      []proposal.MissingDataItem{{Field: "treasuryPlan.localPercent", Blocking: true}},
		Goals:        twoGoals,
		Policy:       testPolicy(),
	})
	if res.Decision != proposal.DecisionRevise {
		t.Errorf("Decision = %v, want revise", res.Decision)
	}
}

func TestDecide_NoAlternatives(t *testing.T) {
	res := Decide(DecisionInput{Original: scores(0.1), Goals: twoGoals, Policy: testPolicy()})
	if res.BestAlternative != nil {
		t.Errorf("BestAlternative = %+v, want nil", res.BestAlternative)
	}
}

// --- StatusFor ---

func TestStatusFor(t *testing.T) {
	tests := []struct {
		decision   proposal.Decision
		compliance bool
		hard       proposal.Status
		want       proposal.Status
	}{
		{proposal.DecisionAdvance, false, "", proposal.StatusVotable},
		{proposal.DecisionRevise, true, proposal.StatusFailed, proposal.StatusVotable},
		{proposal.DecisionBlock, false, proposal.StatusFailed, proposal.StatusDraft},
		{proposal.DecisionBlock, true, "", proposal.StatusFailed},
		{proposal.DecisionBlock, true, proposal.StatusRejected, proposal.StatusRejected},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.decision, tt.compliance, tt.hard); got != tt.want {
			t.Errorf("StatusFor(%v, %v, %q) = %v, want %v", tt.decision, tt.compliance, tt.hard, got, tt.want)
		}
	}
}

// --- PolicyFor ---

func TestPolicyFor(t *testing.T) {
	cfg := testCharter()
	p := PolicyFor(cfg)
	if p.AdvanceCutoff != 0.6 {
		t.Errorf("AdvanceCutoff = %v, want 0.6", p.AdvanceCutoff)
	}
	if p.MaterialMargin != charter.DefaultMaterialMargin {
		t.Errorf("MaterialMargin = %v, want default", p.MaterialMargin)
	}
	if p.HardFailureStatus != proposal.StatusFailed {
		t.Errorf("HardFailureStatus = %v, want failed", p.HardFailureStatus)
	}
}
