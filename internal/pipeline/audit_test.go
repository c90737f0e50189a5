package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/HendryAvila/steward/internal/proposal"
)

// --- auditRecorder ---

func TestAuditRecorder_MergesByName(t *testing.T) {
	a := newAuditRecorder()
	a.pass("x", "first")
	a.pass("y", "")
	a.fail("x", "second")
	a.pass("x", "second")

	got := a.list()
	if len(got) != 2 {
		t.Fatalf("list() has %d checks, want 2", len(got))
	}
	if got[0].Name != "x" || got[0].Passed {
		t.Errorf("x = %+v, want failed", got[0])
	}
	if got[0].Detail != "first; second" {
		t.Errorf("x detail = %q, want %q", got[0].Detail, "first; second")
	}
	if got[1].Name != "y" || !got[1].Passed {
		t.Errorf("y = %+v, want passed", got[1])
	}
}

func TestAuditRecorder_ListIsACopy(t *testing.T) {
	a := newAuditRecorder()
	a.pass("x", "")
	l := a.list()
	l[0].Passed = false
	if !a.list()[0].Passed {
		t.Error("mutating list() changed the recorder")
	}
}

func TestWeightSumCheck(t *testing.T) {
	a := newAuditRecorder()
	a.weightSumCheck("ok", 0.1+0.2+0.7)
	a.weightSumCheck("off", 1.2)
	checks := a.list()
	if !checks[0].Passed {
		t.Errorf("sum of 0.1+0.2+0.7 failed: %q", checks[0].Detail)
	}
	if checks[1].Passed || !strings.Contains(checks[1].Detail, "renormalised") {
		t.Errorf("off = %+v, want failed with renormalised detail", checks[1])
	}
}

// --- Record digest ---

func sampleOutput(t *testing.T) *proposal.Output {
	t.Helper()
	out := &proposal.Output{
		ID:        "prop_abc123",
		CoopID:    "testcoop",
		CreatedAt: "2026-03-14T09:30:00Z",
		Status:    proposal.StatusVotable,
		GoalScores: proposal.GoalScores{
			Goals:     map[string]float64{"a": 0.5},
			Composite: 0.5,
		},
		Alternatives:    []proposal.Alternative{},
		Decision:        proposal.DecisionRevise,
		DecisionReasons: []string{"Composite score 0.50 is below the approval cutoff 0.60."},
		MissingData:     []proposal.MissingDataItem{},
		Audit: proposal.Audit{
			EngineVersion: EngineVersionString(),
			RunID:         "run-1",
			CharterDigest: "sha256:00",
			Checks:        []proposal.Check{{Name: checkBasicValidation, Passed: true}},
		},
	}
	d, err := RecordDigest(out)
	if err != nil {
		t.Fatalf("RecordDigest() error: %v", err)
	}
	out.Audit.RecordDigest = d
	return out
}

func TestVerifyRecord(t *testing.T) {
	out := sampleOutput(t)
	if err := VerifyRecord(out); err != nil {
		t.Fatalf("VerifyRecord() error = %v, want nil", err)
	}
	if !strings.HasPrefix(out.Audit.RecordDigest, "sha256:") {
		t.Errorf("RecordDigest = %q, want sha256: prefix", out.Audit.RecordDigest)
	}
}

func TestVerifyRecord_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *proposal.Output)
	}{
		{"decision", func(o *proposal.Output) { o.Decision = proposal.DecisionAdvance }},
		{"score", func(o *proposal.Output) { o.GoalScores.Composite = 0.9 }},
		{"check", func(o *proposal.Output) { o.Audit.Checks[0].Passed = false }},
		{"reasons", func(o *proposal.Output) { o.DecisionReasons = append(o.DecisionReasons, "forged") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := sampleOutput(t)
			tt.mutate(out)
			if err := VerifyRecord(out); !errors.Is(err, ErrRecordTampered) {
				t.Errorf("VerifyRecord() error = %v, want ErrRecordTampered", err)
			}
		})
	}
}

func TestVerifyRecord_IgnoresPresentationFields(t *testing.T) {
	out := sampleOutput(t)
	out.Title = "Renamed"
	out.Summary = "Different summary"
	if err := VerifyRecord(out); err != nil {
		t.Errorf("VerifyRecord() error = %v, want nil", err)
	}
}

func TestVerifyRecord_Nil(t *testing.T) {
	if err := VerifyRecord(nil); !errors.Is(err, ErrRecordTampered) {
		t.Errorf("VerifyRecord(nil) error = %v, want ErrRecordTampered", err)
	}
}

func TestIsScreeningRuleCheck(t *testing.T) {
	if id, ok := IsScreeningRuleCheck("screening_rule:budget_ceiling"); !ok || id != "budget_ceiling" {
		t.Errorf("IsScreeningRuleCheck() = %q, %v", id, ok)
	}
	if _, ok := IsScreeningRuleCheck(checkSectorExclusion); ok {
		t.Error("sector check reported as a rule check")
	}
}

func TestEngineVersionString(t *testing.T) {
	if got, want := EngineVersionString(), "proposal-engine@"+EngineVersion; got != want {
		t.Errorf("EngineVersionString() = %q, want %q", got, want)
	}
}
