package proposal

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CompositeKey is the reserved key for the composite score in the flat
// JSON form of GoalScores. Charter goals may not use it.
const CompositeKey = "composite"

// GoalScores maps each charter goal key to an alignment score in [0,1]
// plus the weighted composite.
type GoalScores struct {
	Goals     map[string]float64
	Composite float64
}

// Keys returns the goal keys in sorted order.
func (g GoalScores) Keys() []string {
	keys := make([]string, 0, len(g.Goals))
	for k := range g.Goals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON flattens the scores: {"<goal>": s, ..., "composite": c}.
func (g GoalScores) MarshalJSON() ([]byte, error) {
	flat := make(map[string]float64, len(g.Goals)+1)
	for k, v := range g.Goals {
		flat[k] = v
	}
	flat[CompositeKey] = g.Composite
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON.
func (g *GoalScores) UnmarshalJSON(data []byte) error {
	var flat map[string]float64
	if err := json.Unmarshal(data, &flat); err != nil {
		return fmt.Errorf("decoding goal scores: %w", err)
	}
	g.Goals = make(map[string]float64, len(flat))
	for k, v := range flat {
		if k == CompositeKey {
			g.Composite = v
			continue
		}
		g.Goals[k] = v
	}
	return nil
}

// Alternative is a modified formulation of a proposal, scored exactly
// like the original.
type Alternative struct {
	Label     string     `json:"label"`
	Changes   []string   `json:"changes"`
	Scores    GoalScores `json:"scores"`
	Rationale string     `json:"rationale"`

	// Draft is the modified draft the scores were computed from.
	Draft StructuredDraft `json:"-"`
}

// MissingDataItem is a field needed for confident scoring that is
// absent, a placeholder, or inconsistent.
type MissingDataItem struct {
	Field     string `json:"field"`
	Question  string `json:"question"`
	WhyNeeded string `json:"why_needed"`
	Blocking  bool   `json:"blocking"`

	// Compliance marks a hard compliance failure (e.g. sector exclusion).
	Compliance bool `json:"compliance,omitempty"`
}

// Check is one named pass/fail validation recorded in the audit trail.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Audit is the versioned record of every check performed during a run.
type Audit struct {
	EngineVersion string  `json:"engineVersion"`
	RunID         string  `json:"runId"`
	CharterDigest string  `json:"charterDigest"`
	RecordDigest  string  `json:"recordDigest"`
	Checks        []Check `json:"checks"`
}

// Check returns the named check, if recorded.
func (a Audit) Check(name string) (Check, bool) {
	for _, c := range a.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

// Budget is the monetary part of a proposal.
type Budget struct {
	Currency        Currency `json:"currency,omitempty"`
	AmountRequested *float64 `json:"amountRequested,omitempty"`
}

// TreasuryPlan is the split of funds between local and national
// treasuries.
type TreasuryPlan struct {
	LocalPercent    *float64 `json:"localPercent,omitempty"`
	NationalPercent *float64 `json:"nationalPercent,omitempty"`
	Notes           string   `json:"notes,omitempty"`
}

// StructuralScores rate the shape of a proposal independent of the
// charter goals.
type StructuralScores struct {
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Feasibility  float64 `json:"feasibility"`
}

// MissionImpactScore is one goal's contribution to the composite.
type MissionImpactScore struct {
	Goal   string  `json:"goal"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// ComputedScores blends structural and mission scores using the
// charter's scoring weights.
type ComputedScores struct {
	Structural float64 `json:"structural"`
	Mission    float64 `json:"mission"`
	Overall    float64 `json:"overall"`
}

// Evaluation is the legacy evaluation payload.
type Evaluation struct {
	StructuralScores    StructuralScores     `json:"structural_scores"`
	MissionImpactScores []MissionImpactScore `json:"mission_impact_scores"`
	ComputedScores      ComputedScores       `json:"computed_scores"`
}

// Governance echoes the charter voting parameters the decision was
// made under.
type Governance struct {
	QuorumPercent            float64 `json:"quorumPercent"`
	ApprovalThresholdPercent float64 `json:"approvalThresholdPercent"`
	VotingWindowDays         int     `json:"votingWindowDays"`
}

// Output is the full result of one evaluation run.
type Output struct {
	ID              string            `json:"id"`
	CoopID          string            `json:"coopId,omitempty"`
	CreatedAt       string            `json:"createdAt"`
	Status          Status            `json:"status"`
	Title           string            `json:"title"`
	Summary         string            `json:"summary"`
	Proposer        *Proposer         `json:"proposer,omitempty"`
	Region          *Region           `json:"region,omitempty"`
	Category        Category          `json:"category,omitempty"`
	Budget          Budget            `json:"budget"`
	TreasuryPlan    TreasuryPlan      `json:"treasuryPlan"`
	Evaluation      Evaluation        `json:"evaluation"`
	Governance      Governance        `json:"governance"`
	Audit           Audit             `json:"audit"`
	GoalScores      GoalScores        `json:"goalScores"`
	Alternatives    []Alternative     `json:"alternatives"`
	BestAlternative *Alternative      `json:"bestAlternative,omitempty"`
	Decision        Decision          `json:"decision"`
	DecisionReasons []string          `json:"decisionReasons"`
	MissingData     []MissingDataItem `json:"missing_data"`
}

// HasBlockingMissingData reports whether any missing item is blocking.
func (o *Output) HasBlockingMissingData() bool {
	for _, m := range o.MissingData {
		if m.Blocking {
			return true
		}
	}
	return false
}
