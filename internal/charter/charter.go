// Package charter holds a cooperative's charter: the weighted goals a
// proposal is scored against and the governance parameters the
// decision policy applies.
//
// A *Config handed out by a Registry is a snapshot. Nothing in this
// module mutates a published snapshot; reloads publish a new one, so a
// run that already holds a snapshot never observes a change.
package charter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/screening"
)

// ErrInvalidCharter is the sentinel wrapped by every charter
// validation failure.
var ErrInvalidCharter = errors.New("invalid charter")

// ValidationError names the offending field of a rejected charter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid charter: %s", e.Reason)
	}
	return fmt.Sprintf("invalid charter: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidCharter }

// --- Goal signals ---

// Signal selects the structured feature a goal is scored on, in
// addition to its keywords.
type Signal string

const (
	SignalKeywords         Signal = "keywords"
	SignalLocalShare       Signal = "local_share"
	SignalNationalShare    Signal = "national_share"
	SignalBudgetEfficiency Signal = "budget_efficiency"
	SignalImpactEvidence   Signal = "impact_evidence"
	SignalCompleteness     Signal = "completeness"
)

// GoalDefinition is one weighted charter goal.
type GoalDefinition struct {
	Key         string   `yaml:"key" json:"key"`
	Label       string   `yaml:"label" json:"label"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Signal      Signal   `yaml:"signal,omitempty" json:"signal,omitempty"`
}

// EffectiveSignal returns the goal's signal, defaulting to keywords.
func (g GoalDefinition) EffectiveSignal() Signal {
	if g.Signal == "" {
		return SignalKeywords
	}
	return g.Signal
}

// Policy holds the decision policy constants. Nil fields take the
// package defaults.
type Policy struct {
	MaterialMargin    *float64        `yaml:"materialMargin,omitempty" json:"materialMargin,omitempty"`
	MaxAlternatives   *int            `yaml:"maxAlternatives,omitempty" json:"maxAlternatives,omitempty"`
	HardFailureStatus proposal.Status `yaml:"hardFailureStatus,omitempty" json:"hardFailureStatus,omitempty"`
}

const (
	// DefaultMaterialMargin is how far the best alternative's composite
	// must exceed the original's before the original is blocked.
	DefaultMaterialMargin = 0.05
	// MaxAlternatives is the hard cap on alternatives per run.
	MaxAlternatives = 3
	// DefaultReferenceBudget anchors the budget_efficiency signal when a
	// charter does not set one.
	DefaultReferenceBudget = 100000
)

// Scoring weight names understood by the engine.
const (
	WeightStructural = "structural"
	WeightMission    = "mission"
)

// Config is a cooperative's charter.
type Config struct {
	CoopID                   string             `yaml:"coopId" json:"coopId"`
	Name                     string             `yaml:"name,omitempty" json:"name,omitempty"`
	Version                  string             `yaml:"version,omitempty" json:"version,omitempty"`
	GoalDefinitions          []GoalDefinition   `yaml:"goalDefinitions" json:"goalDefinitions"`
	ScoringWeights           map[string]float64 `yaml:"scoringWeights,omitempty" json:"scoringWeights,omitempty"`
	QuorumPercent            float64            `yaml:"quorumPercent" json:"quorumPercent"`
	ApprovalThresholdPercent float64            `yaml:"approvalThresholdPercent" json:"approvalThresholdPercent"`
	VotingWindowDays         int                `yaml:"votingWindowDays" json:"votingWindowDays"`
	SectorExclusions         []string           `yaml:"sectorExclusions,omitempty" json:"sectorExclusions,omitempty"`
	MinScBalanceToSubmit     float64            `yaml:"minScBalanceToSubmit,omitempty" json:"minScBalanceToSubmit,omitempty"`
	ReferenceBudget          float64            `yaml:"referenceBudget,omitempty" json:"referenceBudget,omitempty"`
	RequireRegion            bool               `yaml:"requireRegion,omitempty" json:"requireRegion,omitempty"`
	ScreeningRules           []screening.Rule   `yaml:"screeningRules,omitempty" json:"screeningRules,omitempty"`
	Policy                   Policy             `yaml:"policy,omitempty" json:"policy,omitempty"`
	EngineCompatibility      string             `yaml:"engineCompatibility,omitempty" json:"engineCompatibility,omitempty"`
}

// Validate checks the charter against the JSON Schema (types and
// bounds, e.g. every weight in [0,1]) and then the semantic rules the
// schema cannot express.
func (c *Config) Validate() error {
	if c == nil {
		return &ValidationError{Reason: "charter is nil"}
	}
	if err := validateSchema(c); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.GoalDefinitions))
	for i, g := range c.GoalDefinitions {
		if g.Key == proposal.CompositeKey {
			return &ValidationError{
				Field:  fmt.Sprintf("goalDefinitions[%d].key", i),
				Reason: fmt.Sprintf("%q is reserved", proposal.CompositeKey),
			}
		}
		if seen[g.Key] {
			return &ValidationError{
				Field:  fmt.Sprintf("goalDefinitions[%d].key", i),
				Reason: fmt.Sprintf("duplicate goal key %q", g.Key),
			}
		}
		seen[g.Key] = true
	}

	if s := c.Policy.HardFailureStatus; s != "" {
		if err := proposal.ValidateStatus(s); err != nil {
			return &ValidationError{Field: "policy.hardFailureStatus", Reason: err.Error()}
		}
	}

	if err := screening.ValidateRules(c.ScreeningRules); err != nil {
		return &ValidationError{Field: "screeningRules", Reason: err.Error()}
	}

	if c.EngineCompatibility != "" {
		if _, err := parseConstraint(c.EngineCompatibility); err != nil {
			return &ValidationError{Field: "engineCompatibility", Reason: err.Error()}
		}
	}
	return nil
}

// GoalWeightSum returns Σ weight over the goal definitions.
func (c *Config) GoalWeightSum() float64 {
	sum := 0.0
	for _, g := range c.GoalDefinitions {
		sum += g.Weight
	}
	return sum
}

// EffectiveScoringWeights returns the scoring weights with defaults for
// missing names. The result is a fresh map.
func (c *Config) EffectiveScoringWeights() map[string]float64 {
	w := map[string]float64{WeightStructural: 0.3, WeightMission: 0.7}
	if len(c.ScoringWeights) > 0 {
		w = make(map[string]float64, len(c.ScoringWeights))
		for k, v := range c.ScoringWeights {
			w[k] = v
		}
	}
	return w
}

// ScoringWeightSum returns Σ over the effective scoring weights.
func (c *Config) ScoringWeightSum() float64 {
	sum := 0.0
	for _, v := range c.EffectiveScoringWeights() {
		sum += v
	}
	return sum
}

// MaterialMargin returns the policy margin or its default.
func (c *Config) MaterialMargin() float64 {
	if c.Policy.MaterialMargin != nil {
		return *c.Policy.MaterialMargin
	}
	return DefaultMaterialMargin
}

// MaxAlternatives returns the policy cap on alternatives, never above
// the hard cap.
func (c *Config) MaxAlternatives() int {
	if c.Policy.MaxAlternatives != nil && *c.Policy.MaxAlternatives < MaxAlternatives {
		return max(*c.Policy.MaxAlternatives, 0)
	}
	return MaxAlternatives
}

// HardFailureStatus returns the legacy status for a block caused by a
// compliance failure.
func (c *Config) HardFailureStatus() proposal.Status {
	if c.Policy.HardFailureStatus != "" {
		return c.Policy.HardFailureStatus
	}
	return proposal.StatusFailed
}

// AdvanceCutoff converts the approval threshold percentage into the
// composite score an original must reach to advance.
func (c *Config) AdvanceCutoff() float64 {
	return math.Min(math.Max(c.ApprovalThresholdPercent/100, 0), 1)
}

// EffectiveReferenceBudget returns the reference budget or its default.
func (c *Config) EffectiveReferenceBudget() float64 {
	if c.ReferenceBudget > 0 {
		return c.ReferenceBudget
	}
	return DefaultReferenceBudget
}

// Goal returns the definition for key.
func (c *Config) Goal(key string) (GoalDefinition, bool) {
	for _, g := range c.GoalDefinitions {
		if g.Key == key {
			return g, true
		}
	}
	return GoalDefinition{}, false
}

// GoalKeys returns the goal keys in sorted order.
func (c *Config) GoalKeys() []string {
	keys := make([]string, 0, len(c.GoalDefinitions))
	for _, g := range c.GoalDefinitions {
		keys = append(keys, g.Key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy. Registries publish clones so callers can
// never reach into a snapshot another run is holding.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.GoalDefinitions = make([]GoalDefinition, len(c.GoalDefinitions))
	for i, g := range c.GoalDefinitions {
		g.Keywords = append([]string(nil), g.Keywords...)
		out.GoalDefinitions[i] = g
	}
	if c.ScoringWeights != nil {
		out.ScoringWeights = make(map[string]float64, len(c.ScoringWeights))
		for k, v := range c.ScoringWeights {
			out.ScoringWeights[k] = v
		}
	}
	out.SectorExclusions = append([]string(nil), c.SectorExclusions...)
	out.ScreeningRules = append([]screening.Rule(nil), c.ScreeningRules...)
	if c.Policy.MaterialMargin != nil {
		m := *c.Policy.MaterialMargin
		out.Policy.MaterialMargin = &m
	}
	if c.Policy.MaxAlternatives != nil {
		n := *c.Policy.MaxAlternatives
		out.Policy.MaxAlternatives = &n
	}
	return &out
}
