package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

// EngineName prefixes the engine version recorded in every audit.
const EngineName = "proposal-engine"

// EngineVersion is the semantic version of the scoring and decision
// logic. Bump it whenever scores or decisions for the same input and
// charter could change.
const EngineVersion = "1.3.0"

// EngineVersionString is the audit form, e.g. proposal-engine@1.3.0.
func EngineVersionString() string { return EngineName + "@" + EngineVersion }

// Check names recorded on every run.
const (
	checkBasicValidation     = "basic_validation"
	checkEngineCompat        = "charter_engine_compatibility"
	checkGoalWeightsSum      = "goal_weights_sum"
	checkScoringWeightsSum   = "scoring_weights_sum"
	checkFieldExtraction     = "field_extraction"
	checkAmountNonNegative   = "amount_non_negative"
	checkPercentageRange     = "percentage_range"
	checkTreasurySum         = "treasury_allocation_sum"
	checkCurrencyKnown       = "currency_known"
	checkSectorExclusion     = "sector_exclusion_screen"
	checkScreeningRulePrefix = "screening_rule:"
	checkGoalScoring         = "goal_scoring"
	checkAlternativeScoring  = "alternative_scoring"
	checkMissingDataScan     = "missing_data_scan"
)

const notProvided = "not provided"

// weightTolerance absorbs float noise when checking weight sums.
const weightTolerance = 1e-9

// auditRecorder accumulates checks in first-recorded order. A second
// record under the same name merges into the first. Not safe for
// concurrent use; the evaluator records after each join.
type auditRecorder struct {
	checks []proposal.Check
	index  map[string]int
}

func newAuditRecorder() *auditRecorder {
	return &auditRecorder{index: make(map[string]int)}
}

func (a *auditRecorder) record(name string, passed bool, detail string) {
	if i, ok := a.index[name]; ok {
		c := &a.checks[i]
		c.Passed = c.Passed && passed
		if detail != "" && detail != c.Detail {
			if c.Detail == "" {
				c.Detail = detail
			} else {
				c.Detail += "; " + detail
			}
		}
		return
	}
	a.index[name] = len(a.checks)
	a.checks = append(a.checks, proposal.Check{Name: name, Passed: passed, Detail: detail})
}

func (a *auditRecorder) pass(name, detail string) { a.record(name, true, detail) }
func (a *auditRecorder) fail(name, detail string) { a.record(name, false, detail) }

func (a *auditRecorder) list() []proposal.Check {
	return append([]proposal.Check(nil), a.checks...)
}

// weightSumCheck records whether weights sum to 1. A different sum is
// a configuration anomaly: scoring renormalises and carries on.
func (a *auditRecorder) weightSumCheck(name string, sum float64) {
	if d := sum - 1; d > -weightTolerance && d < weightTolerance {
		a.pass(name, "sum 1")
		return
	}
	a.fail(name, fmt.Sprintf("sum %.4f, weights renormalised", sum))
}

// --- Record digest ---

// ErrRecordTampered is returned by VerifyRecord when the stored digest
// does not match the record.
var ErrRecordTampered = errors.New("audit record digest mismatch")

// digestBody is the decision-relevant part of an output.
type digestBody struct {
	ID              string                     `json:"id"`
	CoopID          string                     `json:"coopId"`
	CreatedAt       string                     `json:"createdAt"`
	Status          proposal.Status            `json:"status"`
	Budget          proposal.Budget            `json:"budget"`
	TreasuryPlan    proposal.TreasuryPlan      `json:"treasuryPlan"`
	GoalScores      proposal.GoalScores        `json:"goalScores"`
	Alternatives    []proposal.Alternative     `json:"alternatives"`
	BestAlternative *proposal.Alternative      `json:"bestAlternative,omitempty"`
	Decision        proposal.Decision          `json:"decision"`
	DecisionReasons []string                   `json:"decisionReasons"`
	MissingData     []proposal.MissingDataItem `json:"missing_data"`
	EngineVersion   string                     `json:"engineVersion"`
	RunID           string                     `json:"runId"`
	CharterDigest   string                     `json:"charterDigest"`
	Checks          []proposal.Check           `json:"checks"`
}

// RecordDigest computes the canonical digest of out's decision-relevant
// fields. out.Audit.RecordDigest itself is not part of the input.
func RecordDigest(out *proposal.Output) (string, error) {
	raw, err := json.Marshal(digestBody{
		ID:              out.ID,
		CoopID:          out.CoopID,
		CreatedAt:       out.CreatedAt,
		Status:          out.Status,
		Budget:          out.Budget,
		TreasuryPlan:    out.TreasuryPlan,
		GoalScores:      out.GoalScores,
		Alternatives:    out.Alternatives,
		BestAlternative: out.BestAlternative,
		Decision:        out.Decision,
		DecisionReasons: out.DecisionReasons,
		MissingData:     out.MissingData,
		EngineVersion:   out.Audit.EngineVersion,
		RunID:           out.Audit.RunID,
		CharterDigest:   out.Audit.CharterDigest,
		Checks:          out.Audit.Checks,
	})
	if err != nil {
		return "", fmt.Errorf("encoding audit record: %w", err)
	}
	return charter.CanonicalDigest(raw)
}

// VerifyRecord recomputes the record digest and compares it with the
// stored one.
func VerifyRecord(out *proposal.Output) error {
	if out == nil {
		return fmt.Errorf("%w: nil record", ErrRecordTampered)
	}
	want, err := RecordDigest(out)
	if err != nil {
		return err
	}
	if out.Audit.RecordDigest != want {
		return fmt.Errorf("%w: stored %s, computed %s", ErrRecordTampered, out.Audit.RecordDigest, want)
	}
	return nil
}

// IsScreeningRuleCheck reports whether name is a per-rule screening
// check and returns the rule id.
func IsScreeningRuleCheck(name string) (string, bool) {
	return strings.CutPrefix(name, checkScreeningRulePrefix)
}
