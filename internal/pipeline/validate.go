// Package pipeline is the proposal evaluation engine: validation,
// goal scoring, alternative generation, missing-data detection, the
// decision policy and the audit record.
//
// Only structural validation of the raw input fails a run. Everything
// after it degrades into the output (missing data, failed audit
// checks, a revise/block decision) instead of returning an error.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/HendryAvila/steward/internal/proposal"
)

// MinTextLength is the minimum proposal text length in runes, after
// trimming surrounding whitespace.
const MinTextLength = 20

// ErrValidation is the sentinel wrapped by every input validation
// failure.
var ErrValidation = errors.New("validation failed")

// ValidationError is a structural invariant violated by the raw input.
// It is the only error Evaluate returns for input problems.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidateInput enforces the input invariants. It returns the first
// violation found.
func ValidateInput(in proposal.Input) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(in.Text)); n < MinTextLength {
		return invalid("text", "must be at least %d characters, got %d", MinTextLength, n)
	}

	if p := in.Proposer; p != nil && p.Role != "" {
		if err := proposal.ValidateRole(p.Role); err != nil {
			return invalid("proposer.role", "%v", err)
		}
	}

	if r := in.Region; r != nil && strings.TrimSpace(r.Code) == "" {
		return invalid("region.code", "is required when region is given")
	}

	if d := in.Declared; d != nil {
		if err := validateDeclared(d); err != nil {
			return err
		}
	}
	return nil
}

func validateDeclared(d *proposal.Declared) error {
	if d.Currency != "" {
		if err := proposal.ValidateCurrency(d.Currency); err != nil {
			return invalid("declared.currency", "%v", err)
		}
	}
	if v := d.AmountRequested; v != nil {
		if !finite(*v) || *v < 0 {
			return invalid("declared.amountRequested", "must be a non-negative number, got %v", *v)
		}
	}

	local, national := d.LocalPercent, d.NationalPercent
	if (local == nil) != (national == nil) {
		field := "declared.nationalPercent"
		if local == nil {
			field = "declared.localPercent"
		}
		return invalid(field, "local and national percentages must be declared together")
	}
	if local == nil {
		return nil
	}
	if !percentInRange(*local) {
		return invalid("declared.localPercent", "must be between 0 and 100, got %v", *local)
	}
	if !percentInRange(*national) {
		return invalid("declared.nationalPercent", "must be between 0 and 100, got %v", *national)
	}
	if *local+*national != 100 {
		return invalid("declared.localPercent", "local and national must sum to 100, got %v", *local+*national)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func percentInRange(v float64) bool { return finite(v) && v >= 0 && v <= 100 }

// --- Extractor output ---

// draftFinding is the outcome of one invariant check on an extracted
// draft.
type draftFinding struct {
	check  string
	passed bool
	detail string
}

// checkDraft runs the input type constraints over extractor output.
// The findings are returned in fixed check order.
func checkDraft(d proposal.StructuredDraft) []draftFinding {
	out := make([]draftFinding, 0, 4)

	switch v := d.AmountRequested; {
	case v == nil:
		out = append(out, draftFinding{checkAmountNonNegative, true, notProvided})
	case !finite(*v) || *v < 0:
		out = append(out, draftFinding{checkAmountNonNegative, false, fmt.Sprintf("amountRequested %v is negative or not a number", *v)})
	default:
		out = append(out, draftFinding{checkAmountNonNegative, true, fmt.Sprintf("amountRequested %v", *v)})
	}

	local, national := d.LocalPercent, d.NationalPercent
	rangeOK := true
	var bad []string
	if local != nil && !percentInRange(*local) {
		rangeOK = false
		bad = append(bad, fmt.Sprintf("localPercent %v", *local))
	}
	if national != nil && !percentInRange(*national) {
		rangeOK = false
		bad = append(bad, fmt.Sprintf("nationalPercent %v", *national))
	}
	switch {
	case local == nil && national == nil:
		out = append(out, draftFinding{checkPercentageRange, true, notProvided})
	case rangeOK:
		out = append(out, draftFinding{checkPercentageRange, true, "within 0-100"})
	default:
		out = append(out, draftFinding{checkPercentageRange, false, strings.Join(bad, ", ") + " outside 0-100"})
	}

	switch {
	case local == nil && national == nil:
		out = append(out, draftFinding{checkTreasurySum, true, notProvided})
	case local == nil || national == nil:
		out = append(out, draftFinding{checkTreasurySum, true, "split incomplete; only one side provided"})
	case *local+*national != 100:
		out = append(out, draftFinding{checkTreasurySum, false, fmt.Sprintf("local %v + national %v = %v, want 100", *local, *national, *local+*national)})
	default:
		out = append(out, draftFinding{checkTreasurySum, true, fmt.Sprintf("local %v + national %v = 100", *local, *national)})
	}

	switch {
	case d.Currency == "":
		out = append(out, draftFinding{checkCurrencyKnown, true, notProvided})
	case proposal.ValidateCurrency(d.Currency) != nil:
		out = append(out, draftFinding{checkCurrencyKnown, false, fmt.Sprintf("unknown currency %q", d.Currency)})
	default:
		out = append(out, draftFinding{checkCurrencyKnown, true, string(d.Currency)})
	}
	return out
}

// mergeDeclared overlays author-declared fields on the draft. Declared
// values have already passed ValidateInput.
func mergeDeclared(d proposal.StructuredDraft, decl *proposal.Declared) proposal.StructuredDraft {
	if decl == nil {
		return d
	}
	if t := strings.TrimSpace(decl.Title); t != "" {
		d.Title = t
	}
	if decl.Category != "" {
		d.Category = decl.Category
	}
	if decl.Currency != "" {
		d.Currency = decl.Currency
	}
	if decl.AmountRequested != nil {
		d.AmountRequested = proposal.Float(*decl.AmountRequested)
	}
	if decl.LocalPercent != nil && decl.NationalPercent != nil {
		d.LocalPercent = proposal.Float(*decl.LocalPercent)
		d.NationalPercent = proposal.Float(*decl.NationalPercent)
	}
	return d
}
