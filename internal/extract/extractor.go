// Package extract turns free proposal text into a structured draft.
//
// Extraction is advisory. The evaluation engine re-checks everything an
// Extractor returns and distrusts the whole draft when any value is out
// of range, so implementations may be best-effort.
package extract

import (
	"context"
	"errors"

	"github.com/HendryAvila/steward/internal/proposal"
)

// ErrUnavailable is returned when the text-understanding capability
// could not produce a draft (backend down, timeout, unparseable reply).
var ErrUnavailable = errors.New("field extraction unavailable")

// Extractor reads a structured draft out of proposal text. Absent
// fields stay nil/empty; implementations must not invent values.
type Extractor interface {
	Extract(ctx context.Context, text string) (proposal.StructuredDraft, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, text string) (proposal.StructuredDraft, error)

// Extract implements Extractor.
func (f Func) Extract(ctx context.Context, text string) (proposal.StructuredDraft, error) {
	return f(ctx, text)
}

// Kind names a configured extractor backend.
type Kind string

const (
	KindRules Kind = "rules"
	KindLLM   Kind = "llm"
)
