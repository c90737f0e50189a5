// Package screening runs compliance screens over a structured proposal:
// the charter's sector exclusion list and its CEL screening rules.
//
// A screening rule is a CEL expression that evaluates to true when the
// proposal VIOLATES the rule. Expressions see three variables: draft,
// proposer and region, each a map keyed by the JSON field names of the
// corresponding proposal type. Absent fields are absent keys, so rules
// should guard with has(), e.g.
//
//	has(draft.amountRequested) && draft.amountRequested > 500000.0
package screening

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/HendryAvila/steward/internal/textnorm"
)

// Rule is one charter-defined screening rule.
type Rule struct {
	ID         string `yaml:"id" json:"id"`
	Expression string `yaml:"expression" json:"expression"`
	Message    string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Facts is the activation a rule is evaluated against.
type Facts map[string]any

// ErrNotBoolean is returned when a rule does not evaluate to a bool.
var ErrNotBoolean = errors.New("screening rule must evaluate to a bool")

// Engine compiles and evaluates screening rules. Compiled programs are
// cached by expression; the engine is safe for concurrent use.
type Engine struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewEngine creates an Engine with the draft/proposer/region variables
// declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("draft", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("proposer", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("region", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL env: %w", err)
	}
	return &Engine{env: env, cache: make(map[string]cel.Program)}, nil
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
	defaultErr    error
)

// Default returns a process-wide engine, created on first use.
func Default() (*Engine, error) {
	defaultOnce.Do(func() {
		defaultEngine, defaultErr = NewEngine()
	})
	return defaultEngine, defaultErr
}

// Compile type-checks rule and caches its program.
func (e *Engine) Compile(rule Rule) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.cache[rule.Expression]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.cache[rule.Expression]; hit {
		return prg, nil
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: compile: %w", rule.ID, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("rule %s: %w (got %s)", rule.ID, ErrNotBoolean, ast.OutputType())
	}
	p, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: program: %w", rule.ID, err)
	}
	e.cache[rule.Expression] = p
	return p, nil
}

// Violated evaluates rule against facts and reports whether it fired.
func (e *Engine) Violated(rule Rule, facts Facts) (bool, error) {
	prg, err := e.Compile(rule)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any(facts))
	if err != nil {
		return false, fmt.Errorf("rule %s: eval: %w", rule.ID, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %s: %w", rule.ID, ErrNotBoolean)
	}
	return v, nil
}

// ValidateRules compiles every rule with the default engine and checks
// ids are present and unique.
func ValidateRules(rules []Rule) error {
	eng, err := Default()
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("screening rule %d: id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("screening rule %s: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if _, err := eng.Compile(r); err != nil {
			return err
		}
	}
	return nil
}

// SectorMatch returns the first exclusion matching the category or
// appearing as a term in the proposal title.
func SectorMatch(category, title string, exclusions []string) (string, bool) {
	cat := textnorm.Fold(category)
	for _, ex := range exclusions {
		folded := textnorm.Fold(ex)
		if folded == "" {
			continue
		}
		if cat == folded || textnorm.ContainsTerm(title, folded) {
			return ex, true
		}
	}
	return "", false
}
