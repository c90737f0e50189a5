package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/extract"
	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/screening"
)

// DefaultExtractTimeout bounds one extractor call.
const DefaultExtractTimeout = 10 * time.Second

// Options configures an Evaluator. Zero values take defaults.
type Options struct {
	// Extractor reads the draft from text. Defaults to the rule
	// extractor.
	Extractor extract.Extractor
	// Scorer defaults to SignalScorer.
	Scorer GoalScorer
	// ExtractTimeout bounds each extractor call.
	ExtractTimeout time.Duration
	// Screening evaluates charter CEL rules. Defaults to the shared
	// engine.
	Screening *screening.Engine
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Evaluator runs the evaluation pipeline. It holds no per-run state
// and is safe for concurrent use.
type Evaluator struct {
	extractor extract.Extractor
	scorer    GoalScorer
	timeout   time.Duration
	screen    *screening.Engine
	metrics   *Metrics
	logger    *slog.Logger
}

// New builds an Evaluator from opts.
func New(opts Options) (*Evaluator, error) {
	e := &Evaluator{
		extractor: opts.Extractor,
		scorer:    opts.Scorer,
		timeout:   opts.ExtractTimeout,
		screen:    opts.Screening,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if e.extractor == nil {
		e.extractor = extract.NewRuleExtractor()
	}
	if e.scorer == nil {
		e.scorer = SignalScorer{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultExtractTimeout
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.screen == nil {
		eng, err := screening.Default()
		if err != nil {
			return nil, fmt.Errorf("creating screening engine: %w", err)
		}
		e.screen = eng
	}
	return e, nil
}

// Evaluate scores in against cfg and decides whether it should go to a
// vote. It fails only when in violates a structural invariant
// (*ValidationError), when cfg is not a valid charter
// (*charter.ValidationError) or when ctx is cancelled. Every other
// problem is reported inside the returned output.
func (e *Evaluator) Evaluate(ctx context.Context, in proposal.Input, cfg *charter.Config) (*proposal.Output, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateInput(in); err != nil {
		e.metrics.observeValidationFailure()
		return nil, err
	}

	audit := newAuditRecorder()
	audit.pass(checkBasicValidation, fmt.Sprintf("text %d characters", utf8.RuneCountInString(strings.TrimSpace(in.Text))))
	if err := cfg.CheckEngine(EngineVersion); err != nil {
		audit.fail(checkEngineCompat, err.Error())
	} else if cfg.EngineCompatibility == "" {
		audit.pass(checkEngineCompat, "no constraint")
	} else {
		audit.pass(checkEngineCompat, fmt.Sprintf("%s satisfies %s", EngineVersion, cfg.EngineCompatibility))
	}
	audit.weightSumCheck(checkGoalWeightsSum, cfg.GoalWeightSum())
	audit.weightSumCheck(checkScoringWeightsSum, cfg.ScoringWeightSum())

	// --- Extraction ---

	extracted, extErr := e.extract(ctx, in.Text)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dc := DetectionContext{RequireRegion: cfg.RequireRegion, Region: in.Region}
	if extErr != nil {
		reason := "error"
		if errors.Is(extErr, context.DeadlineExceeded) {
			reason = "timeout"
		}
		e.metrics.observeExtractorFailure(reason)
		e.logger.Warn("extractor unavailable", "reason", reason, "error", extErr)
		audit.fail(checkFieldExtraction, "extractor unavailable: "+extErr.Error())
		extracted = proposal.StructuredDraft{}
		dc.ExtractionFailed = true
		dc.ExtractionDetail = "extractor unavailable"
	}

	extractedFindings := checkDraft(extracted)
	distrusted := false
	for _, f := range extractedFindings {
		distrusted = distrusted || !f.passed
	}
	switch {
	case distrusted:
		e.metrics.observeExtractorFailure("distrusted")
		e.logger.Warn("extracted draft failed validation, discarding it")
		extracted = proposal.StructuredDraft{}
		dc.ExtractionFailed = true
		dc.ExtractionDetail = "extracted fields failed validation and were discarded"
		audit.fail(checkFieldExtraction, dc.ExtractionDetail)
	case extErr == nil:
		audit.pass(checkFieldExtraction, fmt.Sprintf("%d fields extracted", fieldCount(extracted)))
	}

	draft := mergeDeclared(extracted, in.Declared)
	draft.Category = proposal.NormalizeCategory(draft.Category)
	draft.Text = in.Text

	for i, f := range checkDraft(draft) {
		if ef := extractedFindings[i]; !ef.passed {
			audit.fail(ef.check, "extracted "+ef.detail+", discarded")
		}
		audit.record(f.check, f.passed, f.detail)
	}

	// --- Compliance screening ---

	dc.Compliance = e.screenDraft(draft, in, cfg, audit)

	// --- Scoring, alternatives and missing data, joined before the decision ---

	var (
		original    proposal.GoalScores
		originalErr error
		cands       []candidate
		missing     []proposal.MissingDataItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		original, originalErr = scoreDraft(gctx, e.scorer, draft, cfg)
		return nil
	})
	g.Go(func() error {
		cands = generateAlternatives(gctx, e.scorer, draft, cfg)
		return nil
	})
	g.Go(func() error {
		missing = DetectMissing(draft, dc)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if originalErr != nil {
		e.logger.Error("scoring original draft failed", "error", originalErr)
		audit.fail(checkGoalScoring, originalErr.Error())
		original = zeroScores(cfg)
		missing = append(missing, proposal.MissingDataItem{
			Field:     "goalScores",
			Question:  "Scoring could not complete for this proposal. Please resubmit it.",
			WhyNeeded: "A proposal cannot advance without goal scores.",
			Blocking:  true,
		})
	} else {
		audit.pass(checkGoalScoring, fmt.Sprintf("%d goals, composite %.4f", len(original.Goals), original.Composite))
	}

	alts := []proposal.Alternative{}
	if originalErr == nil {
		if kept := selectAlternatives(cands, original.Composite, cfg.MaxAlternatives()); kept != nil {
			alts = kept
		}
	}
	var dropped []string
	for _, c := range cands {
		if c.err != nil {
			dropped = append(dropped, fmt.Sprintf("%s: %v", c.alt.Label, c.err))
		}
	}
	if len(dropped) > 0 {
		e.logger.Warn("alternatives dropped", "count", len(dropped))
		audit.fail(checkAlternativeScoring, "dropped "+strings.Join(dropped, "; "))
	} else {
		audit.pass(checkAlternativeScoring, fmt.Sprintf("%d candidates, %d kept", len(cands), len(alts)))
	}

	if missing == nil {
		missing = []proposal.MissingDataItem{}
	}
	blocking := 0
	for _, m := range missing {
		if m.Blocking {
			blocking++
		}
	}
	scan := fmt.Sprintf("%d items, %d blocking", len(missing), blocking)
	if blocking > 0 {
		audit.fail(checkMissingDataScan, scan)
	} else {
		audit.pass(checkMissingDataScan, scan)
	}

	// --- Decision and packaging ---

	res := Decide(DecisionInput{
		Original:     original,
		Alternatives: alts,
		Missing:      missing,
		Goals:        cfg.GoalDefinitions,
		Policy:       PolicyFor(cfg),
	})

	id, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("allocating proposal id: %w", err)
	}
	charterDigest, err := cfg.Digest()
	if err != nil {
		return nil, fmt.Errorf("digesting charter: %w", err)
	}

	out := &proposal.Output{
		ID:        id,
		CoopID:    cfg.CoopID,
		CreatedAt: timeNow().UTC().Format(time.RFC3339),
		Status:    res.Status,
		Title:     draft.Title,
		Summary:   draft.Summary,
		Proposer:  copyProposer(in.Proposer),
		Region:    copyRegion(in.Region),
		Category:  draft.Category,
		Budget: proposal.Budget{
			Currency:        draft.Currency,
			AmountRequested: copyFloat(draft.AmountRequested),
		},
		TreasuryPlan: proposal.TreasuryPlan{
			LocalPercent:    copyFloat(draft.LocalPercent),
			NationalPercent: copyFloat(draft.NationalPercent),
			Notes:           draft.TreasuryNotes,
		},
		Evaluation: evaluation(draft, original, cfg),
		Governance: proposal.Governance{
			QuorumPercent:            cfg.QuorumPercent,
			ApprovalThresholdPercent: cfg.ApprovalThresholdPercent,
			VotingWindowDays:         cfg.VotingWindowDays,
		},
		Audit: proposal.Audit{
			EngineVersion: EngineVersionString(),
			RunID:         uuid.NewString(),
			CharterDigest: charterDigest,
			Checks:        audit.list(),
		},
		GoalScores:      original,
		Alternatives:    alts,
		BestAlternative: res.BestAlternative,
		Decision:        res.Decision,
		DecisionReasons: res.Reasons,
		MissingData:     missing,
	}
	if out.Audit.RecordDigest, err = RecordDigest(out); err != nil {
		return nil, err
	}

	e.metrics.observeRun(out, time.Since(start))
	e.logger.Info("proposal evaluated",
		"id", out.ID,
		"coop", out.CoopID,
		"decision", out.Decision,
		"composite", original.Composite,
		"alternatives", len(alts),
		"missing", len(missing))
	return out, nil
}

// extract calls the extractor under the run timeout. On timeout the
// call is abandoned: its goroutine finishes into a buffered channel
// nobody reads.
func (e *Evaluator) extract(ctx context.Context, text string) (proposal.StructuredDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		draft proposal.StructuredDraft
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("%w: panic: %v", extract.ErrUnavailable, r)}
			}
		}()
		d, err := e.extractor.Extract(ctx, text)
		ch <- result{draft: d, err: err}
	}()

	select {
	case r := <-ch:
		return r.draft, r.err
	case <-ctx.Done():
		return proposal.StructuredDraft{}, fmt.Errorf("%w: %w", extract.ErrUnavailable, ctx.Err())
	}
}

// screenDraft runs the sector exclusion screen and every charter CEL
// rule, recording one check each.
func (e *Evaluator) screenDraft(d proposal.StructuredDraft, in proposal.Input, cfg *charter.Config, audit *auditRecorder) []ComplianceFinding {
	var findings []ComplianceFinding

	// The body may mention an excluded sector without belonging to it,
	// so only the category and title are screened.
	if len(cfg.SectorExclusions) == 0 {
		audit.pass(checkSectorExclusion, "no exclusions configured")
	} else if ex, hit := screening.SectorMatch(string(d.Category), d.Title, cfg.SectorExclusions); hit {
		audit.fail(checkSectorExclusion, fmt.Sprintf("matches excluded sector %q", ex))
		findings = append(findings, ComplianceFinding{
			Field:   "compliance.sector_exclusion",
			Message: fmt.Sprintf("The charter excludes the %q sector.", ex),
		})
	} else {
		audit.pass(checkSectorExclusion, fmt.Sprintf("%d exclusions, no match", len(cfg.SectorExclusions)))
	}

	if len(cfg.ScreeningRules) == 0 {
		return findings
	}
	facts := screening.Facts{
		"draft":    toFacts(d),
		"proposer": toFacts(in.Proposer),
		"region":   toFacts(in.Region),
	}
	for _, rule := range cfg.ScreeningRules {
		name := checkScreeningRulePrefix + rule.ID
		violated, err := e.screen.Violated(rule, facts)
		switch {
		case err != nil:
			e.logger.Warn("screening rule failed to evaluate", "rule", rule.ID, "error", err)
			audit.fail(name, "evaluation error: "+err.Error())
		case violated:
			msg := rule.Message
			if msg == "" {
				msg = fmt.Sprintf("Screening rule %s matched.", rule.ID)
			}
			audit.fail(name, msg)
			findings = append(findings, ComplianceFinding{Field: "compliance." + rule.ID, Message: msg})
		default:
			audit.pass(name, "not triggered")
		}
	}
	return findings
}

// toFacts converts v into the map shape CEL rules see, keyed by JSON
// field name. nil becomes an empty map.
func toFacts(v any) map[string]any {
	out := map[string]any{}
	raw, err := json.Marshal(v)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func fieldCount(d proposal.StructuredDraft) int {
	n := 0
	for _, set := range []bool{
		d.Title != "", d.Summary != "", d.Category != "", d.Currency != "",
		d.AmountRequested != nil, d.LocalPercent != nil, d.NationalPercent != nil,
		d.TreasuryNotes != "", len(d.ImpactClaims) > 0,
	} {
		if set {
			n++
		}
	}
	return n
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	return proposal.Float(*p)
}

func copyProposer(p *proposal.Proposer) *proposal.Proposer {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func copyRegion(r *proposal.Region) *proposal.Region {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
