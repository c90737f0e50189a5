package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/HendryAvila/steward/internal/proposal"
)

const systemPrompt = `You extract structured fields from cooperative funding proposals.
Reply with a single JSON object and nothing else, using exactly these keys:
title (string), summary (string, at most two sentences), category (one of grocery, housing, energy, education, health, transport, agriculture, technology, finance, other),
currency (one of UC, USD, mixed), amountRequested (number), localPercent (number 0-100), nationalPercent (number 0-100),
treasuryNotes (string), impactClaims (array of strings).
Use null for anything the text does not state. Never guess numbers.`

// LLMConfig configures an LLMExtractor.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// RequestsPerSecond caps outgoing calls; 0 means unlimited.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// LLMExtractor asks an OpenAI-compatible chat completion endpoint for
// the draft. Every failure maps to ErrUnavailable.
type LLMExtractor struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewLLMExtractor builds an extractor from cfg.
func NewLLMExtractor(cfg LLMConfig) *LLMExtractor {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &LLMExtractor{
		client:  openai.NewClientWithConfig(oc),
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

type llmReply struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Category        string   `json:"category"`
	Currency        string   `json:"currency"`
	AmountRequested *float64 `json:"amountRequested"`
	LocalPercent    *float64 `json:"localPercent"`
	NationalPercent *float64 `json:"nationalPercent"`
	TreasuryNotes   string   `json:"treasuryNotes"`
	ImpactClaims    []string `json:"impactClaims"`
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (proposal.StructuredDraft, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return proposal.StructuredDraft{}, fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		e.logger.Warn("llm extraction failed", "model", e.model, "error", err)
		return proposal.StructuredDraft{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return proposal.StructuredDraft{}, fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	if raw == "" {
		return proposal.StructuredDraft{}, fmt.Errorf("%w: no JSON object in reply", ErrUnavailable)
	}
	var reply llmReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return proposal.StructuredDraft{}, fmt.Errorf("%w: decoding reply: %w", ErrUnavailable, err)
	}
	return reply.draft(), nil
}

func (r llmReply) draft() proposal.StructuredDraft {
	d := proposal.StructuredDraft{
		Title:           strings.TrimSpace(r.Title),
		Summary:         strings.TrimSpace(r.Summary),
		Category:        proposal.NormalizeCategory(proposal.Category(r.Category)),
		Currency:        canonicalCurrency(r.Currency),
		AmountRequested: r.AmountRequested,
		LocalPercent:    r.LocalPercent,
		NationalPercent: r.NationalPercent,
		TreasuryNotes:   strings.TrimSpace(r.TreasuryNotes),
	}
	for _, c := range r.ImpactClaims {
		if c = strings.TrimSpace(c); c != "" {
			d.ImpactClaims = append(d.ImpactClaims, c)
		}
	}
	return d
}

// canonicalCurrency fixes the case of known currencies and passes
// anything else through for the engine to reject.
func canonicalCurrency(s string) proposal.Currency {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return ""
	case "uc":
		return proposal.CurrencyUC
	case "usd":
		return proposal.CurrencyUSD
	case "mixed":
		return proposal.CurrencyMixed
	}
	return proposal.Currency(s)
}

// --- Lenient reply parsing ---

var (
	fencedObject   = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObject     = regexp.MustCompile(`(?s)\{.*\}`)
	trailingCommas = regexp.MustCompile(`,\s*([}\]])`)
)

// extractJSON pulls the JSON object out of a model reply, tolerating
// markdown fences and trailing commas.
func extractJSON(content string) string {
	raw := ""
	if m := fencedObject.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObject.FindString(content)
	}
	if raw == "" {
		return ""
	}
	return trailingCommas.ReplaceAllString(raw, "$1")
}
