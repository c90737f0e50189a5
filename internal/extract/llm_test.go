package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/HendryAvila/steward/internal/proposal"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"backend down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1,
			"model":   req["model"],
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestLLM(srv *httptest.Server) *LLMExtractor {
	return NewLLMExtractor(LLMConfig{BaseURL: srv.URL + "/v1", APIKey: "test", Model: "test-model"})
}

func extractWith(t *testing.T, srv *httptest.Server) proposal.StructuredDraft {
	t.Helper()
	d, err := newTestLLM(srv).Extract(context.Background(), "proposal text")
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	return d
}

func TestLLMExtractor_ParsesReply(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{
		"title": "Solar for the hall",
		"summary": "Rooftop panels.",
		"category": "ENERGY",
		"currency": "usd",
		"amountRequested": 42000,
		"localPercent": 60,
		"nationalPercent": 40,
		"treasuryNotes": null,
		"impactClaims": ["cuts bills by 30%", " "]
	}`)

	d := extractWith(t, srv)
	if d.Title != "Solar for the hall" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Category != proposal.CategoryEnergy {
		t.Errorf("Category = %q, want energy", d.Category)
	}
	if d.Currency != proposal.CurrencyUSD {
		t.Errorf("Currency = %q, want USD", d.Currency)
	}
	if d.AmountRequested == nil || *d.AmountRequested != 42000 {
		t.Errorf("AmountRequested = %v, want 42000", d.AmountRequested)
	}
	if want := []string{"cuts bills by 30%"}; !reflect.DeepEqual(d.ImpactClaims, want) {
		t.Errorf("ImpactClaims = %q, want %q", d.ImpactClaims, want)
	}
}

func TestLLMExtractor_FencedReplyWithTrailingComma(t *testing.T) {
	srv := completionServer(t, http.StatusOK, "Here you go:\n```json\n{\"title\": \"Bikes\", \"amountRequested\": null,}\n```")

	d := extractWith(t, srv)
	if d.Title != "Bikes" {
		t.Errorf("Title = %q, want Bikes", d.Title)
	}
	if d.AmountRequested != nil {
		t.Errorf("AmountRequested = %v, want nil", *d.AmountRequested)
	}
}

func TestLLMExtractor_UnknownCurrencyPassesThrough(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{"currency": "EUR"}`)
	if d := extractWith(t, srv); d.Currency != proposal.Currency("EUR") {
		t.Errorf("Currency = %q, want EUR", d.Currency)
	}
}

func TestLLMExtractor_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"no json", http.StatusOK, "I cannot help with that."},
		{"broken json", http.StatusOK, `{"title": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.status, tt.content)
			_, err := newTestLLM(srv).Extract(context.Background(), "proposal text")
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("Extract() error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestLLMExtractor_CancelledContext(t *testing.T) {
	srv := completionServer(t, http.StatusOK, `{}`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLLM(srv).Extract(ctx, "proposal text")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want ErrUnavailable wrapping context.Canceled", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"noise {\"a\": 1,} noise", `{"a": 1}`},
		{"nothing here", ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
