package pipeline

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/textnorm"
)

// ComplianceFinding is a hard compliance failure found by screening.
type ComplianceFinding struct {
	// Field names the screen, e.g. compliance.sector_exclusion.
	Field   string
	Message string
}

// DetectionContext is everything besides the draft that decides which
// items are missing.
type DetectionContext struct {
	ExtractionFailed bool
	ExtractionDetail string

	RequireRegion bool
	Region        *proposal.Region

	Compliance []ComplianceFinding
}

var placeholders = map[string]bool{
	"tbd": true, "tba": true, "tbc": true, "todo": true,
	"n/a": true, "na": true, "none": true, "null": true,
	"-": true, "--": true, "...": true, "xxx": true,
}

// isPlaceholder reports whether s carries no information: empty, a
// stock placeholder, lorem ipsum or only question marks.
func isPlaceholder(s string) bool {
	f := strings.TrimSpace(textnorm.Fold(s))
	if f == "" {
		return true
	}
	if strings.Contains(f, "lorem ipsum") {
		return true
	}
	if strings.Trim(f, "?") == "" {
		return true
	}
	return placeholders[f] || placeholders[strings.TrimRight(f, ".!")]
}

// DetectMissing lists the fields needed for confident scoring that are
// absent, placeholders or distrusted. It is pure: the same draft and
// context always yield the same items in the same order.
func DetectMissing(d proposal.StructuredDraft, dc DetectionContext) []proposal.MissingDataItem {
	var items []proposal.MissingDataItem
	add := func(field, question, why string, blocking bool) {
		items = append(items, proposal.MissingDataItem{Field: field, Question: question, WhyNeeded: why, Blocking: blocking})
	}

	if dc.ExtractionFailed {
		why := "The proposal text could not be read into structured fields, so nothing in it can be scored with confidence."
		if dc.ExtractionDetail != "" {
			why = fmt.Sprintf("%s (%s)", why, dc.ExtractionDetail)
		}
		add("draft", "Please restate the proposal with an explicit budget, treasury split and expected impact.", why, true)
	}

	if d.AmountRequested == nil {
		add("budget.amountRequested",
			"How much funding does this proposal request?",
			"Budget drives the feasibility and financial prudence scores and the treasury impact.", true)
	}
	if d.Currency == "" {
		add("budget.currency",
			"Is the request in UC, USD or a mix of both?",
			"Currency determines which treasury pays out.", false)
	}
	if d.LocalPercent == nil {
		add("treasuryPlan.localPercent",
			"What percentage of the funds goes to the local treasury?",
			"The local/national split is required to score local economic impact.", true)
	}
	if d.NationalPercent == nil {
		add("treasuryPlan.nationalPercent",
			"What percentage of the funds goes to the national treasury?",
			"The local/national split must be stated in full and sum to 100.", true)
	}
	if isPlaceholder(d.Title) {
		add("title", "What is a short title for this proposal?", "Members browse and vote on proposals by title.", false)
	}
	if isPlaceholder(d.Summary) {
		add("summary", "Can you summarise the proposal in one or two sentences?", "The summary is shown on the ballot.", false)
	}
	if d.Category == "" {
		add("category", "Which sector does this proposal belong to (grocery, housing, energy, ...)?", "Category is used for sector screening and reporting.", false)
	}
	if len(realClaims(d.ImpactClaims)) == 0 {
		add("impactClaims",
			"What measurable outcomes do you expect (households served, jobs created, savings)?",
			"Impact claims are the evidence behind the mission scores.", false)
	}
	if dc.Region == nil || strings.TrimSpace(dc.Region.Code) == "" {
		add("region",
			"Which region or local chapter does this proposal serve?",
			"Region decides which local treasury and members are affected.", dc.RequireRegion)
	}

	for _, c := range dc.Compliance {
		items = append(items, proposal.MissingDataItem{
			Field:      c.Field,
			Question:   "Can the proposal be restructured to satisfy this charter rule?",
			WhyNeeded:  c.Message,
			Blocking:   true,
			Compliance: true,
		})
	}
	return items
}
