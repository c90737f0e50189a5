// Package proposal defines the data model shared by the evaluation
// engine, the proposal store and the MCP surface.
//
// Types here carry no behaviour beyond validation of enum values and
// cloning; the engine lives in internal/pipeline.
package proposal

import (
	"fmt"
	"strings"
)

// --- Proposer role enum ---

// Role is the proposer's relationship to the cooperative.
type Role string

const (
	RoleMember   Role = "member"
	RoleMerchant Role = "merchant"
	RoleAnchor   Role = "anchor"
	RoleBot      Role = "bot"
)

var validRoles = map[Role]bool{
	RoleMember:   true,
	RoleMerchant: true,
	RoleAnchor:   true,
	RoleBot:      true,
}

// ValidateRole returns an error if the role is not recognized.
func ValidateRole(r Role) error {
	if !validRoles[r] {
		return fmt.Errorf("invalid proposer role %q: must be one of: member, merchant, anchor, bot", r)
	}
	return nil
}

// --- Currency enum ---

// Currency is the denomination of a budget request.
type Currency string

const (
	CurrencyUC    Currency = "UC"
	CurrencyUSD   Currency = "USD"
	CurrencyMixed Currency = "mixed"
)

var validCurrencies = map[Currency]bool{
	CurrencyUC:    true,
	CurrencyUSD:   true,
	CurrencyMixed: true,
}

// ValidateCurrency returns an error if the currency is not recognized.
func ValidateCurrency(c Currency) error {
	if !validCurrencies[c] {
		return fmt.Errorf("invalid currency %q: must be one of: UC, USD, mixed", c)
	}
	return nil
}

// --- Category enum ---

// Category is the sector a proposal belongs to. The set is open:
// anything unrecognised normalises to CategoryOther.
type Category string

const (
	CategoryGrocery     Category = "grocery"
	CategoryHousing     Category = "housing"
	CategoryEnergy      Category = "energy"
	CategoryEducation   Category = "education"
	CategoryHealth      Category = "health"
	CategoryTransport   Category = "transport"
	CategoryAgriculture Category = "agriculture"
	CategoryTechnology  Category = "technology"
	CategoryFinance     Category = "finance"
	CategoryOther       Category = "other"
)

var knownCategories = map[Category]bool{
	CategoryGrocery:     true,
	CategoryHousing:     true,
	CategoryEnergy:      true,
	CategoryEducation:   true,
	CategoryHealth:      true,
	CategoryTransport:   true,
	CategoryAgriculture: true,
	CategoryTechnology:  true,
	CategoryFinance:     true,
	CategoryOther:       true,
}

// NormalizeCategory lowercases c and maps unknown values to "other".
// The empty string stays empty (absent).
func NormalizeCategory(c Category) Category {
	norm := Category(strings.ToLower(strings.TrimSpace(string(c))))
	if norm == "" {
		return ""
	}
	if !knownCategories[norm] {
		return CategoryOther
	}
	return norm
}

// --- Decision and status enums ---

// Decision is the engine's recommendation for a proposal.
type Decision string

const (
	DecisionAdvance Decision = "advance"
	DecisionRevise  Decision = "revise"
	DecisionBlock   Decision = "block"
)

// Status is the legacy workflow status. It is always derived from a
// Decision, never computed on its own.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusVotable   Status = "votable"
	StatusApproved  Status = "approved"
	StatusFunded    Status = "funded"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

var validStatuses = map[Status]bool{
	StatusDraft:     true,
	StatusSubmitted: true,
	StatusVotable:   true,
	StatusApproved:  true,
	StatusFunded:    true,
	StatusRejected:  true,
	StatusFailed:    true,
}

// ValidateStatus returns an error if the status is not recognized.
func ValidateStatus(s Status) error {
	if !validStatuses[s] {
		return fmt.Errorf("invalid status %q", s)
	}
	return nil
}

// --- Input ---

// Proposer identifies who submitted a proposal. Wallet is opaque: no
// signature or balance verification happens here.
type Proposer struct {
	Wallet      string `json:"wallet,omitempty"`
	Role        Role   `json:"role,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Region is the geographic scope of a proposal.
type Region struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// Declared holds structured fields the author filled in alongside the
// free text. They are user input: validated strictly and preferred
// over extracted values.
type Declared struct {
	Title           string   `json:"title,omitempty"`
	Category        Category `json:"category,omitempty"`
	Currency        Currency `json:"currency,omitempty"`
	AmountRequested *float64 `json:"amountRequested,omitempty"`
	LocalPercent    *float64 `json:"localPercent,omitempty"`
	NationalPercent *float64 `json:"nationalPercent,omitempty"`
}

// Input is a raw proposal submission.
type Input struct {
	Text     string    `json:"text"`
	Proposer *Proposer `json:"proposer,omitempty"`
	Region   *Region   `json:"region,omitempty"`
	Declared *Declared `json:"declared,omitempty"`
}

// --- Structured draft ---

// StructuredDraft is the structured reading of a proposal. Pointer
// fields are nil when the value is absent.
type StructuredDraft struct {
	Title           string   `json:"title,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Category        Category `json:"category,omitempty"`
	Currency        Currency `json:"currency,omitempty"`
	AmountRequested *float64 `json:"amountRequested,omitempty"`
	LocalPercent    *float64 `json:"localPercent,omitempty"`
	NationalPercent *float64 `json:"nationalPercent,omitempty"`
	TreasuryNotes   string   `json:"treasuryNotes,omitempty"`
	ImpactClaims    []string `json:"impactClaims,omitempty"`

	// Text is the normalised source text the draft was read from. It
	// feeds keyword signals and is never serialised.
	Text string `json:"-"`
}

// Clone returns a deep copy so alternatives never alias the original.
func (d StructuredDraft) Clone() StructuredDraft {
	c := d
	c.AmountRequested = clonePtr(d.AmountRequested)
	c.LocalPercent = clonePtr(d.LocalPercent)
	c.NationalPercent = clonePtr(d.NationalPercent)
	if d.ImpactClaims != nil {
		c.ImpactClaims = append([]string(nil), d.ImpactClaims...)
	}
	return c
}

// IsEmpty reports whether no structured field is populated.
func (d StructuredDraft) IsEmpty() bool {
	return d.Title == "" && d.Summary == "" && d.Category == "" && d.Currency == "" &&
		d.AmountRequested == nil && d.LocalPercent == nil && d.NationalPercent == nil &&
		d.TreasuryNotes == "" && len(d.ImpactClaims) == 0
}

// Float returns a pointer to v. Handy for building drafts and inputs.
func Float(v float64) *float64 {
	return &v
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
