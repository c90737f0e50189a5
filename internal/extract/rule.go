package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/HendryAvila/steward/internal/proposal"
	"github.com/HendryAvila/steward/internal/textnorm"
)

const (
	maxTitleRunes   = 100
	maxSummaryRunes = 300
	maxImpactClaims = 5
)

var (
	moneyPattern = regexp.MustCompile(`(?i)(\$|\busd\s?|\buc\s)?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(?:\s?(k|thousand|million|mm|bn|billion)\b)?(?:\s?(usd|uc|dollars?|unity credits?)\b)?`)

	ratioPattern   = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*/\s*(\d{1,3}(?:\.\d+)?)\s*(?:split\s+)?\(?\s*(local|national)\s*/\s*(local|national)\b`)
	pctSidePattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%\s*(?:(?:to|for|in|into)\s+)?(?:the\s+)?(local|national)\b`)
	sidePctPattern = regexp.MustCompile(`\b(local|national)(?:\s+(?:treasury|share|pool))?\s*[:=-]?\s*(\d{1,3}(?:\.\d+)?)\s*%`)

	titlePrefix = regexp.MustCompile(`(?i)^\s*(?:#+\s*|title\s*:\s*|proposal\s*:\s*)`)
)

var scaleFactor = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"million":  1e6,
	"mm":       1e6,
	"bn":       1e9,
	"billion":  1e9,
}

// categoryOrder breaks ties between categories with equal hit counts.
var categoryOrder = []proposal.Category{
	proposal.CategoryGrocery,
	proposal.CategoryHousing,
	proposal.CategoryEnergy,
	proposal.CategoryEducation,
	proposal.CategoryHealth,
	proposal.CategoryTransport,
	proposal.CategoryAgriculture,
	proposal.CategoryTechnology,
	proposal.CategoryFinance,
}

var categoryTerms = map[proposal.Category][]string{
	proposal.CategoryGrocery:     {"grocery", "groceries", "food", "supermarket", "market", "produce", "food co-op"},
	proposal.CategoryHousing:     {"housing", "apartment", "apartments", "rent", "homes", "tenants", "affordable housing"},
	proposal.CategoryEnergy:      {"solar", "energy", "electricity", "renewable", "battery", "microgrid", "wind"},
	proposal.CategoryEducation:   {"school", "education", "training", "tutoring", "classes", "scholarship", "literacy"},
	proposal.CategoryHealth:      {"health", "clinic", "medical", "wellness", "pharmacy", "care"},
	proposal.CategoryTransport:   {"transport", "transit", "bus", "bike", "bicycle", "shuttle", "ride share"},
	proposal.CategoryAgriculture: {"farm", "farms", "agriculture", "garden", "crops", "orchard", "seeds"},
	proposal.CategoryTechnology:  {"software", "app", "technology", "platform", "digital", "website"},
	proposal.CategoryFinance:     {"loan", "loans", "credit union", "microloans", "savings", "insurance", "lending"},
}

var impactVerbs = map[string]bool{
	"serve": true, "serves": true, "serving": true,
	"reach": true, "reaches": true,
	"create": true, "creates": true, "creating": true,
	"reduce": true, "reduces": true, "reducing": true,
	"save": true, "saves": true, "saving": true,
	"increase": true, "increases": true,
	"improve": true, "improves": true,
	"provide": true, "provides": true,
	"benefit": true, "benefits": true,
	"employ": true, "hire": true, "hires": true,
	"lower": true, "lowers": true,
	"cut": true, "cuts": true,
	"jobs": true,
}

// RuleExtractor is a deterministic, pattern based Extractor. It never
// returns ErrUnavailable.
type RuleExtractor struct{}

// NewRuleExtractor returns a RuleExtractor.
func NewRuleExtractor() *RuleExtractor { return &RuleExtractor{} }

// Extract implements Extractor.
func (RuleExtractor) Extract(ctx context.Context, text string) (proposal.StructuredDraft, error) {
	if err := ctx.Err(); err != nil {
		return proposal.StructuredDraft{}, err
	}
	text = norm.NFKC.String(text)
	if strings.TrimSpace(text) == "" {
		return proposal.StructuredDraft{}, nil
	}

	var d proposal.StructuredDraft
	title, body := splitTitle(text)
	d.Title = title

	sentences := splitSentences(body)
	d.Summary = summarize(sentences)
	d.Category = detectCategory(text)
	d.AmountRequested, d.Currency = detectAmount(text)
	d.LocalPercent, d.NationalPercent, d.TreasuryNotes = detectSplit(sentences)
	d.ImpactClaims = detectClaims(sentences)
	return d, nil
}

// --- Title and summary ---

func splitTitle(text string) (title, body string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	first := strings.TrimSpace(titlePrefix.ReplaceAllString(lines[0], ""))
	rest := strings.TrimSpace(strings.Join(lines[1:], "\n"))

	// A short first line followed by more text is a heading.
	if rest != "" && utf8.RuneCountInString(first) <= maxTitleRunes {
		return strings.TrimRight(first, ".:"), rest
	}
	all := strings.TrimSpace(titlePrefix.ReplaceAllString(text, ""))
	sentences := splitSentences(all)
	if len(sentences) == 0 {
		return "", all
	}
	return truncateWords(strings.TrimRight(sentences[0], "."), maxTitleRunes), all
}

func summarize(sentences []string) string {
	var b strings.Builder
	for i, s := range sentences {
		if i == 2 {
			break
		}
		if b.Len() > 0 {
			if utf8.RuneCountInString(b.String())+1+utf8.RuneCountInString(s) > maxSummaryRunes {
				break
			}
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return truncateWords(b.String(), maxSummaryRunes)
}

func truncateWords(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)[:limit]
	cut := strings.LastIndexFunc(string(runes), unicode.IsSpace)
	if cut <= 0 {
		return string(runes)
	}
	return strings.TrimSpace(string(runes)[:cut])
}

// splitSentences breaks text on newlines and on ., ! or ? followed by
// whitespace.
func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		start := 0
		runes := []rune(line)
		for i, r := range runes {
			if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
				if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- Category ---

func detectCategory(text string) proposal.Category {
	best, bestHits := proposal.Category(""), 0
	for _, cat := range categoryOrder {
		hits := 0
		for _, term := range categoryTerms[cat] {
			if textnorm.ContainsTerm(text, term) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}
	return best
}

// --- Budget ---

type moneyMatch struct {
	amount   float64
	currency proposal.Currency
	scaled   bool
}

func detectAmount(text string) (*float64, proposal.Currency) {
	var candidates []moneyMatch
	for _, loc := range moneyPattern.FindAllStringSubmatchIndex(text, -1) {
		if followedByPercent(text, loc[1]) || adjacentSlash(text, loc[0], loc[1]) {
			continue
		}
		pre := strings.ToLower(strings.TrimSpace(group(text, loc, 1)))
		num := group(text, loc, 2)
		scale := strings.ToLower(group(text, loc, 3))
		post := strings.ToLower(group(text, loc, 4))

		m := moneyMatch{currency: currencyOf(pre, post), scaled: scale != ""}
		if m.currency == "" && !m.scaled {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
		if err != nil {
			continue
		}
		if f, ok := scaleFactor[scale]; ok {
			v *= f
		}
		m.amount = v
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return nil, ""
	}

	chosen := candidates[0]
	seen := map[proposal.Currency]bool{}
	for _, c := range candidates {
		if c.currency != "" {
			seen[c.currency] = true
		}
	}
	for _, c := range candidates {
		if c.currency != "" {
			chosen = c
			break
		}
	}

	currency := chosen.currency
	if seen[proposal.CurrencyUSD] && seen[proposal.CurrencyUC] {
		currency = proposal.CurrencyMixed
	}
	return proposal.Float(chosen.amount), currency
}

func currencyOf(pre, post string) proposal.Currency {
	switch {
	case pre == "$" || pre == "usd" || post == "usd" || strings.HasPrefix(post, "dollar"):
		return proposal.CurrencyUSD
	case pre == "uc" || post == "uc" || strings.HasPrefix(post, "unity credit"):
		return proposal.CurrencyUC
	}
	return ""
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

func followedByPercent(s string, end int) bool {
	rest := strings.TrimLeft(s[end:], " ")
	return strings.HasPrefix(rest, "%")
}

func adjacentSlash(s string, start, end int) bool {
	return (start > 0 && s[start-1] == '/') || (end < len(s) && s[end] == '/')
}

// --- Treasury split ---

func detectSplit(sentences []string) (local, national *float64, notes string) {
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		found := false

		if m := ratioPattern.FindStringSubmatch(lower); m != nil && m[3] != m[4] {
			a, b := parsePercent(m[1]), parsePercent(m[2])
			if m[3] == "local" {
				local, national = orKeep(local, a), orKeep(national, b)
			} else {
				national, local = orKeep(national, a), orKeep(local, b)
			}
			found = true
		}
		for _, m := range pctSidePattern.FindAllStringSubmatch(lower, -1) {
			local, national = assignSide(local, national, m[2], m[1])
			found = true
		}
		for _, m := range sidePctPattern.FindAllStringSubmatch(lower, -1) {
			local, national = assignSide(local, national, m[1], m[2])
			found = true
		}
		if found && notes == "" {
			notes = sentence
		}
		if local != nil && national != nil {
			break
		}
	}
	return local, national, notes
}

func assignSide(local, national *float64, side, value string) (*float64, *float64) {
	v := parsePercent(value)
	if side == "local" {
		return orKeep(local, v), national
	}
	return local, orKeep(national, v)
}

func orKeep(cur, next *float64) *float64 {
	if cur != nil {
		return cur
	}
	return next
}

func parsePercent(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return proposal.Float(v)
}

// --- Impact claims ---

func detectClaims(sentences []string) []string {
	var claims []string
	for _, s := range sentences {
		for _, w := range textnorm.Words(s) {
			if impactVerbs[w] {
				claims = append(claims, s)
				break
			}
		}
		if len(claims) == maxImpactClaims {
			break
		}
	}
	return claims
}
