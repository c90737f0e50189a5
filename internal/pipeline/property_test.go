package pipeline

import (
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/HendryAvila/steward/internal/charter"
	"github.com/HendryAvila/steward/internal/proposal"
)

func newProperties() *gopter.Properties {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	return gopter.NewProperties(parameters)
}

// goalDefs builds one goal definition per weight.
func goalDefs(weights []float64) []charter.GoalDefinition {
	defs := make([]charter.GoalDefinition, len(weights))
	for i, w := range weights {
		defs[i] = charter.GoalDefinition{Key: fmt.Sprintf("g%d", i), Weight: w}
	}
	return defs
}

func TestProperty_CompositeInUnitInterval(t *testing.T) {
	properties := newProperties()

	properties.Property("composite stays in [0,1] for any scores and weights", prop.ForAll(
		func(weights, raw []float64) bool {
			defs := goalDefs(weights)
			goals := make(map[string]float64, len(defs))
			for i, d := range defs {
				if i < len(raw) {
					goals[d.Key] = raw[i]
				}
			}
			c := Composite(goals, defs)
			return c >= 0 && c <= 1
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.Float64Range(-2, 3)),
	))

	properties.Property("composite lies between the lowest and highest goal score", prop.ForAll(
		func(weights, raw []float64) bool {
			n := min(len(weights), len(raw))
			if n == 0 {
				return true
			}
			defs := goalDefs(weights[:n])
			goals := make(map[string]float64, n)
			lo, hi := 1.0, 0.0
			total := 0.0
			for i, d := range defs {
				goals[d.Key] = raw[i]
				if d.Weight > 0 {
					total += d.Weight
					lo, hi = min(lo, raw[i]), max(hi, raw[i])
				}
			}
			c := Composite(goals, defs)
			if total == 0 {
				return c == 0
			}
			return c >= lo-1e-9 && c <= hi+1e-9
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.Float64Range(0, 1)),
	))

	properties.TestingRun(t)
}

func TestProperty_AlternativeSelection(t *testing.T) {
	properties := newProperties()

	properties.Property("selected alternatives beat the original, are sorted and capped", prop.ForAll(
		func(composites []float64, original float64, limit int) bool {
			cands := make([]candidate, len(composites))
			for i, c := range composites {
				cands[i] = cand(fmt.Sprintf("alt%d", i), c, nil)
			}
			kept := selectAlternatives(cands, original, limit)
			if len(kept) > limit {
				return false
			}
			for _, a := range kept {
				if a.Scores.Composite <= original {
					return false
				}
			}
			return sort.SliceIsSorted(kept, func(i, j int) bool {
				return kept[i].Scores.Composite > kept[j].Scores.Composite
			})
		},
		gen.SliceOfN(4, gen.Float64Range(0, 1)),
		gen.Float64Range(0, 1),
		gen.IntRange(0, charter.MaxAlternatives),
	))

	properties.TestingRun(t)
}

var (
	titleChoices   = []string{"", "TBD", "Community solar"}
	summaryChoices = []string{"", "n/a", "Panels on the hall."}
	claimChoices   = []string{"", "???", "Serves 300 members."}
)

// genDraft generates drafts with a random subset of fields present.
func genDraft() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
		gen.Bool(),
		gen.Float64Range(-1, 1e6),
		gen.Float64Range(-1, 100),
	).Map(func(v []any) proposal.StructuredDraft {
		d := proposal.StructuredDraft{
			Title:        titleChoices[v[0].(int)],
			Summary:      summaryChoices[v[1].(int)],
			ImpactClaims: []string{claimChoices[v[2].(int)]},
		}
		if v[3].(bool) {
			d.Category = proposal.CategoryEnergy
			d.Currency = proposal.CurrencyUSD
		}
		// Negative samples stand for an absent field.
		if amount := v[4].(float64); amount >= 0 {
			d.AmountRequested = proposal.Float(amount)
		}
		if local := v[5].(float64); local >= 0 {
			d.LocalPercent = proposal.Float(local)
			d.NationalPercent = proposal.Float(100 - local)
		}
		return d
	})
}

func TestProperty_MissingData(t *testing.T) {
	properties := newProperties()

	properties.Property("detection is idempotent", prop.ForAll(
		func(d proposal.StructuredDraft, requireRegion bool) bool {
			dc := DetectionContext{RequireRegion: requireRegion}
			return reflect.DeepEqual(DetectMissing(d, dc), DetectMissing(d, dc))
		},
		genDraft(),
		gen.Bool(),
	))

	properties.Property("an absent budget or split is always blocking", prop.ForAll(
		func(d proposal.StructuredDraft) bool {
			items := DetectMissing(d, DetectionContext{Region: &proposal.Region{Code: "x"}})
			if d.AmountRequested == nil && !hasMissing(items, "budget.amountRequested", true) {
				return false
			}
			if d.LocalPercent == nil && !hasMissing(items, "treasuryPlan.localPercent", true) {
				return false
			}
			return true
		},
		genDraft(),
	))

	properties.TestingRun(t)
}

func TestProperty_Decision(t *testing.T) {
	properties := newProperties()

	properties.Property("reasons are never empty and status follows the decision", prop.ForAll(
		func(original float64, altScores []float64, blocking, compliance bool) bool {
			var alts []proposal.Alternative
			for i, s := range altScores {
				alts = append(alts, alt(fmt.Sprintf("alt%d", i), s))
			}
			sort.SliceStable(alts, func(i, j int) bool { return alts[i].Scores.Composite > alts[j].Scores.Composite })
			var missing []proposal.MissingDataItem
			if blocking {
				missing = append(missing, proposal.MissingDataItem{Field: "f", Blocking: true, Compliance: compliance})
			}
			res := Decide(DecisionInput{
				Original:     scores(original),
				Alternatives: alts,
				Missing:      missing,
				Goals:        twoGoals,
				Policy:       testPolicy(),
			})
			if len(res.Reasons) == 0 {
				return false
			}
			if blocking && res.Decision == proposal.DecisionAdvance {
				return false
			}
			return res.Status == StatusFor(res.Decision, blocking && compliance, proposal.StatusFailed)
		},
		gen.Float64Range(0, 1),
		gen.SliceOfN(3, gen.Float64Range(0, 1)),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_DeclaredSplit(t *testing.T) {
	properties := newProperties()

	properties.Property("a declared split is accepted exactly when it sums to 100", prop.ForAll(
		func(local, national float64, complement bool) bool {
			if complement {
				national = 100 - local
			}
			err := ValidateInput(proposal.Input{
				Text:     groceryText,
				Declared: &proposal.Declared{LocalPercent: proposal.Float(local), NationalPercent: proposal.Float(national)},
			})
			return (err == nil) == (local+national == 100)
		},
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
