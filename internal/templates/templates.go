// Package templates renders evaluation results as markdown.
//
// Templates are embedded at build time and parsed once by NewRenderer.
// Callers pick a template by name and pass the matching data struct.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/HendryAvila/steward/internal/proposal"
)

//go:embed files/*.md.tmpl
var files embed.FS

// Template names.
const (
	Report    = "report.md.tmpl"
	Proposals = "proposals.md.tmpl"
)

// Renderer renders a named template with data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// EmbedRenderer renders the templates embedded in the binary.
type EmbedRenderer struct {
	tmpl *template.Template
}

var _ Renderer = (*EmbedRenderer)(nil)

// NewRenderer parses all embedded templates.
func NewRenderer() (*EmbedRenderer, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(files, "files/*.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &EmbedRenderer{tmpl: tmpl}, nil
}

// Render executes the named template.
func (r *EmbedRenderer) Render(name string, data any) (string, error) {
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"score": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"mark": func(ok bool) string {
		if ok {
			return "pass"
		}
		return "FAIL"
	},
	"cell": func(s string) string { return strings.ReplaceAll(s, "|", `\|`) },
}

// ─── Report ─────────────────────────────────────────────────────────────────

// GoalRow is one line of the goal score table.
type GoalRow struct {
	Key   string
	Score float64
}

// ReportData feeds the Report template.
type ReportData struct {
	Output   *proposal.Output
	Goals    []GoalRow
	Budget   string
	Split    string
	Blocking []proposal.MissingDataItem
	Advisory []proposal.MissingDataItem
}

// NewReportData flattens an evaluation result for rendering.
func NewReportData(out *proposal.Output) ReportData {
	d := ReportData{
		Output: out,
		Budget: "not stated",
		Split:  "not stated",
	}
	for _, k := range out.GoalScores.Keys() {
		d.Goals = append(d.Goals, GoalRow{Key: k, Score: out.GoalScores.Goals[k]})
	}
	if a := out.Budget.AmountRequested; a != nil {
		d.Budget = strings.TrimSpace(fmt.Sprintf("%.2f %s", *a, out.Budget.Currency))
	}
	tp := out.TreasuryPlan
	if tp.LocalPercent != nil && tp.NationalPercent != nil {
		d.Split = fmt.Sprintf("%.0f%% local / %.0f%% national", *tp.LocalPercent, *tp.NationalPercent)
	}
	for _, m := range out.MissingData {
		if m.Blocking {
			d.Blocking = append(d.Blocking, m)
		} else {
			d.Advisory = append(d.Advisory, m)
		}
	}
	return d
}

// ─── Proposal list ──────────────────────────────────────────────────────────

// ListRow is one stored proposal in a listing.
type ListRow struct {
	ID        string
	CoopID    string
	Title     string
	Decision  proposal.Decision
	Status    proposal.Status
	Composite float64
	CreatedAt string
}

// ProposalsData feeds the Proposals template.
type ProposalsData struct {
	Heading string
	Rows    []ListRow
	Totals  map[proposal.Decision]int
}

// TotalKeys returns the decisions present in Totals in a stable order.
func (p ProposalsData) TotalKeys() []proposal.Decision {
	keys := make([]proposal.Decision, 0, len(p.Totals))
	for k := range p.Totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
