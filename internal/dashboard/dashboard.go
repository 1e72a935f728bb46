// Package dashboard renders a Plan as a markdown document.
package dashboard

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"

	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/profile"
)

// Markdown renders every section of p. Percentages are shown as returned by
// the model; a total other than 100% is noted, never corrected.
func Markdown(p plan.Plan) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1("Your Investment Plan")
	if !p.GeneratedAt.IsZero() {
		doc.PlainText(md.Italic(fmt.Sprintf("Generated %s", p.GeneratedAt.Format("January 2, 2006 15:04 MST"))))
	}
	doc.PlainText(p.Summary)

	doc.H2("Risk Analysis")
	doc.PlainText(p.RiskAnalysis)

	if len(p.ActionableSteps) > 0 {
		doc.H2("Action Steps")
		doc.OrderedList(p.ActionableSteps...)
	}

	renderAllocations(doc, p)
	renderProjections(doc, p.Projections)

	doc.H2("SWOT")
	swot := []struct {
		title string
		items []string
	}{
		{"Strengths", p.SWOT.Strengths},
		{"Weaknesses", p.SWOT.Weaknesses},
		{"Opportunities", p.SWOT.Opportunities},
		{"Threats", p.SWOT.Threats},
	}
	for _, s := range swot {
		doc.H3(s.title)
		if len(s.items) == 0 {
			doc.PlainText(md.Italic("None noted."))
			continue
		}
		doc.BulletList(s.items...)
	}

	doc.H2("Market View")
	doc.BulletList(
		md.Bold("Outlook:")+" "+p.MarketAnalysis.Outlook,
		md.Bold("Risks:")+" "+p.MarketAnalysis.Risks,
		md.Bold("Opportunities:")+" "+p.MarketAnalysis.Opportunities,
	)

	if len(p.SecEvents) > 0 {
		doc.H2("SEC Filings & Events")
		table := md.TableSet{
			Header: []string{"Date", "Ticker", "Type", "Description", "Impact"},
			Rows:   [][]string{},
		}
		for _, e := range p.SecEvents {
			table.Rows = append(table.Rows, cells(e.Date, e.Ticker, e.Type, e.Description, e.Impact))
		}
		doc.Table(table)
	}

	if len(p.SectorTrends) > 0 {
		doc.H2("Sector Trends")
		table := md.TableSet{
			Header: []string{"Sector", "Trend", "Rationale"},
			Rows:   [][]string{},
		}
		for _, s := range p.SectorTrends {
			table.Rows = append(table.Rows, cells(s.Sector, s.Trend, s.Rationale))
		}
		doc.Table(table)
	}

	if pa := p.PortfolioAnalysis; pa != nil {
		doc.H2("Current Portfolio Review")
		doc.PlainText(fmt.Sprintf("%s %d/100", md.Bold("Score:"), pa.Score))
		doc.PlainText(pa.Summary)
		if len(pa.Rebalancing) > 0 {
			table := md.TableSet{
				Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignLeft},
				Header:    []string{"Action", "Ticker", "Amount", "Rationale"},
				Rows:      [][]string{},
			}
			for _, o := range pa.Rebalancing {
				table.Rows = append(table.Rows, cells(o.Action, o.Ticker, o.Amount, o.Rationale))
			}
			doc.Table(table)
		}
	}

	if len(p.Sources) > 0 {
		doc.H2("Sources")
		links := make([]string, 0, len(p.Sources))
		for _, s := range p.Sources {
			links = append(links, md.Link(s.Title, s.URL))
		}
		doc.BulletList(links...)
	}

	return doc.String()
}

func renderAllocations(doc *md.Markdown, p plan.Plan) {
	doc.H2("Recommended Allocation")
	if len(p.Allocations) == 0 {
		doc.PlainText(md.Italic("No allocations were returned."))
		return
	}

	table := md.TableSet{
		Alignment: []md.TableAlignment{
			md.AlignLeft,
			md.AlignLeft,
			md.AlignLeft,
			md.AlignRight,
			md.AlignLeft,
			md.AlignRight,
		},
		Header: []string{"Ticker", "Name", "Type", "Weight", "Account", "Yield"},
		Rows:   [][]string{},
	}
	for _, a := range p.Allocations {
		table.Rows = append(table.Rows, cells(
			a.Ticker,
			a.Name,
			string(a.Type),
			FormatPercent(a.Percentage),
			string(a.Account),
			formatYield(a.DividendYield),
		))
	}
	doc.Table(table)

	total := p.AllocationTotal()
	if math.Abs(total-100) > 0.05 {
		doc.PlainText(md.Italic(fmt.Sprintf("Allocations total %s as returned by the model.", FormatPercent(total))))
	}

	doc.H3("Allocation Details")
	for _, a := range p.Allocations {
		doc.PlainText(md.Bold(fmt.Sprintf("%s · %s", a.Ticker, a.Name)) + " (" + a.Sector + ")")
		doc.BulletList(
			md.Bold("Why:")+" "+a.Rationale,
			fmt.Sprintf("%s %s, support %s, resistance %s. %s",
				md.Bold("Technical:"), a.Technical.Trend,
				formatPrice(a.Technical.Support), formatPrice(a.Technical.Resistance), a.Technical.Summary),
			fmt.Sprintf("%s %s (%d/100). %s", md.Bold("Sentiment:"), a.Sentiment.Label, a.Sentiment.Score, a.Sentiment.Summary),
		)
	}
}

func renderProjections(doc *md.Markdown, projections []plan.Projection) {
	if len(projections) == 0 {
		return
	}
	doc.H2("Projected Growth")
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight},
		Header:    []string{"Year", "Projected Value", "Contributions"},
		Rows:      [][]string{},
	}
	for _, pr := range projections {
		table.Rows = append(table.Rows, []string{
			fmt.Sprintf("%d", pr.Year),
			formatUSD(pr.Value),
			formatUSD(pr.Contributions),
		})
	}
	doc.Table(table)
}

// FormatPercent renders a weight with one decimal place.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

func formatYield(y *float64) string {
	if y == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *y)
}

func formatPrice(v float64) string {
	if v == 0 {
		return "n/a"
	}
	return formatUSD(v)
}

func formatUSD(v float64) string {
	return profile.FormatUSD(decimal.NewFromFloat(v))
}

// cells escapes pipes so free text cannot break the table.
func cells(values ...string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, "\n", " ")
		out[i] = strings.ReplaceAll(v, "|", `\|`)
	}
	return out
}
