package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/finplan/internal/plan"
)

func samplePlan() plan.Plan {
	yield := 1.35
	return plan.Plan{
		ID:              "p1",
		GeneratedAt:     time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Summary:         "A diversified, index-first plan.",
		RiskAnalysis:    "Equity heavy; expect drawdowns.",
		ActionableSteps: []string{"Open a Roth IRA", "Automate contributions"},
		SWOT: plan.SWOT{
			Strengths: []string{"Long horizon"},
		},
		Allocations: []plan.Allocation{
			{
				Ticker: "VTI", Name: "Vanguard Total Stock Market ETF", Sector: "Broad Market",
				Percentage: 60, Type: plan.TypeETF, Account: plan.AccountBoth, DividendYield: &yield,
				Rationale: "Core | holding",
				Technical: plan.TechnicalAnalysis{Trend: "Uptrend", Support: 250, Resistance: 300, Summary: "Above the 200-day."},
				Sentiment: plan.MarketSentiment{Score: 70, Label: "Bullish", Summary: "Analysts positive."},
			},
			{
				Ticker: "BND", Name: "Vanguard Total Bond Market ETF", Sector: "Fixed Income",
				Percentage: 30, Type: plan.TypeBond, Account: plan.AccountRothIRA,
				Technical: plan.PlaceholderTechnical(),
				Sentiment: plan.PlaceholderSentiment(),
			},
		},
		Projections: []plan.Projection{
			{Year: 2030, Value: 125000.5, Contributions: 30000},
		},
		Sources:        []plan.Source{{Title: "SEC EDGAR", URL: "https://www.sec.gov/edgar"}},
		MarketAnalysis: plan.MarketAnalysis{Outlook: "Cautiously optimistic", Risks: "Rates", Opportunities: "Small caps"},
		SecEvents:      []plan.SecEvent{{Date: "2026-09-30", Ticker: "VTI", Type: "N-CSR", Description: "Annual report", Impact: "Neutral"}},
		SectorTrends:   []plan.SectorTrend{{Sector: "Tech", Trend: "Up", Rationale: "AI capex"}},
	}
}

func TestMarkdown_Sections(t *testing.T) {
	out := Markdown(samplePlan())

	for _, want := range []string{
		"# Your Investment Plan",
		"A diversified, index-first plan.",
		"## Risk Analysis",
		"## Action Steps",
		"Automate contributions",
		"## Recommended Allocation",
		"VTI",
		"60.0%",
		"1.35%",
		"Core | holding",
		"### Allocation Details",
		"Technical analysis unavailable.",
		"Sentiment data unavailable.",
		"## Projected Growth",
		"$125,000.50",
		"$30,000.00",
		"## SWOT",
		"Long horizon",
		"None noted.",
		"Cautiously optimistic",
		"## SEC Filings & Events",
		"N-CSR",
		"## Sector Trends",
		"AI capex",
		"[SEC EDGAR](https://www.sec.gov/edgar)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestMarkdown_NumericColumnsRightAligned(t *testing.T) {
	out := Markdown(samplePlan())

	// Ticker, Name, Type, Weight, Account, Yield
	want := "|:--------|:--------|:--------|--------:|:--------|--------:|"
	if !strings.Contains(out, want) {
		t.Errorf("allocation table separator missing %q:\n%s", want, out)
	}
}

func TestMarkdown_TotalNotCorrected(t *testing.T) {
	out := Markdown(samplePlan())
	if !strings.Contains(out, "Allocations total 90.0% as returned by the model.") {
		t.Errorf("expected advisory total note, got:\n%s", out)
	}

	p := samplePlan()
	p.Allocations[1].Percentage = 40
	if strings.Contains(Markdown(p), "Allocations total") {
		t.Error("note shown for a 100% total")
	}
}

func TestMarkdown_PortfolioReviewOnlyWhenPresent(t *testing.T) {
	p := samplePlan()
	if strings.Contains(Markdown(p), "Current Portfolio Review") {
		t.Error("review rendered without portfolio analysis")
	}

	p.PortfolioAnalysis = &plan.PortfolioAnalysis{
		Score:   62,
		Summary: "Concentrated in tech.",
		Rebalancing: []plan.RebalancingOrder{
			{Action: "Sell", Ticker: "NVDA", Amount: "$5,000", Rationale: "Trim concentration"},
		},
	}
	out := Markdown(p)
	for _, want := range []string{"## Current Portfolio Review", "62/100", "Concentrated in tech.", "Trim concentration"} {
		if !strings.Contains(out, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestMarkdown_EmptyPlan(t *testing.T) {
	out := Markdown(plan.Sanitize(nil, ""))
	if !strings.Contains(out, "No allocations were returned.") {
		t.Errorf("empty plan output:\n%s", out)
	}
	if strings.Contains(out, "## Sources") || strings.Contains(out, "## Projected Growth") {
		t.Error("empty sections rendered")
	}
}
