package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/profile"
)

var testDate = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

func TestBuildPlanPrompt_EmbedsAllFields(t *testing.T) {
	p := profile.Default()
	p.Age = 41
	p.RetirementAge = 60
	p.AnnualIncome = decimal.NewFromInt(142000)
	brokerage := decimal.NewFromInt(25000)
	p.BrokerageBalance = &brokerage
	p.RiskTolerance = profile.RiskAggressive
	p.FilingStatus = profile.FilingHeadOfHousehold
	p.Goals = []string{"Early Retirement", "College"}
	p.GeoFocus = []string{"US", "Emerging Markets"}

	got := BuildPlanPrompt(p, testDate)

	for _, want := range []string{
		"October 18, 2026",
		"Age: 41",
		"retirement age: 60 (19 years away)",
		"$142,000.00",
		"Cash savings: not provided",
		"Brokerage balance: $25,000.00",
		"Retirement account balance: not provided",
		"$500.00",
		"Risk tolerance: Aggressive",
		"Head of Household",
		"Early Retirement, College",
		"US, Emerging Markets",
		"```json",
		`"allocations"`,
		`"technicalAnalysis"`,
		`"sectorTrends"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPlanPrompt_PortfolioAnalysisOnlyWithHoldings(t *testing.T) {
	p := profile.Default()

	without := BuildPlanPrompt(p, testDate)
	if strings.Contains(without, `"portfolioAnalysis": {`) {
		t.Error("schema requests portfolioAnalysis without holdings")
	}
	if !strings.Contains(without, "do not include a portfolioAnalysis field") {
		t.Error("prompt does not tell the model to omit portfolioAnalysis")
	}
	if strings.Contains(without, "[Current Holdings]") {
		t.Error("holdings section present for empty portfolio")
	}

	p.CurrentPortfolio = "AAPL 50 shares\nVTI 200 shares"
	with := BuildPlanPrompt(p, testDate)
	if !strings.Contains(with, `"portfolioAnalysis": {`) {
		t.Error("schema missing portfolioAnalysis with holdings")
	}
	if !strings.Contains(with, "VTI 200 shares") {
		t.Error("holdings not embedded")
	}
}

func TestBuildPlanPrompt_TruncatesHugeHoldings(t *testing.T) {
	p := profile.Default()
	p.CurrentPortfolio = strings.Repeat("é", maxPortfolioChars)

	got := BuildPlanPrompt(p, testDate)
	if !strings.Contains(got, "[truncated]") {
		t.Error("expected truncation marker")
	}
	if !strings.HasSuffix(strings.TrimSpace(got), "}") {
		t.Error("schema should still close the prompt")
	}
}

func TestTruncate_UTF8Safe(t *testing.T) {
	s := "aé" // 'é' is two bytes
	got := truncate(s, 2)
	if got != "a\n[truncated]" {
		t.Errorf("truncate = %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Error("short string should be unchanged")
	}
}

func TestChatSystemInstruction(t *testing.T) {
	p := plan.Plan{
		Summary:      "Grow steadily.",
		RiskAnalysis: "Moderate volatility.",
		Allocations: []plan.Allocation{
			{Ticker: "VTI", Name: "Vanguard Total Stock Market", Type: plan.TypeETF, Percentage: 60, Account: plan.AccountBoth, Rationale: "Core"},
		},
		ActionableSteps: []string{"Open a Roth IRA"},
		MarketAnalysis:  plan.MarketAnalysis{Outlook: "Positive", Risks: "Rates", Opportunities: "AI"},
		PortfolioAnalysis: &plan.PortfolioAnalysis{
			Score:       64,
			Summary:     "Tech heavy",
			Rebalancing: []plan.RebalancingOrder{{Action: "Sell", Ticker: "NVDA", Amount: "$2,000", Rationale: "Trim"}},
		},
	}

	got := ChatSystemInstruction(p)
	for _, want := range []string{
		"Grow steadily.",
		"Moderate volatility.",
		"VTI (Vanguard Total Stock Market, ETF): 60.0% in Both",
		"1. Open a Roth IRA",
		"Outlook: Positive",
		"Score 64/100",
		"Sell NVDA $2,000",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("system instruction missing %q\n%s", want, got)
		}
	}
}

func TestAllocationQuestion(t *testing.T) {
	q := AllocationQuestion(plan.Allocation{Ticker: "BND", Name: "Vanguard Total Bond", Percentage: 25})
	if !strings.Contains(q, "BND") || !strings.Contains(q, "25.0%") {
		t.Errorf("AllocationQuestion = %q", q)
	}
}
