package prompt

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/finplan/internal/profile"
)

// maxPortfolioChars caps the pasted holdings blob (~8k tokens at 4
// chars/token) so a large statement import cannot crowd out the schema.
const maxPortfolioChars = 32000

// planSchema describes the JSON block the model must end its reply with.
const planSchema = `{
  "riskAnalysis": string,
  "actionableSteps": [string],
  "swot": {"strengths": [string], "weaknesses": [string], "opportunities": [string], "threats": [string]},
  "allocations": [{
    "ticker": string,
    "name": string,
    "sector": string,
    "percentage": number (0-100, all allocations should sum to 100),
    "type": "Stock" | "ETF" | "Bond" | "REIT" | "Crypto",
    "rationale": string,
    "account": "Roth IRA" | "Brokerage" | "Both",
    "dividendYield": number (percent, omit if none),
    "technicalAnalysis": {"trend": "Bullish" | "Bearish" | "Neutral", "support": number, "resistance": number, "summary": string},
    "sentiment": {"score": number (0-100), "label": string, "summary": string}
  }],
  "projections": [{"year": number, "value": number, "contributions": number}],
  "marketAnalysis": {"outlook": string, "risks": string, "opportunities": string},
  "secEvents": [{"date": string, "ticker": string, "type": string, "description": string, "impact": string}],
  "sectorTrends": [{"sector": string, "trend": string, "rationale": string}]%s
}`

const portfolioAnalysisSchema = `,
  "portfolioAnalysis": {
    "score": number (0-100, health of the current portfolio),
    "summary": string,
    "rebalancing": [{"action": "Buy" | "Sell" | "Hold", "ticker": string, "amount": string, "rationale": string}]
  }`

// BuildPlanPrompt renders the single instruction sent for plan generation.
// Every profile field is embedded. portfolioAnalysis is requested only when
// the profile carries current holdings; otherwise the model is told to omit
// it.
func BuildPlanPrompt(p profile.Profile, asOf time.Time) string {
	var sb strings.Builder

	sb.WriteString("You are a fiduciary financial planner. Use Google Search to ground every ")
	sb.WriteString("market claim in current information and cite what you find.\n")
	fmt.Fprintf(&sb, "Today's date is %s.\n\n", asOf.Format("January 2, 2006"))

	sb.WriteString("[Client Profile]\n")
	fmt.Fprintf(&sb, "- Age: %d\n", p.Age)
	fmt.Fprintf(&sb, "- Target retirement age: %d (%d years away)\n", p.RetirementAge, yearsToRetirement(p))
	fmt.Fprintf(&sb, "- Annual income: %s\n", profile.FormatUSD(p.AnnualIncome))
	fmt.Fprintf(&sb, "- Cash savings: %s\n", profile.FormatBalance(p.CashBalance))
	fmt.Fprintf(&sb, "- Brokerage balance: %s\n", profile.FormatBalance(p.BrokerageBalance))
	fmt.Fprintf(&sb, "- Retirement account balance: %s\n", profile.FormatBalance(p.RetirementBalance))
	fmt.Fprintf(&sb, "- Monthly contribution: %s\n", profile.FormatUSD(p.MonthlyContribution))
	fmt.Fprintf(&sb, "- Risk tolerance: %s\n", p.RiskTolerance)
	fmt.Fprintf(&sb, "- Tax filing status: %s\n", p.FilingStatus)
	fmt.Fprintf(&sb, "- Goals: %s\n", listOrNone(p.Goals))
	fmt.Fprintf(&sb, "- Geographic focus: %s\n", listOrNone(p.GeoFocus))

	holdings := strings.TrimSpace(p.CurrentPortfolio)
	if holdings != "" {
		sb.WriteString("\n[Current Holdings]\n")
		sb.WriteString(truncate(holdings, maxPortfolioChars))
		sb.WriteString("\n")
	}

	sb.WriteString("\n[Instructions]\n")
	sb.WriteString("1. Write a concise narrative summary of the plan in plain prose first.\n")
	sb.WriteString("2. Recommend specific tickers with percentage allocations suited to the risk tolerance, ")
	sb.WriteString("and place each in a Roth IRA, brokerage account, or both with tax efficiency in mind.\n")
	sb.WriteString("3. Project portfolio value yearly until retirement using the monthly contribution.\n")
	sb.WriteString("4. Report recent SEC filings or corporate events for the recommended tickers and current sector trends.\n")
	if holdings != "" {
		sb.WriteString("5. Score the current holdings and give concrete rebalancing orders.\n")
	} else {
		sb.WriteString("5. The client has no current holdings on file: do not include a portfolioAnalysis field.\n")
	}
	sb.WriteString("\nEnd your reply with exactly one fenced ```json code block that matches this schema. ")
	sb.WriteString("Do not write anything after the block.\n\n")

	extra := ""
	if holdings != "" {
		extra = portfolioAnalysisSchema
	}
	fmt.Fprintf(&sb, planSchema, extra)
	sb.WriteString("\n")

	return sb.String()
}

func yearsToRetirement(p profile.Profile) int {
	if p.RetirementAge <= p.Age {
		return 0
	}
	return p.RetirementAge - p.Age
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none specified"
	}
	return strings.Join(items, ", ")
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "\n[truncated]"
}
