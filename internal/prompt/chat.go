package prompt

import (
	"fmt"
	"strings"

	"github.com/kalambet/finplan/internal/plan"
)

// ChatSystemInstruction seeds the advisory chat with the current plan.
func ChatSystemInstruction(p plan.Plan) string {
	var sb strings.Builder

	sb.WriteString("You are the client's financial advisor. Answer follow-up questions about the plan below. ")
	sb.WriteString("Be concise, use Google Search for anything time-sensitive, and never invent prices.\n\n")

	sb.WriteString("[Plan Summary]\n")
	sb.WriteString(p.Summary)
	sb.WriteString("\n\n[Risk Analysis]\n")
	sb.WriteString(p.RiskAnalysis)
	sb.WriteString("\n")

	if len(p.Allocations) > 0 {
		sb.WriteString("\n[Allocations]\n")
		for _, a := range p.Allocations {
			fmt.Fprintf(&sb, "- %s (%s, %s): %.1f%% in %s. %s\n", a.Ticker, a.Name, a.Type, a.Percentage, a.Account, a.Rationale)
		}
	}

	if len(p.ActionableSteps) > 0 {
		sb.WriteString("\n[Action Steps]\n")
		for i, s := range p.ActionableSteps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
		}
	}

	sb.WriteString("\n[Market View]\n")
	fmt.Fprintf(&sb, "Outlook: %s\nRisks: %s\nOpportunities: %s\n",
		p.MarketAnalysis.Outlook, p.MarketAnalysis.Risks, p.MarketAnalysis.Opportunities)

	if pa := p.PortfolioAnalysis; pa != nil {
		fmt.Fprintf(&sb, "\n[Current Portfolio]\nScore %d/100. %s\n", pa.Score, pa.Summary)
		for _, o := range pa.Rebalancing {
			fmt.Fprintf(&sb, "- %s %s %s: %s\n", o.Action, o.Ticker, o.Amount, o.Rationale)
		}
	}

	return sb.String()
}

// AllocationQuestion is the follow-up asked when the user picks an
// allocation on the dashboard.
func AllocationQuestion(a plan.Allocation) string {
	return fmt.Sprintf("Tell me more about %s (%s). Why is it %.1f%% of my plan, what are the main risks, "+
		"and what recent news should I know about?", a.Ticker, a.Name, a.Percentage)
}
