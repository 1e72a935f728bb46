package plan

import (
	"encoding/json"
	"testing"
)

func decodeRaw(t *testing.T, s string) any {
	t.Helper()
	var raw any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return raw
}

// checkTotal verifies every list is non-nil and every record string is set.
func checkTotal(t *testing.T, p Plan) {
	t.Helper()
	if p.Summary == "" || p.RiskAnalysis == "" {
		t.Errorf("empty summary/risk analysis: %q / %q", p.Summary, p.RiskAnalysis)
	}
	lists := map[string]bool{
		"ActionableSteps":    p.ActionableSteps == nil,
		"SWOT.Strengths":     p.SWOT.Strengths == nil,
		"SWOT.Weaknesses":    p.SWOT.Weaknesses == nil,
		"SWOT.Opportunities": p.SWOT.Opportunities == nil,
		"SWOT.Threats":       p.SWOT.Threats == nil,
		"Allocations":        p.Allocations == nil,
		"Projections":        p.Projections == nil,
		"Sources":            p.Sources == nil,
		"SecEvents":          p.SecEvents == nil,
		"SectorTrends":       p.SectorTrends == nil,
	}
	for name, isNil := range lists {
		if isNil {
			t.Errorf("%s is nil", name)
		}
	}
	ma := p.MarketAnalysis
	if ma.Outlook == "" || ma.Risks == "" || ma.Opportunities == "" {
		t.Errorf("market analysis has empty field: %+v", ma)
	}
	for i, a := range p.Allocations {
		if a.Ticker == "" || a.Name == "" || a.Sector == "" || a.Rationale == "" {
			t.Errorf("allocation %d has empty string field: %+v", i, a)
		}
		if a.Type == "" || a.Account == "" {
			t.Errorf("allocation %d has empty enum: %+v", i, a)
		}
		if a.Percentage < 0 || a.Percentage > 100 {
			t.Errorf("allocation %d percentage %v out of range", i, a.Percentage)
		}
		if a.Technical.Summary == "" || a.Technical.Trend == "" {
			t.Errorf("allocation %d technical analysis incomplete: %+v", i, a.Technical)
		}
		if a.Sentiment.Summary == "" || a.Sentiment.Label == "" {
			t.Errorf("allocation %d sentiment incomplete: %+v", i, a.Sentiment)
		}
	}
	if pa := p.PortfolioAnalysis; pa != nil {
		if pa.Rebalancing == nil || pa.Summary == "" {
			t.Errorf("portfolio analysis incomplete: %+v", pa)
		}
	}
}

func TestSanitize_MalformedPayloads(t *testing.T) {
	payloads := []string{
		`{}`,
		`null`,
		`[]`,
		`"just a string"`,
		`{"allocations": null, "swot": null, "marketAnalysis": null}`,
		`{"allocations": [null, 3, "x", {}], "projections": [{}, []]}`,
		`{"swot": "strong", "actionableSteps": {"a": 1}, "secEvents": "none"}`,
		`{"allocations": [{"ticker": 7, "percentage": "abc", "type": {}, "technicalAnalysis": null, "sentiment": []}]}`,
		`{"marketAnalysis": {"outlook": 5, "risks": [], "opportunities": null}}`,
		`{"portfolioAnalysis": {"score": "high", "rebalancing": "sell everything"}}`,
		`{"sectorTrends": [{"sector": null}], "secEvents": [{"impact": false}]}`,
	}
	for _, s := range payloads {
		t.Run(s, func(t *testing.T) {
			checkTotal(t, Sanitize(decodeRaw(t, s), ""))
		})
	}
}

func TestSanitize_NonArrayAllocations(t *testing.T) {
	for _, s := range []string{
		`{"allocations": {"ticker": "VTI"}}`,
		`{"allocations": "VTI 60%"}`,
		`{"allocations": 60}`,
	} {
		p := Sanitize(decodeRaw(t, s), "narrative")
		if p.Allocations == nil || len(p.Allocations) != 0 {
			t.Errorf("%s: Allocations = %#v, want empty non-nil", s, p.Allocations)
		}
	}
}

func TestSanitize_MissingTechnicalAnalysis(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"allocations":[{"ticker":"BND","percentage":20}]}`), "x")
	if len(p.Allocations) != 1 {
		t.Fatalf("len(Allocations) = %d, want 1", len(p.Allocations))
	}
	if got := p.Allocations[0].Technical; got != PlaceholderTechnical() {
		t.Errorf("Technical = %+v, want placeholder %+v", got, PlaceholderTechnical())
	}
	if got := p.Allocations[0].Sentiment; got != PlaceholderSentiment() {
		t.Errorf("Sentiment = %+v, want placeholder %+v", got, PlaceholderSentiment())
	}
	if p.Allocations[0].Technical.Summary != "Technical analysis unavailable." {
		t.Errorf("Technical.Summary = %q", p.Allocations[0].Technical.Summary)
	}
}

func TestSanitize_FullAllocation(t *testing.T) {
	raw := decodeRaw(t, `{"allocations":[{
		"ticker": "schd",
		"name": "Schwab US Dividend Equity ETF",
		"sector": "Dividend Equity",
		"percentage": "25%",
		"type": "etf",
		"rationale": "Income",
		"account": "roth ira",
		"dividendYield": "3.5",
		"technicalAnalysis": {"trend": "Bullish", "support": 75.2, "resistance": "82", "summary": "Above 200DMA"},
		"sentiment": {"score": 140, "label": "Positive", "summary": "Analysts upbeat"}
	}]}`)

	p := Sanitize(raw, "summary")
	a := p.Allocations[0]
	if a.Ticker != "SCHD" {
		t.Errorf("Ticker = %q, want SCHD", a.Ticker)
	}
	if a.Percentage != 25 {
		t.Errorf("Percentage = %v, want 25", a.Percentage)
	}
	if a.Type != TypeETF || a.Account != AccountRothIRA {
		t.Errorf("Type/Account = %q/%q", a.Type, a.Account)
	}
	if a.DividendYield == nil || *a.DividendYield != 3.5 {
		t.Errorf("DividendYield = %v, want 3.5", a.DividendYield)
	}
	if a.Technical.Support != 75.2 || a.Technical.Resistance != 82 || a.Technical.Trend != "Bullish" {
		t.Errorf("Technical = %+v", a.Technical)
	}
	if a.Sentiment.Score != 100 {
		t.Errorf("Sentiment.Score = %d, want clamped 100", a.Sentiment.Score)
	}
}

func TestSanitize_PercentagesClampedNotNormalized(t *testing.T) {
	raw := decodeRaw(t, `{"allocations":[
		{"ticker":"A","percentage":70},
		{"ticker":"B","percentage":50},
		{"ticker":"C","percentage":-10},
		{"ticker":"D","percentage":150}
	]}`)
	p := Sanitize(raw, "x")

	want := []float64{70, 50, 0, 100}
	for i, w := range want {
		if p.Allocations[i].Percentage != w {
			t.Errorf("allocation %d percentage = %v, want %v", i, p.Allocations[i].Percentage, w)
		}
	}
	if got := p.AllocationTotal(); got != 220 {
		t.Errorf("AllocationTotal = %v, want 220 (not normalized)", got)
	}
}

func TestSanitize_ProjectionYearClamped(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"projections":[{"year":1e300},{"year":-5},{"year":2035.4}]}`), "x")
	want := []int{9999, 0, 2035}
	if len(p.Projections) != len(want) {
		t.Fatalf("len(Projections) = %d, want %d", len(p.Projections), len(want))
	}
	for i, w := range want {
		if p.Projections[i].Year != w {
			t.Errorf("Projections[%d].Year = %d, want %d", i, p.Projections[i].Year, w)
		}
	}
}

func TestSanitize_EnumDefaults(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"allocations":[{"ticker":"X","type":"Option","account":"401k"}]}`), "x")
	a := p.Allocations[0]
	if a.Type != TypeETF {
		t.Errorf("Type = %q, want ETF default", a.Type)
	}
	if a.Account != AccountBrokerage {
		t.Errorf("Account = %q, want Brokerage default", a.Account)
	}
}

func TestSanitize_PortfolioAnalysisNeverSynthesized(t *testing.T) {
	for _, s := range []string{
		`{}`,
		`{"portfolioAnalysis": null}`,
		`{"portfolioAnalysis": "n/a"}`,
		`{"portfolioAnalysis": []}`,
	} {
		if p := Sanitize(decodeRaw(t, s), "x"); p.PortfolioAnalysis != nil {
			t.Errorf("%s: PortfolioAnalysis = %+v, want nil", s, p.PortfolioAnalysis)
		}
	}

	p := Sanitize(decodeRaw(t, `{"portfolioAnalysis":{"score":72.4,"summary":"Concentrated","rebalancing":[{"action":"Sell","ticker":"tsla","amount":5000}]}}`), "x")
	pa := p.PortfolioAnalysis
	if pa == nil {
		t.Fatal("PortfolioAnalysis = nil, want populated")
	}
	if pa.Score != 72 || pa.Summary != "Concentrated" {
		t.Errorf("PortfolioAnalysis = %+v", pa)
	}
	if len(pa.Rebalancing) != 1 || pa.Rebalancing[0].Ticker != "TSLA" || pa.Rebalancing[0].Amount != "5000" {
		t.Errorf("Rebalancing = %+v", pa.Rebalancing)
	}
}

func TestSanitize_SourcesIgnoredFromPayload(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"sources":[{"title":"Fake","url":"https://example.com"}]}`), "x")
	if len(p.Sources) != 0 {
		t.Errorf("Sources = %+v, want empty", p.Sources)
	}
}

func TestSanitize_SummaryFallback(t *testing.T) {
	if p := Sanitize(decodeRaw(t, `{"summary":"From payload"}`), "  "); p.Summary != "From payload" {
		t.Errorf("Summary = %q, want payload fallback", p.Summary)
	}
	if p := Sanitize(decodeRaw(t, `{"summary":"From payload"}`), "Narrative"); p.Summary != "Narrative" {
		t.Errorf("Summary = %q, want narrative", p.Summary)
	}
	if p := Sanitize(decodeRaw(t, `{}`), ""); p.Summary != NoSummary {
		t.Errorf("Summary = %q, want placeholder", p.Summary)
	}
}

func TestSanitize_StringListsKeepScalars(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"actionableSteps":["Open a Roth IRA", 401, null, {"x":1}, "  ", true]}`), "x")
	want := []string{"Open a Roth IRA", "401", "true"}
	if len(p.ActionableSteps) != len(want) {
		t.Fatalf("ActionableSteps = %v, want %v", p.ActionableSteps, want)
	}
	for i := range want {
		if p.ActionableSteps[i] != want[i] {
			t.Errorf("ActionableSteps[%d] = %q, want %q", i, p.ActionableSteps[i], want[i])
		}
	}
}

func TestFindAllocation(t *testing.T) {
	p := Sanitize(decodeRaw(t, `{"allocations":[{"ticker":"VTI"},{"ticker":"BND"}]}`), "x")
	if a, ok := p.FindAllocation("bnd"); !ok || a.Ticker != "BND" {
		t.Errorf("FindAllocation(bnd) = %+v, %v", a, ok)
	}
	if _, ok := p.FindAllocation("QQQ"); ok {
		t.Error("FindAllocation(QQQ) found a match")
	}
}
