package plan

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/PaesslerAG/jsonpath"
)

// Placeholders substituted for missing or malformed fields.
const (
	NoSummary             = "No summary provided."
	NoRiskAnalysis        = "Risk analysis unavailable."
	NoMarketView          = "Not available."
	NoRationale           = "No rationale provided."
	NoTechnicalAnalysis   = "Technical analysis unavailable."
	NoSentiment           = "Sentiment data unavailable."
	NoPortfolioSummary    = "Portfolio analysis unavailable."
	UnknownTicker         = "N/A"
	UnknownName           = "Unknown"
	UnknownSector         = "Unspecified"
	UnknownValue          = "Unknown"
	NeutralLabel          = "Neutral"
	neutralSentimentScore = 50
	maxProjectionYear     = 9999
)

// PlaceholderTechnical is the technical analysis of an allocation that came
// without one.
func PlaceholderTechnical() TechnicalAnalysis {
	return TechnicalAnalysis{Trend: NeutralLabel, Summary: NoTechnicalAnalysis}
}

// PlaceholderSentiment is the sentiment of an allocation that came without
// one.
func PlaceholderSentiment() MarketSentiment {
	return MarketSentiment{Score: neutralSentimentScore, Label: NeutralLabel, Summary: NoSentiment}
}

// Sanitize normalizes an untrusted decoded payload into a fully populated
// Plan. It never fails: wrong types become defaults, non-array lists become
// empty, and records become placeholders. summary is the narrative the
// model wrote before the JSON block. Sources are never read from the
// payload.
func Sanitize(raw any, summary string) Plan {
	p := Plan{
		Summary:         strings.TrimSpace(summary),
		RiskAnalysis:    str(raw, "$.riskAnalysis", NoRiskAnalysis),
		ActionableSteps: strList(raw, "$.actionableSteps"),
		SWOT: SWOT{
			Strengths:     strList(raw, "$.swot.strengths"),
			Weaknesses:    strList(raw, "$.swot.weaknesses"),
			Opportunities: strList(raw, "$.swot.opportunities"),
			Threats:       strList(raw, "$.swot.threats"),
		},
		Allocations:  []Allocation{},
		Projections:  []Projection{},
		Sources:      []Source{},
		SecEvents:    []SecEvent{},
		SectorTrends: []SectorTrend{},
		MarketAnalysis: MarketAnalysis{
			Outlook:       str(raw, "$.marketAnalysis.outlook", NoMarketView),
			Risks:         str(raw, "$.marketAnalysis.risks", NoMarketView),
			Opportunities: str(raw, "$.marketAnalysis.opportunities", NoMarketView),
		},
	}
	if p.Summary == "" {
		p.Summary = str(raw, "$.summary", NoSummary)
	}

	for _, item := range objects(raw, "$.allocations") {
		p.Allocations = append(p.Allocations, sanitizeAllocation(item))
	}
	for _, item := range objects(raw, "$.projections") {
		p.Projections = append(p.Projections, Projection{
			Year:          int(math.Round(clamp(num(item, "$.year", 0), 0, maxProjectionYear))),
			Value:         nonNegative(num(item, "$.value", 0)),
			Contributions: nonNegative(num(item, "$.contributions", 0)),
		})
	}
	for _, item := range objects(raw, "$.secEvents") {
		p.SecEvents = append(p.SecEvents, SecEvent{
			Date:        str(item, "$.date", UnknownValue),
			Ticker:      str(item, "$.ticker", UnknownTicker),
			Type:        str(item, "$.type", UnknownValue),
			Description: str(item, "$.description", NoRationale),
			Impact:      str(item, "$.impact", NeutralLabel),
		})
	}
	for _, item := range objects(raw, "$.sectorTrends") {
		p.SectorTrends = append(p.SectorTrends, SectorTrend{
			Sector:    str(item, "$.sector", UnknownSector),
			Trend:     str(item, "$.trend", NeutralLabel),
			Rationale: str(item, "$.rationale", NoRationale),
		})
	}

	if pa, ok := lookup(raw, "$.portfolioAnalysis"); ok {
		if _, isObject := pa.(map[string]any); isObject {
			p.PortfolioAnalysis = sanitizePortfolioAnalysis(pa)
		}
	}
	return p
}

func sanitizeAllocation(item any) Allocation {
	a := Allocation{
		Ticker:     strings.ToUpper(str(item, "$.ticker", UnknownTicker)),
		Name:       str(item, "$.name", UnknownName),
		Sector:     str(item, "$.sector", UnknownSector),
		Percentage: clamp(num(item, "$.percentage", 0), 0, 100),
		Type:       enum(item, "$.type", AssetTypes, TypeETF),
		Rationale:  str(item, "$.rationale", NoRationale),
		Account:    enum(item, "$.account", Accounts, AccountBrokerage),
		Technical:  PlaceholderTechnical(),
		Sentiment:  PlaceholderSentiment(),
	}
	if y, ok := optNum(item, "$.dividendYield"); ok {
		y = nonNegative(y)
		a.DividendYield = &y
	}

	if ta, ok := lookup(item, "$.technicalAnalysis"); ok {
		if _, isObject := ta.(map[string]any); isObject {
			a.Technical = TechnicalAnalysis{
				Trend:      str(ta, "$.trend", NeutralLabel),
				Support:    nonNegative(num(ta, "$.support", 0)),
				Resistance: nonNegative(num(ta, "$.resistance", 0)),
				Summary:    str(ta, "$.summary", NoTechnicalAnalysis),
			}
		}
	}
	if ms, ok := lookup(item, "$.sentiment"); ok {
		if _, isObject := ms.(map[string]any); isObject {
			a.Sentiment = MarketSentiment{
				Score:   int(math.Round(clamp(num(ms, "$.score", neutralSentimentScore), 0, 100))),
				Label:   str(ms, "$.label", NeutralLabel),
				Summary: str(ms, "$.summary", NoSentiment),
			}
		}
	}
	return a
}

func sanitizePortfolioAnalysis(raw any) *PortfolioAnalysis {
	pa := &PortfolioAnalysis{
		Score:       int(math.Round(clamp(num(raw, "$.score", 0), 0, 100))),
		Summary:     str(raw, "$.summary", NoPortfolioSummary),
		Rebalancing: []RebalancingOrder{},
	}
	for _, item := range objects(raw, "$.rebalancing") {
		pa.Rebalancing = append(pa.Rebalancing, RebalancingOrder{
			Action:    str(item, "$.action", "Hold"),
			Ticker:    strings.ToUpper(str(item, "$.ticker", UnknownTicker)),
			Amount:    str(item, "$.amount", UnknownValue),
			Rationale: str(item, "$.rationale", NoRationale),
		})
	}
	return pa
}

// lookup evaluates a JSONPath against v. Missing keys, wrong container
// types and JSON null all report !ok.
func lookup(v any, path string) (any, bool) {
	switch v.(type) {
	case map[string]any, []any:
	default:
		return nil, false
	}
	got, err := jsonpath.Get(path, v)
	if err != nil || got == nil {
		return nil, false
	}
	return got, true
}

// str returns a non-blank string at path. Numbers and booleans are
// rendered as text; anything else yields def.
func str(v any, path, def string) string {
	got, ok := lookup(v, path)
	if !ok {
		return def
	}
	s, ok := scalarString(got)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// strList returns the scalar entries of the array at path. A missing or
// non-array value yields an empty list.
func strList(v any, path string) []string {
	out := []string{}
	got, ok := lookup(v, path)
	if !ok {
		return out
	}
	items, ok := got.([]any)
	if !ok {
		return out
	}
	for _, it := range items {
		if s, ok := scalarString(it); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// objects returns the object entries of the array at path, skipping
// anything that is not an object.
func objects(v any, path string) []any {
	got, ok := lookup(v, path)
	if !ok {
		return nil
	}
	items, ok := got.([]any)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		if _, isObject := it.(map[string]any); isObject {
			out = append(out, it)
		}
	}
	return out
}

func num(v any, path string, def float64) float64 {
	if f, ok := optNum(v, path); ok {
		return f
	}
	return def
}

// optNum reads a number at path. Numeric strings such as "60", "60%",
// "$1,200" or "4.5 %" are accepted.
func optNum(v any, path string) (float64, bool) {
	got, ok := lookup(v, path)
	if !ok {
		return 0, false
	}
	var f float64
	switch t := got.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := parseNumeric(t)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumeric(s string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '$' || r == '%' || r == ',' || unicode.IsSpace(r):
			return -1
		default:
			return r
		}
	}, s)
	if clean == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func enum[T ~string](v any, path string, allowed []T, def T) T {
	s := str(v, path, "")
	for _, a := range allowed {
		if equalFold(string(a), s) {
			return a
		}
	}
	return def
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func clamp(f, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, f))
}

func nonNegative(f float64) float64 {
	return math.Max(0, f)
}
