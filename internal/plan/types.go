package plan

import "time"

// AssetType is the instrument class of an allocation.
type AssetType string

const (
	TypeStock  AssetType = "Stock"
	TypeETF    AssetType = "ETF"
	TypeBond   AssetType = "Bond"
	TypeREIT   AssetType = "REIT"
	TypeCrypto AssetType = "Crypto"
)

var AssetTypes = []AssetType{TypeStock, TypeETF, TypeBond, TypeREIT, TypeCrypto}

// Account is where an allocation should be held.
type Account string

const (
	AccountRothIRA   Account = "Roth IRA"
	AccountBrokerage Account = "Brokerage"
	AccountBoth      Account = "Both"
)

var Accounts = []Account{AccountRothIRA, AccountBrokerage, AccountBoth}

// Plan is a sanitized investment plan. Every field is populated; lists are
// never nil. PortfolioAnalysis is nil when the model did not analyze an
// existing portfolio.
type Plan struct {
	ID                string             `json:"id"`
	GeneratedAt       time.Time          `json:"generatedAt"`
	Summary           string             `json:"summary"`
	RiskAnalysis      string             `json:"riskAnalysis"`
	ActionableSteps   []string           `json:"actionableSteps"`
	SWOT              SWOT               `json:"swot"`
	Allocations       []Allocation       `json:"allocations"`
	Projections       []Projection       `json:"projections"`
	Sources           []Source           `json:"sources"`
	MarketAnalysis    MarketAnalysis     `json:"marketAnalysis"`
	SecEvents         []SecEvent         `json:"secEvents"`
	SectorTrends      []SectorTrend      `json:"sectorTrends"`
	PortfolioAnalysis *PortfolioAnalysis `json:"portfolioAnalysis,omitempty"`
}

type SWOT struct {
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	Opportunities []string `json:"opportunities"`
	Threats       []string `json:"threats"`
}

type Allocation struct {
	Ticker        string            `json:"ticker"`
	Name          string            `json:"name"`
	Sector        string            `json:"sector"`
	Percentage    float64           `json:"percentage"`
	Type          AssetType         `json:"type"`
	Rationale     string            `json:"rationale"`
	Account       Account           `json:"account"`
	DividendYield *float64          `json:"dividendYield,omitempty"`
	Technical     TechnicalAnalysis `json:"technicalAnalysis"`
	Sentiment     MarketSentiment   `json:"sentiment"`
}

type TechnicalAnalysis struct {
	Trend      string  `json:"trend"`
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Summary    string  `json:"summary"`
}

// MarketSentiment scores news and analyst sentiment from 0 (bearish) to
// 100 (bullish).
type MarketSentiment struct {
	Score   int    `json:"score"`
	Label   string `json:"label"`
	Summary string `json:"summary"`
}

type Projection struct {
	Year          int     `json:"year"`
	Value         float64 `json:"value"`
	Contributions float64 `json:"contributions"`
}

// Source is a web page the model cited through search grounding.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type MarketAnalysis struct {
	Outlook       string `json:"outlook"`
	Risks         string `json:"risks"`
	Opportunities string `json:"opportunities"`
}

type SecEvent struct {
	Date        string `json:"date"`
	Ticker      string `json:"ticker"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Impact      string `json:"impact"`
}

type SectorTrend struct {
	Sector    string `json:"sector"`
	Trend     string `json:"trend"`
	Rationale string `json:"rationale"`
}

type PortfolioAnalysis struct {
	Score       int                `json:"score"`
	Summary     string             `json:"summary"`
	Rebalancing []RebalancingOrder `json:"rebalancing"`
}

type RebalancingOrder struct {
	Action    string `json:"action"`
	Ticker    string `json:"ticker"`
	Amount    string `json:"amount"`
	Rationale string `json:"rationale"`
}

// AllocationTotal sums allocation percentages. The sum is informational;
// plans are never rescaled to 100.
func (p Plan) AllocationTotal() float64 {
	var total float64
	for _, a := range p.Allocations {
		total += a.Percentage
	}
	return total
}

// FindAllocation returns the allocation with the given ticker, matched
// case-insensitively.
func (p Plan) FindAllocation(ticker string) (Allocation, bool) {
	for _, a := range p.Allocations {
		if equalFold(a.Ticker, ticker) {
			return a, true
		}
	}
	return Allocation{}, false
}
