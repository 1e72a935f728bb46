package profile

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// RiskTolerance is one of four investor risk tiers.
type RiskTolerance string

const (
	RiskConservative   RiskTolerance = "Conservative"
	RiskModerate       RiskTolerance = "Moderate"
	RiskAggressive     RiskTolerance = "Aggressive"
	RiskVeryAggressive RiskTolerance = "Very Aggressive"
)

// RiskTolerances lists the tiers from least to most aggressive.
var RiskTolerances = []RiskTolerance{RiskConservative, RiskModerate, RiskAggressive, RiskVeryAggressive}

// FilingStatus is the US tax filing status.
type FilingStatus string

const (
	FilingSingle          FilingStatus = "Single"
	FilingMarriedJointly  FilingStatus = "Married Filing Jointly"
	FilingHeadOfHousehold FilingStatus = "Head of Household"
)

var FilingStatuses = []FilingStatus{FilingSingle, FilingMarriedJointly, FilingHeadOfHousehold}

// Profile holds the user's financial inputs for one plan generation.
// Nil balances were left blank by the user.
type Profile struct {
	Age                 int              `json:"age"`
	RetirementAge       int              `json:"retirementAge"`
	AnnualIncome        decimal.Decimal  `json:"annualIncome"`
	CashBalance         *decimal.Decimal `json:"cashBalance,omitempty"`
	BrokerageBalance    *decimal.Decimal `json:"brokerageBalance,omitempty"`
	RetirementBalance   *decimal.Decimal `json:"retirementBalance,omitempty"`
	MonthlyContribution decimal.Decimal  `json:"monthlyContribution"`
	RiskTolerance       RiskTolerance    `json:"riskTolerance"`
	FilingStatus        FilingStatus     `json:"filingStatus"`
	Goals               []string         `json:"goals"`
	GeoFocus            []string         `json:"geoFocus"`
	CurrentPortfolio    string           `json:"currentPortfolio"`
}

// Default returns the form's initial values.
func Default() Profile {
	return Profile{
		Age:                 30,
		RetirementAge:       65,
		AnnualIncome:        decimal.NewFromInt(75000),
		MonthlyContribution: decimal.NewFromInt(500),
		RiskTolerance:       RiskModerate,
		FilingStatus:        FilingSingle,
		Goals:               []string{"Retirement"},
		GeoFocus:            []string{"US"},
	}
}

// ParseRiskTolerance matches s case-insensitively against the known tiers.
func ParseRiskTolerance(s string) (RiskTolerance, error) {
	norm := normalizeEnum(s)
	for _, r := range RiskTolerances {
		if normalizeEnum(string(r)) == norm {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown risk tolerance %q (want one of %s)", s, joinEnum(RiskTolerances))
}

// ParseFilingStatus matches s case-insensitively against the known statuses.
func ParseFilingStatus(s string) (FilingStatus, error) {
	norm := normalizeEnum(s)
	for _, f := range FilingStatuses {
		if normalizeEnum(string(f)) == norm {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown filing status %q (want one of %s)", s, joinEnum(FilingStatuses))
}

func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func joinEnum[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// Validate reports the first invalid field.
func (p Profile) Validate() error {
	if p.Age <= 0 || p.Age > 120 {
		return fmt.Errorf("age %d out of range", p.Age)
	}
	if p.RetirementAge <= 0 || p.RetirementAge > 120 {
		return fmt.Errorf("retirement age %d out of range", p.RetirementAge)
	}
	if p.AnnualIncome.IsNegative() {
		return fmt.Errorf("annual income must not be negative")
	}
	if p.MonthlyContribution.IsNegative() {
		return fmt.Errorf("monthly contribution must not be negative")
	}
	balances := []struct {
		name string
		val  *decimal.Decimal
	}{
		{"cash balance", p.CashBalance},
		{"brokerage balance", p.BrokerageBalance},
		{"retirement balance", p.RetirementBalance},
	}
	for _, b := range balances {
		if b.val != nil && b.val.IsNegative() {
			return fmt.Errorf("%s must not be negative", b.name)
		}
	}
	if _, err := ParseRiskTolerance(string(p.RiskTolerance)); err != nil {
		return err
	}
	if _, err := ParseFilingStatus(string(p.FilingStatus)); err != nil {
		return err
	}
	return nil
}

// Clone returns a deep copy. Generation works on a clone so later edits to
// the draft never leak into an in-flight request.
func (p Profile) Clone() Profile {
	cp := p
	cp.CashBalance = cloneDecimal(p.CashBalance)
	cp.BrokerageBalance = cloneDecimal(p.BrokerageBalance)
	cp.RetirementBalance = cloneDecimal(p.RetirementBalance)
	if p.Goals != nil {
		cp.Goals = append([]string(nil), p.Goals...)
	}
	if p.GeoFocus != nil {
		cp.GeoFocus = append([]string(nil), p.GeoFocus...)
	}
	return cp
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// FormatUSD renders d as a dollar amount, e.g. "$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Shift(2).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

// FormatBalance renders a possibly blank balance.
func FormatBalance(d *decimal.Decimal) string {
	if d == nil {
		return "not provided"
	}
	return FormatUSD(*d)
}

// Summary is a one-paragraph description of the profile for terminal output.
func (p Profile) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Age %d, retiring at %d. ", p.Age, p.RetirementAge)
	fmt.Fprintf(&b, "Income %s/yr, contributing %s/mo. ", FormatUSD(p.AnnualIncome), FormatUSD(p.MonthlyContribution))
	fmt.Fprintf(&b, "Cash %s, brokerage %s, retirement %s. ",
		FormatBalance(p.CashBalance), FormatBalance(p.BrokerageBalance), FormatBalance(p.RetirementBalance))
	fmt.Fprintf(&b, "Risk: %s. Filing: %s.", p.RiskTolerance, p.FilingStatus)
	if len(p.Goals) > 0 {
		fmt.Fprintf(&b, " Goals: %s.", strings.Join(p.Goals, ", "))
	}
	if len(p.GeoFocus) > 0 {
		fmt.Fprintf(&b, " Focus: %s.", strings.Join(p.GeoFocus, ", "))
	}
	if strings.TrimSpace(p.CurrentPortfolio) != "" {
		b.WriteString(" Current holdings provided.")
	}
	return b.String()
}
