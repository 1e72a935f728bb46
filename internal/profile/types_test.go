package profile

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseRiskTolerance(t *testing.T) {
	tests := []struct {
		in      string
		want    RiskTolerance
		wantErr bool
	}{
		{"Conservative", RiskConservative, false},
		{"moderate", RiskModerate, false},
		{"  AGGRESSIVE ", RiskAggressive, false},
		{"very-aggressive", RiskVeryAggressive, false},
		{"Very  Aggressive", RiskVeryAggressive, false},
		{"yolo", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRiskTolerance(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRiskTolerance(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRiskTolerance(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFilingStatus(t *testing.T) {
	if got, err := ParseFilingStatus("head of household"); err != nil || got != FilingHeadOfHousehold {
		t.Errorf("ParseFilingStatus = %q, %v", got, err)
	}
	if _, err := ParseFilingStatus("widowed"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)

	tests := []struct {
		name   string
		mutate func(p *Profile)
		want   string
	}{
		{"default ok", func(p *Profile) {}, ""},
		{"zero age", func(p *Profile) { p.Age = 0 }, "age"},
		{"bad retirement age", func(p *Profile) { p.RetirementAge = 200 }, "retirement age"},
		{"negative balance", func(p *Profile) { p.CashBalance = &neg }, "cash balance"},
		{"bad risk", func(p *Profile) { p.RiskTolerance = "Reckless" }, "risk tolerance"},
		{"bad filing", func(p *Profile) { p.FilingStatus = "" }, "filing status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0.00"},
		{"1234.5", "$1,234.50"},
		{"1000000", "$1,000,000.00"},
	}
	for _, tt := range tests {
		if got := FormatUSD(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatUSD(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatBalance(nil); got != "not provided" {
		t.Errorf("FormatBalance(nil) = %q", got)
	}
}

func TestClone_Independent(t *testing.T) {
	p := Default()
	cash := decimal.NewFromInt(100)
	p.CashBalance = &cash

	cp := p.Clone()
	*cp.CashBalance = decimal.NewFromInt(999)
	cp.Goals[0] = "changed"

	if !p.CashBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("original CashBalance changed to %s", p.CashBalance)
	}
	if p.Goals[0] != "Retirement" {
		t.Errorf("original Goals changed to %v", p.Goals)
	}
}

func TestSummary(t *testing.T) {
	p := Default()
	s := p.Summary()
	for _, want := range []string{"Age 30", "$75,000.00", "not provided", "Moderate", "Retirement"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary() = %q, missing %q", s, want)
		}
	}
	if strings.Contains(s, "Current holdings") {
		t.Error("Summary mentions holdings for empty portfolio")
	}
}
