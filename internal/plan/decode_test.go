package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractBlock(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantNarrative string
		wantBlock     string
		wantOK        bool
	}{
		{
			name:          "json fence",
			text:          "Here is your plan.\n\n```json\n{\"a\":1}\n```\n",
			wantNarrative: "Here is your plan.",
			wantBlock:     `{"a":1}`,
			wantOK:        true,
		},
		{
			name:          "bare fence",
			text:          "Intro\n```\n{\"a\":2}\n```",
			wantNarrative: "Intro",
			wantBlock:     `{"a":2}`,
			wantOK:        true,
		},
		{
			name:          "last fence wins",
			text:          "Example:\n```json\n{\"a\":1}\n```\nFinal:\n```json\n{\"a\":3}\n```",
			wantNarrative: "Example:\n```json\n{\"a\":1}\n```\nFinal:",
			wantBlock:     `{"a":3}`,
			wantOK:        true,
		},
		{
			name:          "stray fence in prose",
			text:          "Use the ``` symbol carefully.\n\n```json\n{\"a\":1}\n```",
			wantNarrative: "Use the ``` symbol carefully.",
			wantBlock:     `{"a":1}`,
			wantOK:        true,
		},
		{
			name:          "inline block",
			text:          "Type ``` then ```json {\"a\":4}```",
			wantNarrative: "Type ``` then",
			wantBlock:     `{"a":4}`,
			wantOK:        true,
		},
		{
			name:          "no fence",
			text:          "  Just prose.  ",
			wantNarrative: "Just prose.",
			wantOK:        false,
		},
		{
			name:          "unterminated fence",
			text:          "Prose\n```json\n{\"a\":1}",
			wantNarrative: "Prose\n```json\n{\"a\":1}",
			wantOK:        false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			narrative, block, ok := ExtractBlock(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if narrative != tt.wantNarrative {
				t.Errorf("narrative = %q, want %q", narrative, tt.wantNarrative)
			}
			if block != tt.wantBlock {
				t.Errorf("block = %q, want %q", block, tt.wantBlock)
			}
		})
	}
}

func TestDecode_VTIScenario(t *testing.T) {
	text := "Your plan focuses on broad US equity exposure.\n\n" +
		"```json\n" +
		`{"allocations":[{"ticker":"VTI","percentage":60}],"actionableSteps":["Max out Roth IRA"]}` +
		"\n```"

	p, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Summary != "Your plan focuses on broad US equity exposure." {
		t.Errorf("Summary = %q", p.Summary)
	}
	if len(p.Allocations) != 1 {
		t.Fatalf("len(Allocations) = %d, want 1", len(p.Allocations))
	}
	a := p.Allocations[0]
	if a.Ticker != "VTI" || a.Percentage != 60 {
		t.Errorf("allocation = %s %v, want VTI 60", a.Ticker, a.Percentage)
	}
	if a.Name != UnknownName || a.Sector != UnknownSector || a.Rationale != NoRationale {
		t.Errorf("string defaults not applied: %+v", a)
	}
	if a.Type != TypeETF || a.Account != AccountBrokerage {
		t.Errorf("enum defaults = %q/%q, want ETF/Brokerage", a.Type, a.Account)
	}
	if a.DividendYield != nil {
		t.Errorf("DividendYield = %v, want nil", *a.DividendYield)
	}
	if a.Technical != PlaceholderTechnical() || a.Sentiment != PlaceholderSentiment() {
		t.Errorf("sub-records not placeholders: %+v %+v", a.Technical, a.Sentiment)
	}
	if p.PortfolioAnalysis != nil {
		t.Errorf("PortfolioAnalysis = %+v, want nil", p.PortfolioAnalysis)
	}
}

func TestDecode_OddFencesInNarrative(t *testing.T) {
	text := "Use the ``` symbol carefully.\n\n" +
		"```json\n" +
		`{"allocations":[{"ticker":"VTI","percentage":60}]}` +
		"\n```"

	p, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(p.Allocations) != 1 || p.Allocations[0].Ticker != "VTI" || p.Allocations[0].Percentage != 60 {
		t.Errorf("Allocations = %+v, want VTI 60", p.Allocations)
	}
	if p.Summary != "Use the ``` symbol carefully." {
		t.Errorf("Summary = %q", p.Summary)
	}
}

func TestDecode_NoFence(t *testing.T) {
	p, err := Decode("I could not produce a plan today, sorry.")
	if err == nil {
		t.Fatalf("Decode succeeded with %+v, want error", p)
	}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("err = %v, want ErrMalformedResponse", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err is %T, want *DecodeError", err)
	}
	if de.Narrative != "I could not produce a plan today, sorry." {
		t.Errorf("Narrative = %q", de.Narrative)
	}
	if p.Allocations != nil || p.Summary != "" {
		t.Errorf("partial plan returned: %+v", p)
	}
}

func TestDecode_UnparseableBlock(t *testing.T) {
	_, err := Decode("Narrative text\n```json\n{\"allocations\": [\n```")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	var de *DecodeError
	if errors.As(err, &de) && de.Narrative != "Narrative text" {
		t.Errorf("Narrative = %q, want %q", de.Narrative, "Narrative text")
	}
	if !strings.Contains(err.Error(), "parsing fenced block") {
		t.Errorf("err = %q, want parse cause", err.Error())
	}
}

func TestDecode_NonObjectBlock(t *testing.T) {
	_, err := Decode("x\n```json\n[1,2,3]\n```")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if !strings.Contains(err.Error(), "array") {
		t.Errorf("err = %q, want mention of array", err.Error())
	}
}
