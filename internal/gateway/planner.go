package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/profile"
	"github.com/kalambet/finplan/internal/prompt"
)

// ErrEmptyResponse is returned when the model replies with no text.
var ErrEmptyResponse = errors.New("the model returned an empty response")

// pingPrompt is the minimal generation used to verify a credential.
const pingPrompt = "Reply with OK."

// Ping issues one minimal generation and fails unless the reply carries
// non-empty text.
func Ping(ctx context.Context, m Model, model string) error {
	resp, err := m.Generate(ctx, GenerateRequest{Model: model, Prompt: pingPrompt})
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return ErrEmptyResponse
	}
	return nil
}

// Planner turns a Profile into a Plan through one generation call.
type Planner struct {
	Model     Model
	ModelName string
	Search    bool

	// Now and NewID are replaced in tests.
	Now   func() time.Time
	NewID func() string
}

// NewPlanner creates a Planner with search grounding enabled.
func NewPlanner(m Model, modelName string) *Planner {
	return &Planner{
		Model:     m,
		ModelName: modelName,
		Search:    true,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// GeneratePlan sends the profile to the model and decodes the reply. There
// is no partial success: an empty reply yields ErrEmptyResponse and a reply
// without a usable JSON block yields a *plan.DecodeError. Nothing is
// retried.
func (p *Planner) GeneratePlan(ctx context.Context, prof profile.Profile) (plan.Plan, error) {
	snapshot := prof.Clone()
	now := p.Now()

	text := prompt.BuildPlanPrompt(snapshot, now)
	slog.Debug("generating plan", "model", p.ModelName, "search", p.Search, "prompt_chars", len(text))

	resp, err := p.Model.Generate(ctx, GenerateRequest{
		Model:  p.ModelName,
		Prompt: text,
		Search: p.Search,
	})
	if err != nil {
		return plan.Plan{}, fmt.Errorf("generating plan: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return plan.Plan{}, ErrEmptyResponse
	}

	result, err := plan.Decode(resp.Text)
	if err != nil {
		slog.Warn("plan response could not be decoded", "error", err, "response_chars", len(resp.Text))
		return plan.Plan{}, err
	}

	result.ID = p.NewID()
	result.GeneratedAt = now.UTC()
	if resp.Sources != nil {
		result.Sources = resp.Sources
	}
	slog.Info("plan generated", "id", result.ID, "allocations", len(result.Allocations), "sources", len(result.Sources))
	return result, nil
}
