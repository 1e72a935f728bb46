package gateway

import (
	"context"

	"github.com/kalambet/finplan/internal/plan"
)

// Response is one model reply: its text plus any web sources the model
// cited through search grounding.
type Response struct {
	Text    string
	Sources []plan.Source
}

// GenerateRequest is a one-shot generation call.
type GenerateRequest struct {
	Model  string
	Prompt string
	Search bool
}

// Role of a chat turn, as the generative API names it.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is a prior chat message replayed into a new session.
type Turn struct {
	Role string
	Text string
}

// ChatRequest creates a stateful chat session.
type ChatRequest struct {
	Model             string
	SystemInstruction string
	History           []Turn
	Search            bool
}

// Model is the external generative service.
type Model interface {
	Generate(ctx context.Context, req GenerateRequest) (Response, error)
	StartChat(ctx context.Context, req ChatRequest) (Session, error)
}

// Session is a created chat. Each Send carries the accumulated turns.
type Session interface {
	Send(ctx context.Context, text string) (Response, error)
}

// Factory builds a Model bound to one credential.
type Factory func(ctx context.Context, apiKey string) (Model, error)
