package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/kalambet/finplan/internal/plan"
)

// Gemini implements Model over the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini client authenticated with apiKey.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

// NewGeminiWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewGeminiWithBaseURL(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*Gemini, error) {
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimRight(baseURL, "/") + "/"},
	})
}

func newGemini(ctx context.Context, cfg *genai.ClientConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// GeminiFactory is the production Factory.
func GeminiFactory(ctx context.Context, apiKey string) (Model, error) {
	return NewGemini(ctx, apiKey)
}

func (g *Gemini) Generate(ctx context.Context, req GenerateRequest) (Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return Response{}, err
	}
	return toResponse(resp), nil
}

func (g *Gemini) StartChat(ctx context.Context, req ChatRequest) (Session, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}}
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	history := make([]*genai.Content, 0, len(req.History))
	for _, t := range req.History {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		history = append(history, &genai.Content{
			Role:  t.Role,
			Parts: []*genai.Part{{Text: t.Text}},
		})
	}

	chat, err := g.client.Chats.Create(ctx, req.Model, cfg, history)
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}
	return &geminiSession{chat: chat}, nil
}

// geminiSession serializes sends; genai.Chat appends to its history
// without locking.
type geminiSession struct {
	mu   sync.Mutex
	chat *genai.Chat
}

func (s *geminiSession) Send(ctx context.Context, text string) (Response, error) {
	s.mu.Lock()
	resp, err := s.chat.Send(ctx, &genai.Part{Text: text})
	s.mu.Unlock()
	if err != nil {
		return Response{}, err
	}
	return toResponse(resp), nil
}

func toResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{Sources: []plan.Source{}}
	}
	return Response{
		Text:    resp.Text(),
		Sources: groundingSources(resp),
	}
}

// groundingSources collects the cited web pages of the first candidate.
// Chunks without both a URL and a title are skipped.
func groundingSources(resp *genai.GenerateContentResponse) []plan.Source {
	sources := []plan.Source{}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return sources
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return sources
	}

	seen := make(map[string]bool)
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		title := strings.TrimSpace(chunk.Web.Title)
		if uri == "" || title == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		sources = append(sources, plan.Source{Title: title, URL: uri})
	}
	return sources
}
