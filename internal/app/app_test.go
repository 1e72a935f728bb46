package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/finplan/internal/chat"
	"github.com/kalambet/finplan/internal/config"
	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/profile"
	"github.com/kalambet/finplan/internal/storage"
)

const planReply = "Stay broad and cheap.\n\n```json\n" +
	`{"riskAnalysis":"Moderate","allocations":[{"ticker":"VTI","name":"Total Market","percentage":70},{"ticker":"BND","percentage":30,"type":"Bond"}]}` +
	"\n```"

// fakeGemini answers pings with OK, plan prompts with planReply and chat
// turns with chatReply.
type fakeGemini struct {
	mu         sync.Mutex
	planText   string
	planErr    error
	chatReply  string
	keys       []string
	chatStarts int
}

func (f *fakeGemini) factory(_ context.Context, key string) (gateway.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f, nil
}

func (f *fakeGemini) Generate(_ context.Context, req gateway.GenerateRequest) (gateway.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Prompt == "Reply with OK." {
		return gateway.Response{Text: "OK"}, nil
	}
	if f.planErr != nil {
		return gateway.Response{}, f.planErr
	}
	return gateway.Response{Text: f.planText, Sources: []plan.Source{{Title: "Morningstar", URL: "https://morningstar.com"}}}, nil
}

func (f *fakeGemini) StartChat(context.Context, gateway.ChatRequest) (gateway.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatStarts++
	return f, nil
}

func (f *fakeGemini) Send(_ context.Context, text string) (gateway.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatReply == "" {
		return gateway.Response{}, errors.New("unavailable")
	}
	return gateway.Response{Text: f.chatReply + " (" + text + ")"}, nil
}

func testConfig() config.Config {
	var cfg config.Config
	cfg.Gemini.Model = "gemini-test"
	cfg.Gemini.ChatModel = "gemini-chat-test"
	cfg.Gemini.Search = true
	return cfg
}

func newTestApp(t *testing.T, f *fakeGemini) (*App, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a, err := New(testConfig(), Options{Store: store, Factory: f.factory})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, store
}

func unlock(t *testing.T, a *App) {
	t.Helper()
	if err := a.Gate.Verify(context.Background(), "key-1"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestApp_LockedUntilVerified(t *testing.T) {
	a, _ := newTestApp(t, &fakeGemini{planText: planReply})

	if a.Unlocked() {
		t.Error("fresh app is unlocked")
	}
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); !errors.Is(err, ErrLocked) {
		t.Errorf("GeneratePlan err = %v, want ErrLocked", err)
	}
	if _, err := a.CurrentPlan(); !errors.Is(err, ErrNoPlan) {
		t.Errorf("CurrentPlan err = %v, want ErrNoPlan", err)
	}
	if _, err := a.Ask(context.Background(), "hi"); !errors.Is(err, ErrLocked) {
		t.Errorf("Ask err = %v, want ErrLocked", err)
	}
}

func TestApp_GeneratePlanPersistsAndSeedsChat(t *testing.T) {
	f := &fakeGemini{planText: planReply, chatReply: "Answer"}
	a, store := newTestApp(t, f)
	unlock(t, a)

	p, err := a.GeneratePlan(context.Background(), profile.Default())
	if err != nil {
		t.Fatalf("GeneratePlan: %v", err)
	}
	if p.Summary != "Stay broad and cheap." || len(p.Allocations) != 2 || p.Allocations[1].Type != plan.TypeBond {
		t.Errorf("plan = %+v", p)
	}
	if len(p.Sources) != 1 {
		t.Errorf("sources = %+v", p.Sources)
	}
	if a.Advisor.State() != chat.StateReady {
		t.Errorf("advisor state = %v, want ready", a.Advisor.State())
	}

	// A second App over the same store sees the plan.
	b, err := New(testConfig(), Options{Store: store, Factory: f.factory})
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.CurrentPlan()
	if err != nil {
		t.Fatalf("CurrentPlan: %v", err)
	}
	if got.ID != p.ID || got.Allocations[0].Ticker != "VTI" {
		t.Errorf("reloaded plan = %+v", got)
	}

	msg, err := b.Ask(context.Background(), "why?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if msg.Text != "Answer (why?)" {
		t.Errorf("reply = %q", msg.Text)
	}
}

func TestApp_FailedGenerationKeepsPreviousPlan(t *testing.T) {
	f := &fakeGemini{planText: planReply}
	a, _ := newTestApp(t, f)
	unlock(t, a)

	first, err := a.GeneratePlan(context.Background(), profile.Default())
	if err != nil {
		t.Fatal(err)
	}

	f.planText = "no json here"
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); !errors.Is(err, plan.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}

	f.planErr = errors.New("400 Bad Request")
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); err == nil {
		t.Fatal("expected transport error")
	}

	cur, err := a.CurrentPlan()
	if err != nil || cur.ID != first.ID {
		t.Errorf("CurrentPlan = %q, %v; want %q", cur.ID, err, first.ID)
	}
}

func TestApp_GeneratePlanRejectsInvalidProfile(t *testing.T) {
	a, _ := newTestApp(t, &fakeGemini{planText: planReply})
	unlock(t, a)

	prof := profile.Default()
	prof.RiskTolerance = "Reckless"
	if _, err := a.GeneratePlan(context.Background(), prof); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestApp_AskAbout(t *testing.T) {
	f := &fakeGemini{planText: planReply, chatReply: "Details"}
	a, _ := newTestApp(t, f)
	unlock(t, a)
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); err != nil {
		t.Fatal(err)
	}

	msg, err := a.AskAbout(context.Background(), "vti")
	if err != nil {
		t.Fatalf("AskAbout: %v", err)
	}
	if !strings.Contains(msg.Text, "Tell me more about VTI") {
		t.Errorf("reply = %q", msg.Text)
	}

	if _, err := a.AskAbout(context.Background(), "TSLA"); !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("err = %v, want ErrUnknownTicker", err)
	}
}

func TestApp_ChatFailureIsApology(t *testing.T) {
	f := &fakeGemini{planText: planReply}
	a, _ := newTestApp(t, f)
	unlock(t, a)
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); err != nil {
		t.Fatal(err)
	}

	msg, err := a.Ask(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if msg.Text != chat.Apology {
		t.Errorf("reply = %q, want apology", msg.Text)
	}
}

func TestApp_ResetClearsEverything(t *testing.T) {
	f := &fakeGemini{planText: planReply, chatReply: "ok"}
	a, store := newTestApp(t, f)
	unlock(t, a)
	if _, err := a.GeneratePlan(context.Background(), profile.Default()); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Ask(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}

	if err := a.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if a.Unlocked() {
		t.Error("still unlocked after reset")
	}
	if _, err := a.CurrentPlan(); !errors.Is(err, ErrNoPlan) {
		t.Errorf("CurrentPlan err = %v, want ErrNoPlan", err)
	}
	if _, err := store.LatestPlan(); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("stored plan err = %v", err)
	}
	if msgs := a.Advisor.Messages(); len(msgs) != 1 || msgs[0].Text != chat.Greeting {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestApp_PlanHistory(t *testing.T) {
	a, store := newTestApp(t, &fakeGemini{planText: planReply})
	unlock(t, a)

	var ids []string
	for i := 0; i < 3; i++ {
		p, err := a.GeneratePlan(context.Background(), profile.Default())
		if err != nil {
			t.Fatalf("GeneratePlan: %v", err)
		}
		ids = append(ids, p.ID)
	}
	if err := store.SavePlan(storage.PlanRecord{ID: "broken", CreatedAt: time.Now().Add(time.Hour), PlanJSON: "{"}); err != nil {
		t.Fatal(err)
	}

	plans, err := a.PlanHistory(3)
	if err != nil {
		t.Fatalf("PlanHistory: %v", err)
	}
	if len(plans) != 2 || plans[0].ID != ids[2] || plans[1].ID != ids[1] {
		t.Errorf("history = %d plans, want the two newest readable ones", len(plans))
	}
}

func TestApp_SeedCredential(t *testing.T) {
	f := &fakeGemini{}
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := testConfig()
	cfg.Gemini.APIKey = "env-key"
	a, err := New(cfg, Options{Store: store, Factory: f.factory})
	if err != nil {
		t.Fatal(err)
	}

	a.SeedCredential(context.Background())
	if key, ok := a.Gate.Current(); !ok || key != "env-key" {
		t.Errorf("Current = %q, %v", key, ok)
	}

	// An open gate is not re-verified.
	a.SeedCredential(context.Background())
	if len(f.keys) != 1 {
		t.Errorf("factory calls = %d, want 1", len(f.keys))
	}
}
