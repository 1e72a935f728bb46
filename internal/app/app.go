// Package app wires the finplan components together. Both the CLI and the
// local server drive the application through an App.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/finplan/internal/chat"
	"github.com/kalambet/finplan/internal/config"
	"github.com/kalambet/finplan/internal/credential"
	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/metrics"
	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/profile"
	"github.com/kalambet/finplan/internal/storage"
)

var (
	// ErrLocked is returned by operations that need a verified credential.
	ErrLocked = errors.New("no verified API key: run 'finplan key set' first")
	// ErrNoPlan is returned when an operation needs a plan and none exists.
	ErrNoPlan = errors.New("no plan yet: run 'finplan plan generate' first")
	// ErrInvalidProfile wraps a profile validation failure.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnknownTicker is returned by AskAbout for a ticker not in the plan.
	ErrUnknownTicker = errors.New("ticker is not part of the current plan")
)

// Options override the production dependencies.
type Options struct {
	// Store defaults to storage.Open(cfg.Storage.DataDir).
	Store *storage.Store
	// Factory defaults to gateway.GeminiFactory.
	Factory gateway.Factory
}

// App holds all application components and dependencies.
type App struct {
	Config   config.Config
	Store    *storage.Store
	Gate     *credential.Gate
	Profiles *profile.Manager
	Advisor  *chat.Advisor
	Metrics  *metrics.Collector

	factory   gateway.Factory
	ownsStore bool

	mu      sync.Mutex
	current *plan.Plan
	loaded  bool
}

// New initializes the application with all dependencies.
func New(cfg config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Store: opts.Store, factory: opts.Factory}

	if a.factory == nil {
		a.factory = gateway.GeminiFactory
	}
	if a.Store == nil {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		a.Store = store
		a.ownsStore = true
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}
	a.Metrics = collector

	a.Gate = credential.NewGate(a.Store, a.observedVerifier())
	a.Profiles = profile.NewManager(a.Store)
	a.Advisor = chat.NewAdvisor(a.factory, cfg.Gemini.ChatModel, cfg.Gemini.Search, chat.NewHistoryStore(a.Store))

	a.Gate.OnReset(a.clearPlan)
	a.Gate.OnReset(a.Advisor.Clear)

	slog.Debug("application initialized", "data_dir", cfg.Storage.DataDir, "model", cfg.Gemini.Model)
	return a, nil
}

func (a *App) observedVerifier() credential.Verifier {
	verify := credential.PingVerifier(a.factory, a.Config.Gemini.Model)
	return func(ctx context.Context, key string) error {
		start := time.Now()
		err := verify(ctx, key)
		a.Metrics.ObserveCall("ping", start, err)
		return err
	}
}

// SeedCredential verifies the API key from configuration when the gate is
// still closed. A rejected key is logged and leaves the gate closed.
func (a *App) SeedCredential(ctx context.Context) {
	if a.Config.Gemini.APIKey == "" {
		return
	}
	if _, ok := a.Gate.Current(); ok {
		return
	}
	if err := a.Gate.Verify(ctx, a.Config.Gemini.APIKey); err != nil {
		slog.Warn("configured API key was not accepted", "error", err)
	}
}

// Unlocked reports whether a verified credential is present.
func (a *App) Unlocked() bool {
	_, ok := a.Gate.Current()
	return ok
}

// CurrentPlan returns the latest generated plan, or ErrNoPlan.
func (a *App) CurrentPlan() (plan.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		p, err := a.loadLatest()
		if err != nil {
			return plan.Plan{}, err
		}
		a.current = p
		a.loaded = true
	}
	if a.current == nil {
		return plan.Plan{}, ErrNoPlan
	}
	return *a.current, nil
}

func (a *App) loadLatest() (*plan.Plan, error) {
	rec, err := a.Store.LatestPlan()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading plan: %w", err)
	}
	var p plan.Plan
	if err := json.Unmarshal([]byte(rec.PlanJSON), &p); err != nil {
		slog.Warn("discarding unreadable stored plan", "id", rec.ID, "error", err)
		return nil, nil
	}
	return &p, nil
}

// PlanHistory returns up to limit stored plans, newest first. Unreadable
// records are skipped.
func (a *App) PlanHistory(limit int) ([]plan.Plan, error) {
	recs, err := a.Store.ListPlans(limit)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	plans := make([]plan.Plan, 0, len(recs))
	for _, rec := range recs {
		var p plan.Plan
		if err := json.Unmarshal([]byte(rec.PlanJSON), &p); err != nil {
			slog.Warn("skipping unreadable stored plan", "id", rec.ID, "error", err)
			continue
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// GeneratePlan sends prof to the model, stores the resulting plan and
// reseeds the advisor with it. A failed generation leaves the previous plan
// in place.
func (a *App) GeneratePlan(ctx context.Context, prof profile.Profile) (plan.Plan, error) {
	if err := prof.Validate(); err != nil {
		return plan.Plan{}, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	key, ok := a.Gate.Current()
	if !ok {
		return plan.Plan{}, ErrLocked
	}

	start := time.Now()
	result, err := a.generate(ctx, key, prof)
	a.Metrics.ObserveCall("plan", start, err)
	if err != nil {
		return plan.Plan{}, err
	}

	if err := a.savePlan(prof, result); err != nil {
		return plan.Plan{}, err
	}

	a.mu.Lock()
	a.current = &result
	a.loaded = true
	a.mu.Unlock()

	if err := a.Advisor.Sync(ctx, &result, key); err != nil {
		slog.Warn("chat session not started", "error", err)
	}
	return result, nil
}

func (a *App) generate(ctx context.Context, key string, prof profile.Profile) (plan.Plan, error) {
	m, err := a.factory(ctx, key)
	if err != nil {
		return plan.Plan{}, err
	}
	planner := gateway.NewPlanner(m, a.Config.Gemini.Model)
	planner.Search = a.Config.Gemini.Search
	return planner.GeneratePlan(ctx, prof)
}

func (a *App) savePlan(prof profile.Profile, p plan.Plan) error {
	profJSON, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	planJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	if err := a.Store.SavePlan(storage.PlanRecord{
		ID:          p.ID,
		CreatedAt:   p.GeneratedAt,
		ProfileJSON: string(profJSON),
		PlanJSON:    string(planJSON),
	}); err != nil {
		return fmt.Errorf("saving plan: %w", err)
	}
	return nil
}

// Ask sends text to the advisor, first syncing its session with the current
// plan and credential.
func (a *App) Ask(ctx context.Context, text string) (chat.Message, error) {
	if err := a.syncAdvisor(ctx); err != nil {
		return chat.Message{}, err
	}
	start := time.Now()
	msg, err := a.Advisor.Ask(ctx, text)
	return a.observeTurn(start, msg, err)
}

// AskAbout asks the follow-up question for one allocation of the current
// plan.
func (a *App) AskAbout(ctx context.Context, ticker string) (chat.Message, error) {
	p, err := a.CurrentPlan()
	if err != nil {
		return chat.Message{}, err
	}
	alloc, ok := p.FindAllocation(strings.TrimSpace(ticker))
	if !ok {
		return chat.Message{}, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}
	if err := a.syncAdvisor(ctx); err != nil {
		return chat.Message{}, err
	}
	start := time.Now()
	msg, err := a.Advisor.AskAbout(ctx, alloc)
	return a.observeTurn(start, msg, err)
}

var errChatTurn = errors.New("chat turn failed")

// observeTurn counts an apology reply as a failed model call.
func (a *App) observeTurn(start time.Time, msg chat.Message, err error) (chat.Message, error) {
	if err != nil {
		return chat.Message{}, err
	}
	var turnErr error
	if msg.Text == chat.Apology {
		turnErr = errChatTurn
	}
	a.Metrics.ObserveCall("chat", start, turnErr)
	return msg, nil
}

func (a *App) syncAdvisor(ctx context.Context) error {
	key, ok := a.Gate.Current()
	if !ok {
		return ErrLocked
	}
	p, err := a.CurrentPlan()
	if err != nil {
		return err
	}
	return a.Advisor.Sync(ctx, &p, key)
}

// Reset clears the credential, the plan and the chat history.
func (a *App) Reset() error {
	return a.Gate.Reset()
}

func (a *App) clearPlan() error {
	a.mu.Lock()
	a.current = nil
	a.loaded = true
	a.mu.Unlock()
	return a.Store.ClearPlans()
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.ownsStore && a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
