// Package credential holds the user's Gemini API key behind a verification
// gate: a key is stored only after one minimal generation succeeds with it.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/storage"
)

// StorageKey is the key/value item holding the verified credential.
const StorageKey = "finplan.credential"

var (
	// ErrEmpty is returned for a blank candidate. No network call is made.
	ErrEmpty = errors.New("API key is empty")
	// ErrInvalid is returned when the service rejects the candidate.
	ErrInvalid = errors.New("API key could not be verified")
)

// Store is the key/value persistence the gate needs.
type Store interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// Verifier checks a candidate key against the external service.
type Verifier func(ctx context.Context, key string) error

// PingVerifier verifies a key by building a Model with factory and asking it
// for one minimal reply.
func PingVerifier(factory gateway.Factory, model string) Verifier {
	return func(ctx context.Context, key string) error {
		m, err := factory(ctx, key)
		if err != nil {
			return err
		}
		return gateway.Ping(ctx, m, model)
	}
}

// Gate decides whether the rest of the application is reachable.
type Gate struct {
	store  Store
	verify Verifier

	mu      sync.Mutex
	onReset []func() error
}

// NewGate creates a Gate persisting into store.
func NewGate(store Store, verify Verifier) *Gate {
	return &Gate{store: store, verify: verify}
}

// OnReset registers fn to run when the credential is reset. Hooks run in
// registration order.
func (g *Gate) OnReset(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReset = append(g.onReset, fn)
}

// Verify trims candidate, verifies it and stores it on success. The error is
// ErrEmpty or wraps ErrInvalid together with the service's cause.
func (g *Gate) Verify(ctx context.Context, candidate string) error {
	key := strings.TrimSpace(candidate)
	if key == "" {
		return ErrEmpty
	}

	if err := g.verify(ctx, key); err != nil {
		slog.Warn("credential rejected", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := g.store.SetItem(StorageKey, key); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	slog.Info("credential verified and stored")
	return nil
}

// Current returns the stored credential. The second result is false while
// the gate is closed.
func (g *Gate) Current() (string, bool) {
	key, err := g.store.GetItem(StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("reading credential", "error", err)
		}
		return "", false
	}
	if key == "" {
		return "", false
	}
	return key, true
}

// Reset clears the credential and runs the reset hooks, which drop the
// current plan and chat history. Every hook runs even if an earlier one
// fails; the errors are joined.
func (g *Gate) Reset() error {
	var errs []error
	if err := g.store.RemoveItem(StorageKey); err != nil {
		errs = append(errs, fmt.Errorf("removing credential: %w", err))
	}

	g.mu.Lock()
	hooks := append([]func() error(nil), g.onReset...)
	g.mu.Unlock()

	for _, fn := range hooks {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
