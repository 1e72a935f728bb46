// Package chat runs the advisory conversation seeded with the current plan.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/prompt"
)

var (
	// ErrNotReady is returned by Ask before a plan and a credential are synced.
	ErrNotReady = errors.New("chat is not ready: generate a plan first")
	// ErrEmptyQuestion is returned for a blank message.
	ErrEmptyQuestion = errors.New("message is empty")
)

// State of the advisor session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateAwaiting
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateAwaiting:
		return "awaiting"
	default:
		return "uninitialized"
	}
}

// Advisor owns the chat session and the message history. The session is
// rebuilt whenever the plan or credential changes; the history survives.
type Advisor struct {
	factory gateway.Factory
	model   string
	search  bool
	history *HistoryStore

	mu         sync.Mutex
	session    gateway.Session
	planID     string
	credential string
	pending    int
	messages   []Message
}

// NewAdvisor creates an Advisor and rehydrates its history.
func NewAdvisor(factory gateway.Factory, model string, search bool, history *HistoryStore) *Advisor {
	return &Advisor{
		factory:  factory,
		model:    model,
		search:   search,
		history:  history,
		messages: history.Load(),
	}
}

// State reports the session state.
func (a *Advisor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *Advisor) stateLocked() State {
	switch {
	case a.session == nil:
		return StateUninitialized
	case a.pending > 0:
		return StateAwaiting
	default:
		return StateReady
	}
}

// Messages returns a copy of the conversation.
func (a *Advisor) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Sync brings the session in line with the current plan and credential. A
// nil plan or an empty credential drops the session. A changed plan or
// credential starts a new session carrying the existing history.
func (a *Advisor) Sync(ctx context.Context, p *plan.Plan, credential string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p == nil || credential == "" {
		a.session = nil
		a.planID, a.credential = "", ""
		return nil
	}
	if a.session != nil && a.planID == p.ID && a.credential == credential {
		return nil
	}

	m, err := a.factory(ctx, credential)
	if err != nil {
		a.session = nil
		return fmt.Errorf("creating chat model: %w", err)
	}
	sess, err := m.StartChat(ctx, gateway.ChatRequest{
		Model:             a.model,
		SystemInstruction: prompt.ChatSystemInstruction(*p),
		History:           replayTurns(a.messages),
		Search:            a.search,
	})
	if err != nil {
		a.session = nil
		return fmt.Errorf("starting chat: %w", err)
	}

	a.session = sess
	a.planID = p.ID
	a.credential = credential
	slog.Debug("chat session started", "plan_id", p.ID, "history", len(a.messages))
	return nil
}

// Ask sends text to the advisor and returns the reply appended to the
// history. A failed turn is not an error: the reply is the fixed Apology and
// the session stays usable. Concurrent calls are not rejected.
func (a *Advisor) Ask(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyQuestion
	}

	a.mu.Lock()
	sess := a.session
	if sess == nil {
		a.mu.Unlock()
		return Message{}, ErrNotReady
	}
	a.appendLocked(Message{Role: gateway.RoleUser, Text: text})
	a.pending++
	a.mu.Unlock()

	resp, err := sess.Send(ctx, text)

	reply := Message{Role: gateway.RoleModel, Text: resp.Text, Sources: resp.Sources}
	switch {
	case err != nil:
		slog.Warn("chat turn failed", "error", err)
		reply = Message{Role: gateway.RoleModel, Text: Apology}
	case strings.TrimSpace(resp.Text) == "":
		slog.Warn("chat turn returned no text")
		reply = Message{Role: gateway.RoleModel, Text: Apology}
	}

	a.mu.Lock()
	a.pending--
	a.appendLocked(reply)
	a.mu.Unlock()
	return reply, nil
}

// AskAbout asks the canned follow-up question for one allocation.
func (a *Advisor) AskAbout(ctx context.Context, alloc plan.Allocation) (Message, error) {
	return a.Ask(ctx, prompt.AllocationQuestion(alloc))
}

// Clear drops the session and resets the history to the greeting.
func (a *Advisor) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = nil
	a.planID, a.credential = "", ""
	a.messages = DefaultHistory()
	return a.history.Clear()
}

// appendLocked adds msg and persists the whole history. A persistence
// failure is logged; the in-memory conversation continues.
func (a *Advisor) appendLocked(msg Message) {
	a.messages = append(a.messages, msg)
	if err := a.history.Save(a.messages); err != nil {
		slog.Warn("persisting chat history", "error", err)
	}
}

// replayTurns converts history into turns for a new session. Canned
// messages never reached the model and are left out, as is any model turn
// before the first user turn.
func replayTurns(msgs []Message) []gateway.Turn {
	var turns []gateway.Turn
	for _, m := range msgs {
		if m.Role == gateway.RoleModel && (m.Text == Greeting || m.Text == Apology) {
			continue
		}
		if len(turns) == 0 && m.Role != gateway.RoleUser {
			continue
		}
		turns = append(turns, gateway.Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}
