package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kalambet/finplan/internal/gateway"
	"github.com/kalambet/finplan/internal/plan"
	"github.com/kalambet/finplan/internal/storage"
)

// HistoryKey is the key/value item holding the persisted conversation.
const HistoryKey = "finplan.chat_history"

const (
	// Greeting opens every fresh conversation.
	Greeting = "Hi! I'm your financial advisor. Ask me anything about your plan, or pick an allocation to dig into it."
	// Apology replaces a model reply when a chat turn fails.
	Apology = "Sorry, I couldn't get an answer to that right now. Please try again."
)

// Message is one chat bubble.
type Message struct {
	Role    string        `json:"role"`
	Text    string        `json:"text"`
	Sources []plan.Source `json:"sources,omitempty"`
}

// ItemStore is the key/value persistence the history needs.
type ItemStore interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// HistoryStore persists the conversation as a JSON list.
type HistoryStore struct {
	store ItemStore
}

func NewHistoryStore(store ItemStore) *HistoryStore {
	return &HistoryStore{store: store}
}

// DefaultHistory is the conversation a new or unreadable history starts from.
func DefaultHistory() []Message {
	return []Message{{Role: gateway.RoleModel, Text: Greeting}}
}

// Load rehydrates the stored conversation. Missing, empty or unreadable
// history yields DefaultHistory; unreadable state is discarded.
func (h *HistoryStore) Load() []Message {
	raw, err := h.store.GetItem(HistoryKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("reading chat history", "error", err)
		}
		return DefaultHistory()
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		slog.Warn("discarding unreadable chat history", "error", err)
		return DefaultHistory()
	}
	if len(msgs) == 0 {
		return DefaultHistory()
	}
	return msgs
}

func (h *HistoryStore) Save(msgs []Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encoding chat history: %w", err)
	}
	if err := h.store.SetItem(HistoryKey, string(data)); err != nil {
		return fmt.Errorf("saving chat history: %w", err)
	}
	return nil
}

func (h *HistoryStore) Clear() error {
	return h.store.RemoveItem(HistoryKey)
}
