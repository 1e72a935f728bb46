package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	GetProfileKey(key string) (string, error)
	DeleteProfileKey(key string) error
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached access to the draft profile stored in SQLite.
// The draft is what the profile form shows before a plan is generated.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// GetProfile returns the draft profile. Fields never set keep their
// Default values.
func (m *Manager) GetProfile() (Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := m.cached.Clone()
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return m.cached.Clone(), nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return p.Clone(), nil
}

// SetField parses raw for the named field and persists it. An empty raw
// value clears the field back to its default (or blank, for balances).
func (m *Manager) SetField(key, raw string) error {
	f, ok := fieldByKey(key)
	if !ok {
		return fmt.Errorf("unknown profile field %q (valid: %s)", key, strings.Join(FieldKeys(), ", "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(raw) == "" && f.kind != kText && f.kind != kList {
		if err := m.store.DeleteProfileKey(key); err != nil {
			return fmt.Errorf("clearing profile key %q: %w", key, err)
		}
		m.cached = nil
		return nil
	}

	scratch := Default()
	if err := f.apply(&scratch, raw); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := m.store.SetProfileKey(key, f.encode(scratch)); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}

	m.cached = nil
	return nil
}

// SetFields applies several fields in key order. It stops at the first
// invalid value; fields before it stay written.
func (m *Manager) SetFields(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.SetField(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Save persists every field of p, replacing the draft.
func (m *Manager) Save(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range fields {
		if f.blank != nil && f.blank(p) {
			if err := m.store.DeleteProfileKey(f.key); err != nil {
				return fmt.Errorf("clearing profile key %q: %w", f.key, err)
			}
			continue
		}
		if err := m.store.SetProfileKey(f.key, f.encode(p)); err != nil {
			return fmt.Errorf("setting profile key %q: %w", f.key, err)
		}
	}
	m.cached = nil
	return nil
}

// Reset removes every stored field so the draft returns to Default.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range fields {
		if err := m.store.DeleteProfileKey(f.key); err != nil {
			return fmt.Errorf("clearing profile key %q: %w", f.key, err)
		}
	}
	m.cached = nil
	return nil
}

type fieldKind int

const (
	kInt fieldKind = iota
	kMoney
	kBalance
	kEnum
	kList
	kText
)

type field struct {
	key    string
	kind   fieldKind
	apply  func(p *Profile, raw string) error
	encode func(p Profile) string
	blank  func(p Profile) bool
}

var fields = []field{
	{
		key: "age", kind: kInt,
		apply:  func(p *Profile, raw string) error { return parseAge(raw, &p.Age) },
		encode: func(p Profile) string { return strconv.Itoa(p.Age) },
	},
	{
		key: "retirement_age", kind: kInt,
		apply:  func(p *Profile, raw string) error { return parseAge(raw, &p.RetirementAge) },
		encode: func(p Profile) string { return strconv.Itoa(p.RetirementAge) },
	},
	{
		key: "annual_income", kind: kMoney,
		apply:  func(p *Profile, raw string) error { return parseMoney(raw, &p.AnnualIncome) },
		encode: func(p Profile) string { return p.AnnualIncome.String() },
	},
	{
		key: "cash_balance", kind: kBalance,
		apply:  func(p *Profile, raw string) error { return parseBalance(raw, &p.CashBalance) },
		encode: func(p Profile) string { return encodeBalance(p.CashBalance) },
		blank:  func(p Profile) bool { return p.CashBalance == nil },
	},
	{
		key: "brokerage_balance", kind: kBalance,
		apply:  func(p *Profile, raw string) error { return parseBalance(raw, &p.BrokerageBalance) },
		encode: func(p Profile) string { return encodeBalance(p.BrokerageBalance) },
		blank:  func(p Profile) bool { return p.BrokerageBalance == nil },
	},
	{
		key: "retirement_balance", kind: kBalance,
		apply:  func(p *Profile, raw string) error { return parseBalance(raw, &p.RetirementBalance) },
		encode: func(p Profile) string { return encodeBalance(p.RetirementBalance) },
		blank:  func(p Profile) bool { return p.RetirementBalance == nil },
	},
	{
		key: "monthly_contribution", kind: kMoney,
		apply:  func(p *Profile, raw string) error { return parseMoney(raw, &p.MonthlyContribution) },
		encode: func(p Profile) string { return p.MonthlyContribution.String() },
	},
	{
		key: "risk_tolerance", kind: kEnum,
		apply: func(p *Profile, raw string) error {
			r, err := ParseRiskTolerance(raw)
			if err != nil {
				return err
			}
			p.RiskTolerance = r
			return nil
		},
		encode: func(p Profile) string { return string(p.RiskTolerance) },
	},
	{
		key: "filing_status", kind: kEnum,
		apply: func(p *Profile, raw string) error {
			f, err := ParseFilingStatus(raw)
			if err != nil {
				return err
			}
			p.FilingStatus = f
			return nil
		},
		encode: func(p Profile) string { return string(p.FilingStatus) },
	},
	{
		key: "goals", kind: kList,
		apply:  func(p *Profile, raw string) error { return parseList(raw, &p.Goals) },
		encode: func(p Profile) string { return encodeList(p.Goals) },
	},
	{
		key: "geo_focus", kind: kList,
		apply:  func(p *Profile, raw string) error { return parseList(raw, &p.GeoFocus) },
		encode: func(p Profile) string { return encodeList(p.GeoFocus) },
	},
	{
		key: "current_portfolio", kind: kText,
		apply:  func(p *Profile, raw string) error { p.CurrentPortfolio = raw; return nil },
		encode: func(p Profile) string { return p.CurrentPortfolio },
	},
}

func fieldByKey(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// FieldKeys returns the settable profile field names in form order.
func FieldKeys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	return keys
}

// buildProfile assembles a Profile from stored key/value pairs on top of
// Default. Malformed stored values are logged and skipped.
func buildProfile(keys map[string]string) Profile {
	p := Default()
	for _, f := range fields {
		v, ok := keys[f.key]
		if !ok {
			continue
		}
		if err := f.apply(&p, v); err != nil {
			slog.Warn("malformed profile key, skipping", "key", f.key, "error", err)
		}
	}
	return p
}

func parseAge(raw string, dst *int) error {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("not a whole number: %q", raw)
	}
	if n <= 0 || n > 120 {
		return fmt.Errorf("%d out of range", n)
	}
	*dst = n
	return nil
}

// ParseAmount accepts "120000", "120,000.50" or "$1,200".
func ParseAmount(raw string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", "_", "").Replace(strings.TrimSpace(raw))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("not an amount: %q", raw)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount must not be negative: %q", raw)
	}
	return d, nil
}

func parseMoney(raw string, dst *decimal.Decimal) error {
	d, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func parseBalance(raw string, dst **decimal.Decimal) error {
	if strings.TrimSpace(raw) == "" {
		*dst = nil
		return nil
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*dst = &d
	return nil
}

func encodeBalance(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// parseList accepts a JSON array or a comma-separated list. Blank entries
// and duplicates are dropped.
func parseList(raw string, dst *[]string) error {
	raw = strings.TrimSpace(raw)
	var items []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return fmt.Errorf("malformed list: %w", err)
		}
	} else {
		items = strings.Split(raw, ",")
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	*dst = out
	return nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}
