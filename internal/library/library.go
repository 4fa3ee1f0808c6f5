// Package library is the editing surface's snippet store: the only writer of
// the snippet list and tier. Every mutation runs the entitlement policy,
// persists the result and then broadcasts it to observers, in that order.
package library

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/example/clipswift/internal/propagation"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Broadcaster pushes a snapshot to observers. Delivery failures are the
// broadcaster's problem; it reports nothing back.
type Broadcaster interface {
	Broadcast(ctx context.Context, snap propagation.Snapshot)
}

// Fields holds the optional parts of an update. Nil means unchanged.
type Fields struct {
	Trigger  *string
	Content  *string
	Category *string
}

type Library struct {
	state       store.StateStore
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string

	mu       sync.Mutex
	snippets []snippet.Snippet
	tier     entitlement.Tier
	theme    string
}

type Option func(*Library)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Library) { l.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(l *Library) { l.newID = newID }
}

func New(state store.StateStore, broadcaster Broadcaster, logger *zap.Logger, opts ...Option) *Library {
	l := &Library{
		state:       state,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		snippets:    []snippet.Snippet{},
		tier:        entitlement.TierFree,
		theme:       ThemeLight,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the persisted state. An empty list is seeded with the built-in
// samples and leftover generated samples from older releases are purged. If
// either step or the policy changed anything, the repaired state is written
// back and broadcast.
func (l *Library) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var persisted []snippet.Snippet
	if _, err := store.GetJSON(ctx, l.state, store.KeySnippets, &persisted); err != nil {
		return fmt.Errorf("load snippets: %w", err)
	}
	var tier string
	if _, err := store.GetJSON(ctx, l.state, store.KeyTier, &tier); err != nil {
		return fmt.Errorf("load tier: %w", err)
	}
	var theme string
	if _, err := store.GetJSON(ctx, l.state, store.KeyTheme, &theme); err != nil {
		return fmt.Errorf("load theme: %w", err)
	}

	kept := make([]snippet.Snippet, 0, len(persisted))
	for _, s := range persisted {
		if snippet.IsLegacy(s) {
			continue
		}
		kept = append(kept, s)
	}
	purged := len(persisted) - len(kept)

	seeded := false
	if len(kept) == 0 {
		kept = snippet.BuiltIns()
		seeded = true
	}

	t := entitlement.ParseTier(tier)
	next := entitlement.Recompute(kept, t)

	if theme == ThemeDark {
		l.theme = ThemeDark
	}

	if seeded || purged > 0 || !sameLocks(persisted, next) || string(t) != tier {
		l.logger.Info("repairing persisted state",
			zap.Bool("seeded", seeded), zap.Int("purged", purged), zap.Stringer("tier", t))
		return l.commit(ctx, next, t)
	}

	l.snippets = next
	l.tier = t
	return nil
}

// Create appends a new user snippet. On the free tier creation is refused
// once FreeSlots user snippets exist.
func (l *Library) Create(ctx context.Context, trigger, content, category string) (snippet.Snippet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := snippet.Validate(trigger, content); err != nil {
		return snippet.Snippet{}, err
	}
	trigger = strings.TrimSpace(trigger)
	if snippet.FindTrigger(l.snippets, trigger, "") >= 0 {
		return snippet.Snippet{}, fmt.Errorf("%w: %q", apperr.ErrDuplicateTrigger, trigger)
	}
	if !entitlement.CanCreate(l.snippets, l.tier) {
		return snippet.Snippet{}, fmt.Errorf("%w: upgrade to add more than %d snippets", apperr.ErrQuotaExceeded, entitlement.FreeSlots)
	}

	now := l.nextCreatedAt()
	s := snippet.Snippet{
		ID:        l.newID(),
		Trigger:   trigger,
		Content:   content,
		Category:  snippet.NormalizeCategory(category),
		CreatedAt: now,
		UpdatedAt: now,
	}

	next := append(snippet.Clone(l.snippets), s)
	if err := l.commit(ctx, entitlement.Recompute(next, l.tier), l.tier); err != nil {
		return snippet.Snippet{}, err
	}
	return l.snippets[len(l.snippets)-1], nil
}

// AddGenerated stores generated content as an AI Prompts snippet through the
// normal create path.
func (l *Library) AddGenerated(ctx context.Context, trigger, content string) (snippet.Snippet, error) {
	return l.Create(ctx, trigger, content, snippet.CategoryAIPrompts)
}

// Update changes the given fields in place. The creation rank never moves.
func (l *Library) Update(ctx context.Context, id string, f Fields) (snippet.Snippet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := snippet.IndexOf(l.snippets, id)
	if i < 0 {
		return snippet.Snippet{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	if l.snippets[i].IsBuiltIn {
		return snippet.Snippet{}, fmt.Errorf("%w: %s", apperr.ErrImmutableRecord, id)
	}

	s := l.snippets[i]
	if f.Trigger != nil {
		s.Trigger = strings.TrimSpace(*f.Trigger)
	}
	if f.Content != nil {
		s.Content = *f.Content
	}
	if f.Category != nil {
		s.Category = snippet.NormalizeCategory(*f.Category)
	}
	if err := snippet.Validate(s.Trigger, s.Content); err != nil {
		return snippet.Snippet{}, err
	}
	if snippet.FindTrigger(l.snippets, s.Trigger, id) >= 0 {
		return snippet.Snippet{}, fmt.Errorf("%w: %q", apperr.ErrDuplicateTrigger, s.Trigger)
	}
	s.UpdatedAt = l.now()

	next := snippet.Clone(l.snippets)
	next[i] = s
	if err := l.commit(ctx, entitlement.Recompute(next, l.tier), l.tier); err != nil {
		return snippet.Snippet{}, err
	}
	return l.snippets[i], nil
}

// Delete removes a user snippet. On the free tier this can unlock the next
// most recent one.
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := snippet.IndexOf(l.snippets, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	if l.snippets[i].IsBuiltIn {
		return fmt.Errorf("%w: %s", apperr.ErrImmutableRecord, id)
	}

	next := make([]snippet.Snippet, 0, len(l.snippets)-1)
	next = append(next, l.snippets[:i]...)
	next = append(next, l.snippets[i+1:]...)
	return l.commit(ctx, entitlement.Recompute(next, l.tier), l.tier)
}

// List returns the snippets passing f in creation order.
func (l *Library) List(f snippet.Filter) []snippet.Snippet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return f.Apply(l.snippets)
}

// Get returns the snippet with id.
func (l *Library) Get(id string) (snippet.Snippet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := snippet.IndexOf(l.snippets, id)
	if i < 0 {
		return snippet.Snippet{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	return l.snippets[i], nil
}

// FindByTrigger looks a snippet up by its trigger, case-insensitively.
func (l *Library) FindByTrigger(trigger string) (snippet.Snippet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := snippet.FindTrigger(l.snippets, trigger, "")
	if i < 0 {
		return snippet.Snippet{}, fmt.Errorf("%w: trigger %q", apperr.ErrNotFound, trigger)
	}
	return l.snippets[i], nil
}

func (l *Library) Tier() entitlement.Tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier
}

// SetTier switches the tier and applies its policy to the whole list.
func (l *Library) SetTier(ctx context.Context, tier entitlement.Tier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tier = entitlement.ParseTier(string(tier))
	l.logger.Info("tier change", zap.Stringer("from", l.tier), zap.Stringer("to", tier))
	return l.commit(ctx, entitlement.Recompute(l.snippets, tier), tier)
}

// Snapshot returns an independent copy of the current state.
func (l *Library) Snapshot() propagation.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return propagation.Snapshot{Snippets: l.snippets, Tier: l.tier}.Clone()
}

func (l *Library) Theme() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.theme
}

func (l *Library) SetTheme(ctx context.Context, theme string) error {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme != ThemeLight && theme != ThemeDark {
		return fmt.Errorf("%w: theme must be %s or %s", apperr.ErrValidation, ThemeLight, ThemeDark)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := store.SetJSON(ctx, l.state, map[string]any{store.KeyTheme: theme}); err != nil {
		return fmt.Errorf("persist theme: %w", err)
	}
	l.theme = theme
	return nil
}

// commit persists snippets and tier together, installs them and broadcasts.
// On a persist failure the in-memory state is left untouched. Callers hold
// l.mu.
func (l *Library) commit(ctx context.Context, snippets []snippet.Snippet, tier entitlement.Tier) error {
	err := store.SetJSON(ctx, l.state, map[string]any{
		store.KeySnippets: snippets,
		store.KeyTier:     tier,
	})
	if err != nil {
		return fmt.Errorf("persist snippets: %w", err)
	}

	l.snippets = snippets
	l.tier = tier
	if l.broadcaster != nil {
		l.broadcaster.Broadcast(ctx, propagation.Snapshot{Snippets: snippets, Tier: tier})
	}
	return nil
}

// nextCreatedAt returns a timestamp strictly after every existing snippet's
// so creation rank always follows call order.
func (l *Library) nextCreatedAt() time.Time {
	now := l.now().UTC()
	for _, s := range l.snippets {
		if !s.CreatedAt.Before(now) {
			now = s.CreatedAt.Add(time.Nanosecond)
		}
	}
	return now
}

func sameLocks(a, b []snippet.Snippet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Locked != b[i].Locked {
			return false
		}
	}
	return true
}
