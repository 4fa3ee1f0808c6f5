package propagation

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/example/clipswift/internal/expander"
	"github.com/example/clipswift/internal/infrastructure/store"
	"go.uber.org/zap"
)

// Loader reads the persisted snapshot.
type Loader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// StoreLoader reads snippets and tier straight from a StateStore. It never
// writes.
type StoreLoader struct {
	Store store.StateStore
}

func (l StoreLoader) Load(ctx context.Context) (Snapshot, error) {
	var snippets []snippet.Snippet
	if _, err := store.GetJSON(ctx, l.Store, store.KeySnippets, &snippets); err != nil {
		return Snapshot{}, err
	}
	var tier string
	if _, err := store.GetJSON(ctx, l.Store, store.KeyTier, &tier); err != nil {
		return Snapshot{}, err
	}

	t := entitlement.ParseTier(tier)
	return Snapshot{Snippets: entitlement.Recompute(snippets, t), Tier: t}, nil
}

// Observer is a passive context: it holds a read-only copy of the snippet
// state, replaces it wholesale on every update and expands text against it.
type Observer struct {
	name   string
	loader Loader
	engine *expander.Engine
	logger *zap.Logger

	mu   sync.RWMutex
	snap Snapshot
}

func NewObserver(name string, loader Loader, logger *zap.Logger) *Observer {
	return &Observer{
		name:   name,
		loader: loader,
		engine: expander.NewEngine(),
		logger: logger.With(zap.String("observer", name)),
		snap:   Snapshot{Snippets: []snippet.Snippet{}, Tier: entitlement.TierFree},
	}
}

func (o *Observer) Name() string { return o.name }

// Apply installs the state carried by an updateSnippets message. Other
// messages are ignored.
func (o *Observer) Apply(msg Message) bool {
	if msg.Action != ActionUpdateSnippets {
		return false
	}
	o.replace(msg.Snapshot())
	return true
}

// HandleKafka decodes a sync-topic record and applies it.
func (o *Observer) HandleKafka(ctx context.Context, key, value []byte) error {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("decode sync message: %w", err)
	}
	o.Apply(msg)
	return nil
}

// Reload pulls the persisted state. On failure the cached state is kept.
func (o *Observer) Reload(ctx context.Context) error {
	snap, err := o.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload %s: %w", o.name, err)
	}
	o.replace(snap)
	return nil
}

// Follow reloads whenever the watched store reports a change to the snippet
// list or the tier. It blocks until ctx is done.
func (o *Observer) Follow(ctx context.Context, w store.Watcher) error {
	return w.Watch(ctx, func(keys []string) {
		if !slices.Contains(keys, store.KeySnippets) && !slices.Contains(keys, store.KeyTier) {
			return
		}
		if err := o.Reload(ctx); err != nil {
			o.logger.Warn("reload after change", zap.Error(err))
		}
	})
}

func (o *Observer) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.Clone()
}

func (o *Observer) Expand(text string) (expander.Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.Expand(text, o.snap.Snippets)
}

func (o *Observer) ShouldCheck(text string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine.ShouldCheck(text, o.snap.Snippets)
}

func (o *Observer) replace(snap Snapshot) {
	o.mu.Lock()
	o.snap = snap
	o.mu.Unlock()
	o.logger.Debug("snapshot replaced", zap.Int("snippets", len(snap.Snippets)), zap.Stringer("tier", snap.Tier))
}
