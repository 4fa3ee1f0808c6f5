package propagation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target receives broadcasts. Deliver must honour ctx.
type Target interface {
	Name() string
	Deliver(ctx context.Context, msg Message) error
}

// TargetSource yields a changing set of targets, such as live websocket
// connections.
type TargetSource interface {
	Targets() []Target
}

// TargetFunc adapts a function to Target.
type TargetFunc struct {
	Label string
	Fn    func(ctx context.Context, msg Message) error
}

func (t TargetFunc) Name() string { return t.Label }

func (t TargetFunc) Deliver(ctx context.Context, msg Message) error { return t.Fn(ctx, msg) }

const defaultDeliveryTimeout = 2 * time.Second

// Broadcaster fans a snapshot out to every registered target. Deliveries run
// concurrently and independently; a failing target never affects another or
// the caller.
type Broadcaster struct {
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	targets []Target
	sources []TargetSource
}

func NewBroadcaster(logger *zap.Logger, timeout time.Duration) *Broadcaster {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}
	return &Broadcaster{logger: logger, timeout: timeout}
}

func (b *Broadcaster) Add(t Target) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets = append(b.targets, t)
}

func (b *Broadcaster) AddSource(s TargetSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, s)
}

// Broadcast sends snap to every target and waits until each delivery has
// finished or timed out.
func (b *Broadcaster) Broadcast(ctx context.Context, snap Snapshot) {
	msg := UpdateMessage(snap)
	targets := b.collect()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			b.deliver(ctx, t, msg)
		}(t)
	}
	wg.Wait()
}

func (b *Broadcaster) collect() []Target {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Target, 0, len(b.targets))
	out = append(out, b.targets...)
	for _, s := range b.sources {
		out = append(out, s.Targets()...)
	}
	return out
}

func (b *Broadcaster) deliver(ctx context.Context, t Target, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("delivery panicked", zap.String("target", t.Name()), zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := t.Deliver(ctx, msg); err != nil {
		// no receiver is a normal condition
		b.logger.Debug("delivery dropped", zap.String("target", t.Name()), zap.Error(err))
	}
}
