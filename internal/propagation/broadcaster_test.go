package propagation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type recorder struct {
	mu   sync.Mutex
	name string
	got  []Message
	err  error
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Deliver(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, msg)
	return r.err
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.got...)
}

type staticSource []Target

func (s staticSource) Targets() []Target { return s }

func sampleSnapshot() Snapshot {
	return Snapshot{
		Snippets: []snippet.Snippet{{ID: "1", Trigger: "hi", Content: "Hello"}},
		Tier:     entitlement.TierPaid,
	}
}

// ============================================
// Broadcast Tests
// ============================================

func TestBroadcast_ReachesEveryTarget(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroadcaster(zap.NewNop(), time.Second)
	a := &recorder{name: "a"}
	c := &recorder{name: "c"}
	b.Add(a)
	b.AddSource(staticSource{c})

	b.Broadcast(context.Background(), sampleSnapshot())

	for _, r := range []*recorder{a, c} {
		msgs := r.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, ActionUpdateSnippets, msgs[0].Action)
		assert.Equal(t, entitlement.TierPaid, msgs[0].Tier)
		assert.Equal(t, "hi", msgs[0].Snippets[0].Trigger)
	}
}

func TestBroadcast_FailuresAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroadcaster(zap.NewNop(), 50*time.Millisecond)
	failing := &recorder{name: "failing", err: errors.New("no receiver")}
	healthy := &recorder{name: "healthy"}
	b.Add(failing)
	b.Add(TargetFunc{Label: "panics", Fn: func(ctx context.Context, msg Message) error {
		panic("boom")
	}})
	b.Add(TargetFunc{Label: "slow", Fn: func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	b.Add(healthy)

	start := time.Now()
	b.Broadcast(context.Background(), sampleSnapshot())

	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, failing.messages(), 1)
	assert.Len(t, healthy.messages(), 1)
}

func TestBroadcast_NoTargets(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), 0)

	assert.NotPanics(t, func() { b.Broadcast(context.Background(), Snapshot{}) })
}

func TestBroadcast_MessageIsACopy(t *testing.T) {
	b := NewBroadcaster(zap.NewNop(), time.Second)
	r := &recorder{name: "r"}
	b.Add(r)

	snap := sampleSnapshot()
	b.Broadcast(context.Background(), snap)
	snap.Snippets[0].Content = "changed after broadcast"

	assert.Equal(t, "Hello", r.messages()[0].Snippets[0].Content)
}

// ============================================
// KafkaTarget Tests
// ============================================

type fakePublisher struct {
	key     string
	payload any
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, key string, payload any) error {
	p.key = key
	p.payload = payload
	return p.err
}

func TestKafkaTarget_Deliver(t *testing.T) {
	pub := &fakePublisher{}
	target := NewKafkaTarget(pub)

	err := target.Deliver(context.Background(), UpdateMessage(sampleSnapshot()))

	require.NoError(t, err)
	assert.Equal(t, "kafka", target.Name())
	assert.Equal(t, syncKey, pub.key)
	msg, ok := pub.payload.(Message)
	require.True(t, ok)
	assert.Equal(t, ActionUpdateSnippets, msg.Action)
}

func TestKafkaTarget_Error(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}

	err := NewKafkaTarget(pub).Deliver(context.Background(), Message{})

	assert.EqualError(t, err, "broker down")
}
