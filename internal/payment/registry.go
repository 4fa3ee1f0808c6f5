package payment

import (
	"context"
	"sync"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Record tracks one checkout session on the backend.
type Record struct {
	SessionID   string     `json:"sessionId"`
	Email       string     `json:"customerEmail"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Registry stores checkout session records.
type Registry interface {
	Create(ctx context.Context, rec Record) error
	Get(ctx context.Context, sessionID string) (Record, bool, error)
	// Complete marks the session completed, creating the record when it is
	// unknown. It reports whether this call performed the transition.
	Complete(ctx context.Context, sessionID, email string, at time.Time) (bool, error)
	SetStatus(ctx context.Context, sessionID, status string) error
}

// MemoryRegistry keeps records in process memory.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]Record)}
}

func (r *MemoryRegistry) Create(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.SessionID] = rec
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, sessionID string) (Record, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[sessionID]
	return rec, ok, nil
}

func (r *MemoryRegistry) Complete(ctx context.Context, sessionID, email string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if ok && rec.Status == StatusCompleted {
		return false, nil
	}
	if !ok {
		rec = Record{SessionID: sessionID, CreatedAt: at}
	}
	if email != "" {
		rec.Email = email
	}
	rec.Status = StatusCompleted
	rec.CompletedAt = &at
	r.records[sessionID] = rec
	return true, nil
}

func (r *MemoryRegistry) SetStatus(ctx context.Context, sessionID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok {
		rec = Record{SessionID: sessionID, CreatedAt: time.Now().UTC()}
	}
	if rec.Status == StatusCompleted {
		return nil
	}
	rec.Status = status
	r.records[sessionID] = rec
	return nil
}
