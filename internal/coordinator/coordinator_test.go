package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/domain/checkout"
	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/example/clipswift/internal/propagation"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSnapshots struct{ snap propagation.Snapshot }

func (s staticSnapshots) Snapshot() propagation.Snapshot { return s.snap.Clone() }

type slowVerifier struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	result  checkout.Verification
	err     error
}

func (v *slowVerifier) Verify(ctx context.Context, sessionID string) (checkout.Verification, error) {
	v.calls.Add(1)
	if v.started != nil {
		select {
		case v.started <- struct{}{}:
		default:
		}
	}
	if v.release != nil {
		select {
		case <-v.release:
		case <-ctx.Done():
			return checkout.Verification{}, ctx.Err()
		}
	}
	return v.result, v.err
}

func newCoordinator(v checkout.Verifier) *Coordinator {
	snap := propagation.Snapshot{
		Snippets: []snippet.Snippet{{ID: "1", Trigger: "hi", Content: "Hello"}},
		Tier:     entitlement.TierFree,
	}
	return New(staticSnapshots{snap}, v, zap.NewNop())
}

func TestVerify_CollapsesConcurrentRequests(t *testing.T) {
	v := &slowVerifier{release: make(chan struct{}), result: checkout.Verification{PaymentStatus: "completed"}}
	c := newCoordinator(v)

	var wg sync.WaitGroup
	results := make([]checkout.Verification, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Verify(context.Background(), "cs_1")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	// let the callers pile up behind the first request
	time.Sleep(50 * time.Millisecond)
	close(v.release)
	wg.Wait()

	assert.Equal(t, int32(1), v.calls.Load())
	for _, r := range results {
		assert.True(t, r.Paid())
	}
}

func TestVerify_CancelledCallerDoesNotFailOthers(t *testing.T) {
	v := &slowVerifier{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
		result:  checkout.Verification{PaymentStatus: "completed"},
	}
	c := newCoordinator(v)

	ctxA, cancelA := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Verify(ctxA, "cs_1")
		firstErr <- err
	}()
	<-v.started

	type result struct {
		v   checkout.Verification
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := c.Verify(context.Background(), "cs_1")
		second <- result{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(v.release)
	got := <-second
	require.NoError(t, got.err)
	assert.True(t, got.v.Paid())
	assert.Equal(t, int32(1), v.calls.Load())
}

func TestVerifyPayment(t *testing.T) {
	c := newCoordinator(&slowVerifier{result: checkout.Verification{PaymentStatus: "pending"}})

	res := c.VerifyPayment(context.Background(), "cs_1")
	assert.False(t, res.Success)
	assert.Equal(t, "pending", res.PaymentStatus)

	assert.NotEmpty(t, c.VerifyPayment(context.Background(), "").Error)
}

// ============================================
// HTTP Tests
// ============================================

func TestHandleSnippets(t *testing.T) {
	c := newCoordinator(&slowVerifier{})
	rec := httptest.NewRecorder()

	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snippets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap propagation.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, entitlement.TierFree, snap.Tier)
	assert.Len(t, snap.Snippets, 1)
}

func TestHandleVerify(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		verifier   *slowVerifier
		wantStatus int
		wantOK     bool
	}{
		{"paid", `{"sessionId":"cs_1"}`, &slowVerifier{result: checkout.Verification{PaymentStatus: "completed"}}, http.StatusOK, true},
		{"pending", `{"sessionId":"cs_1"}`, &slowVerifier{result: checkout.Verification{PaymentStatus: "pending"}}, http.StatusOK, false},
		{"missing id", `{}`, &slowVerifier{}, http.StatusBadRequest, false},
		{"bad json", `{`, &slowVerifier{}, http.StatusBadRequest, false},
		{"backend down", `{"sessionId":"cs_1"}`, &slowVerifier{err: errors.Join(apperr.ErrNetwork, errors.New("refused"))}, http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoordinator(tt.verifier)
			rec := httptest.NewRecorder()

			c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify-payment", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var res propagation.VerifyResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.Equal(t, tt.wantOK, res.Success)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	c := newCoordinator(&slowVerifier{})
	rec := httptest.NewRecorder()

	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OK"`)
}

func TestObserversEndpoint(t *testing.T) {
	c := newCoordinator(&slowVerifier{})
	srv := httptest.NewServer(c.Router())
	defer srv.Close()
	defer c.Hub().Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/observers", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg propagation.Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, propagation.ActionUpdateSnippets, msg.Action)
	assert.Equal(t, 1, c.Hub().Len())
}
