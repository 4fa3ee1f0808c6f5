// Package propagation carries snippet state from the editing surface to the
// passive observers. Delivery is fire-and-forget: a lost message is repaired
// by the observer's next reload from persisted state.
package propagation

import (
	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/domain/snippet"
)

const (
	ActionUpdateSnippets = "updateSnippets"
	ActionGetSnippets    = "getSnippets"
	ActionVerifyPayment  = "verifyPayment"
)

// Snapshot is the complete state an observer needs: the snippet list with
// locked flags already computed, and the tier they were computed for.
type Snapshot struct {
	Snippets []snippet.Snippet `json:"snippets"`
	Tier     entitlement.Tier  `json:"tier"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Tier: s.Tier, Snippets: snippet.Clone(s.Snippets)}
	if out.Snippets == nil {
		out.Snippets = []snippet.Snippet{}
	}
	return out
}

// Message is the envelope exchanged between contexts.
type Message struct {
	Action    string            `json:"action"`
	Snippets  []snippet.Snippet `json:"snippets,omitempty"`
	Tier      entitlement.Tier  `json:"tier,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Result    *VerifyResult     `json:"result,omitempty"`
}

// VerifyResult answers a verifyPayment request.
type VerifyResult struct {
	Success       bool   `json:"success"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Error         string `json:"error,omitempty"`
}

// UpdateMessage wraps a snapshot for broadcast.
func UpdateMessage(s Snapshot) Message {
	c := s.Clone()
	return Message{Action: ActionUpdateSnippets, Snippets: c.Snippets, Tier: c.Tier}
}

// Snapshot extracts the state carried by an updateSnippets message.
func (m Message) Snapshot() Snapshot {
	return Snapshot{Snippets: m.Snippets, Tier: entitlement.ParseTier(string(m.Tier))}.Clone()
}
