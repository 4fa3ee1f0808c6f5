// Package entitlement decides which snippets are usable for a given tier.
//
// Recompute is the single source of truth for Snippet.Locked: every mutation
// of the snippet set or the tier runs it before the result is persisted.
package entitlement

import (
	"sort"
	"strings"

	"github.com/example/clipswift/internal/domain/snippet"
)

// Tier is the user's entitlement level.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// FreeSlots is the number of user-created snippets a free tier keeps active.
const FreeSlots = 2

// ParseTier maps a persisted value onto a Tier. Older releases stored the
// paid tier as "premium"; anything unrecognised is free.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TierPaid), "premium":
		return TierPaid
	}
	return TierFree
}

func (t Tier) String() string { return string(t) }

// IsPaid reports whether t unlocks every snippet.
func (t Tier) IsPaid() bool { return t == TierPaid }

// Recompute returns a copy of snippets with Locked recomputed for tier.
//
// Free tier: among the user-created snippets ordered by creation time, only
// the last FreeSlots are unlocked. Paid tier: nothing is locked. Built-ins are
// never locked. The output keeps the input order; the locked partition only
// depends on the set of snippets, not on their order.
func Recompute(snippets []snippet.Snippet, tier Tier) []snippet.Snippet {
	out := snippet.Clone(snippets)
	if out == nil {
		return []snippet.Snippet{}
	}

	user := make([]int, 0, len(out))
	for i := range out {
		if out[i].IsBuiltIn {
			out[i].Locked = false
			continue
		}
		user = append(user, i)
	}

	if tier.IsPaid() {
		for _, i := range user {
			out[i].Locked = false
		}
		return out
	}

	sort.SliceStable(user, func(a, b int) bool {
		return createdBefore(out[user[a]], out[user[b]])
	})

	cutoff := len(user) - FreeSlots
	for rank, i := range user {
		out[i].Locked = rank < cutoff
	}
	return out
}

// createdBefore orders by creation time, then by id so equal timestamps still
// give one deterministic ranking.
func createdBefore(a, b snippet.Snippet) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// UserCount returns the number of non built-in snippets.
func UserCount(snippets []snippet.Snippet) int {
	n := 0
	for _, s := range snippets {
		if !s.IsBuiltIn {
			n++
		}
	}
	return n
}

// CanCreate reports whether tier allows one more user snippet. The free tier
// blocks creation outright once FreeSlots user snippets exist.
func CanCreate(snippets []snippet.Snippet, tier Tier) bool {
	return tier.IsPaid() || UserCount(snippets) < FreeSlots
}

// Usable reports whether s may be expanded.
func Usable(s snippet.Snippet) bool {
	return s.IsBuiltIn || !s.Locked
}
