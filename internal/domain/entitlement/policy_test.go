package entitlement

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func userSnippet(id string, minute int) snippet.Snippet {
	return snippet.Snippet{
		ID:        id,
		Trigger:   "t" + id,
		Content:   "content " + id,
		Category:  snippet.CategoryMessages,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func builtIn(id string) snippet.Snippet {
	return snippet.Snippet{ID: id, Trigger: ":" + id, Content: id, IsBuiltIn: true}
}

func lockedSet(snippets []snippet.Snippet) map[string]bool {
	out := make(map[string]bool, len(snippets))
	for _, s := range snippets {
		out[s.ID] = s.Locked
	}
	return out
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"free", TierFree},
		{"paid", TierPaid},
		{"premium", TierPaid},
		{"PAID", TierPaid},
		{"", TierFree},
		{"gold", TierFree},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTier(tt.in))
		})
	}
}

// ============================================
// Recompute Tests
// ============================================

func TestRecompute_Free_KeepsTwoMostRecent(t *testing.T) {
	snippets := []snippet.Snippet{
		userSnippet("a", 1),
		builtIn("welcome"),
		userSnippet("b", 2),
		userSnippet("c", 3),
		userSnippet("d", 4),
	}

	out := Recompute(snippets, TierFree)

	assert.Equal(t, map[string]bool{
		"a": true, "b": true, "c": false, "d": false, "welcome": false,
	}, lockedSet(out))
}

func TestRecompute_Free_FewerThanSlots(t *testing.T) {
	out := Recompute([]snippet.Snippet{userSnippet("a", 1)}, TierFree)

	require.Len(t, out, 1)
	assert.False(t, out[0].Locked)
}

func TestRecompute_Paid_UnlocksAll(t *testing.T) {
	snippets := []snippet.Snippet{userSnippet("a", 1), userSnippet("b", 2), userSnippet("c", 3)}
	for i := range snippets {
		snippets[i].Locked = true
	}

	out := Recompute(snippets, TierPaid)

	for _, s := range out {
		assert.False(t, s.Locked, s.ID)
	}
}

func TestRecompute_BuiltInNeverLocked(t *testing.T) {
	b := builtIn("welcome")
	b.Locked = true

	out := Recompute([]snippet.Snippet{b, userSnippet("a", 1)}, TierFree)

	assert.False(t, out[0].Locked)
}

func TestRecompute_DoesNotMutateInput(t *testing.T) {
	snippets := []snippet.Snippet{userSnippet("a", 1), userSnippet("b", 2), userSnippet("c", 3)}

	_ = Recompute(snippets, TierFree)

	for _, s := range snippets {
		assert.False(t, s.Locked)
	}
}

func TestRecompute_KeepsInputOrder(t *testing.T) {
	snippets := []snippet.Snippet{userSnippet("c", 3), builtIn("x"), userSnippet("a", 1)}

	out := Recompute(snippets, TierFree)

	assert.Equal(t, []string{"c", "x", "a"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestRecompute_Empty(t *testing.T) {
	assert.Empty(t, Recompute(nil, TierFree))
	assert.NotNil(t, Recompute(nil, TierPaid))
}

func TestRecompute_EqualTimestamps_Deterministic(t *testing.T) {
	snippets := []snippet.Snippet{userSnippet("b", 1), userSnippet("a", 1), userSnippet("c", 1)}

	out := Recompute(snippets, TierFree)

	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": false}, lockedSet(out))
}

func TestRecompute_Idempotent(t *testing.T) {
	snippets := []snippet.Snippet{
		userSnippet("a", 5), userSnippet("b", 2), builtIn("x"), userSnippet("c", 9), userSnippet("d", 1),
	}

	for _, tier := range []Tier{TierFree, TierPaid} {
		once := Recompute(snippets, tier)
		twice := Recompute(once, tier)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("tier %s: recompute is not idempotent (-once +twice):\n%s", tier, diff)
		}
	}
}

func TestRecompute_OrderIndependent(t *testing.T) {
	snippets := make([]snippet.Snippet, 0, 8)
	for i := 0; i < 7; i++ {
		snippets = append(snippets, userSnippet(fmt.Sprintf("u%d", i), i))
	}
	snippets = append(snippets, builtIn("x"))

	want := lockedSet(Recompute(snippets, TierFree))
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 20; i++ {
		shuffled := snippet.Clone(snippets)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := lockedSet(Recompute(shuffled, TierFree))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("locked partition depends on order (-want +got):\n%s", diff)
		}
	}
}

func TestRecompute_Free_ExactlyMinTwoUnlocked(t *testing.T) {
	for n := 0; n <= 6; n++ {
		snippets := make([]snippet.Snippet, 0, n)
		for i := 0; i < n; i++ {
			snippets = append(snippets, userSnippet(fmt.Sprintf("u%d", i), i))
		}

		out := Recompute(snippets, TierFree)

		unlocked := 0
		for _, s := range out {
			if !s.Locked {
				unlocked++
			}
		}
		assert.Equal(t, min(FreeSlots, n), unlocked, "n=%d", n)
		if n >= 2 {
			assert.False(t, lockedSet(out)[fmt.Sprintf("u%d", n-1)])
			assert.False(t, lockedSet(out)[fmt.Sprintf("u%d", n-2)])
		}
	}
}

func TestRecompute_DeletePromotesNextOldest(t *testing.T) {
	snippets := Recompute([]snippet.Snippet{
		userSnippet("a", 1), userSnippet("b", 2), userSnippet("c", 3),
	}, TierFree)
	require.True(t, lockedSet(snippets)["a"])

	// drop b, the older of the two unlocked snippets
	remaining := []snippet.Snippet{snippets[0], snippets[2]}
	out := Recompute(remaining, TierFree)

	assert.Equal(t, map[string]bool{"a": false, "c": false}, lockedSet(out))
}

func TestRecompute_DowngradeScenario(t *testing.T) {
	a, b, c := userSnippet("a", 1), userSnippet("b", 2), userSnippet("c", 3)

	paid := Recompute([]snippet.Snippet{a, b, c}, TierPaid)
	assert.Equal(t, map[string]bool{"a": false, "b": false, "c": false}, lockedSet(paid))

	free := Recompute(paid, TierFree)
	assert.Equal(t, map[string]bool{"a": true, "b": false, "c": false}, lockedSet(free))
}

// ============================================
// Quota Tests
// ============================================

func TestCanCreate(t *testing.T) {
	one := []snippet.Snippet{builtIn("x"), builtIn("y"), userSnippet("a", 1)}
	two := append(snippet.Clone(one), userSnippet("b", 2))

	assert.True(t, CanCreate(one, TierFree))
	assert.False(t, CanCreate(two, TierFree))
	assert.True(t, CanCreate(two, TierPaid))
	assert.Equal(t, 2, UserCount(two))
}

func TestUsable(t *testing.T) {
	assert.True(t, Usable(snippet.Snippet{IsBuiltIn: true, Locked: true}))
	assert.True(t, Usable(snippet.Snippet{}))
	assert.False(t, Usable(snippet.Snippet{Locked: true}))
}
