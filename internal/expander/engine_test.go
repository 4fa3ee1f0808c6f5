package expander

import (
	"testing"

	"github.com/example/clipswift/internal/domain/snippet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hello(locked bool) snippet.Snippet {
	return snippet.Snippet{ID: "h", Trigger: "hello", Content: "Hello there!", Locked: locked}
}

func TestExpand_ReplacesTrailingToken(t *testing.T) {
	engine := NewEngine()

	res, ok := engine.Expand("type hello", []snippet.Snippet{hello(false)})

	require.True(t, ok)
	assert.Equal(t, "type Hello there!", res.Text)
	assert.Equal(t, len([]rune("type Hello there!")), res.Cursor)
	assert.Equal(t, "h", res.Snippet.ID)
}

func TestExpand_LockedSnippetIgnored(t *testing.T) {
	engine := NewEngine()

	_, ok := engine.Expand("type hello", []snippet.Snippet{hello(true)})

	assert.False(t, ok)
}

func TestExpand_BuiltInAlwaysEligible(t *testing.T) {
	engine := NewEngine()
	b := snippet.Snippet{ID: "sample1", Trigger: ":welcome", Content: "Welcome!", IsBuiltIn: true, Locked: true}

	res, ok := engine.Expand(":welcome", []snippet.Snippet{b})

	require.True(t, ok)
	assert.Equal(t, "Welcome!", res.Text)
}

func TestExpand_Table(t *testing.T) {
	snippets := []snippet.Snippet{
		hello(false),
		{ID: "sig", Trigger: ":sig", Content: "Best,\nAnn"},
	}

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"whole input is trigger", "hello", "Hello there!", true},
		{"case sensitive", "type Hello", "", false},
		{"prefix only", "type hell", "", false},
		{"longer token", "type helloo", "", false},
		{"trailing space", "type hello ", "", false},
		{"empty", "", "", false},
		{"newline separator", "line one\nhello", "line one\nHello there!", true},
		{"tab separator", "a\t:sig", "a\tBest,\nAnn", true},
		{"preceding text untouched", "  two  spaces hello", "  two  spaces Hello there!", true},
		{"unicode prefix", "héllo wörld hello", "héllo wörld Hello there!", true},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := engine.Expand(tt.input, snippets)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, res.Text)
				assert.Equal(t, len([]rune(tt.want)), res.Cursor)
			}
		})
	}
}

func TestExpand_FirstMatchWins(t *testing.T) {
	engine := NewEngine()
	snippets := []snippet.Snippet{
		{ID: "locked", Trigger: "dup", Content: "locked", Locked: true},
		{ID: "first", Trigger: "dup", Content: "first"},
		{ID: "second", Trigger: "dup", Content: "second"},
	}

	res, ok := engine.Expand("dup", snippets)

	require.True(t, ok)
	assert.Equal(t, "first", res.Snippet.ID)
}

func TestExpand_BuiltInsCheckedFirst(t *testing.T) {
	engine := NewEngine()
	snippets := []snippet.Snippet{
		{ID: "user", Trigger: ":x", Content: "user"},
		{ID: "builtin", Trigger: ":x", Content: "builtin", IsBuiltIn: true},
	}

	res, ok := engine.Expand(":x", snippets)

	require.True(t, ok)
	assert.Equal(t, "builtin", res.Snippet.ID)
}

func TestExpand_DoesNotMutateSnippets(t *testing.T) {
	engine := NewEngine()
	snippets := []snippet.Snippet{hello(false)}

	_, _ = engine.Expand("hello", snippets)

	assert.Equal(t, hello(false), snippets[0])
}

func TestShouldCheck(t *testing.T) {
	engine := NewEngine()
	snippets := []snippet.Snippet{hello(true)}

	assert.True(t, engine.ShouldCheck("say hello", snippets))
	assert.False(t, engine.ShouldCheck("say hello ", snippets))
	assert.False(t, engine.ShouldCheck("say bye", snippets))
}
