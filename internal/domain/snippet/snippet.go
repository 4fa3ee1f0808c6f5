package snippet

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/example/clipswift/internal/domain/apperr"
)

const (
	CategoryMessages  = "Messages"
	CategoryEmails    = "Emails"
	CategoryCode      = "Code"
	CategoryAIPrompts = "AI Prompts"
	CategoryOther     = "Other"

	// CategoryAll disables category filtering in List.
	CategoryAll = "all"

	DefaultCategory = CategoryMessages

	// legacyPrefix marks generated samples from older releases; they are
	// purged on load.
	legacyPrefix = "generic_"
)

// Categories lists the categories offered by the editor. The set is open:
// any other label is accepted on save.
var Categories = []string{CategoryMessages, CategoryEmails, CategoryCode, CategoryAIPrompts, CategoryOther}

// Snippet is a trigger -> content text-expansion rule.
//
// Locked is derived by the entitlement policy and is persisted only so that
// observers can use their cached copy without recomputing.
type Snippet struct {
	ID        string    `json:"id"`
	Trigger   string    `json:"trigger"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	IsBuiltIn bool      `json:"isBuiltIn"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Validate checks the user-supplied parts of a snippet.
func Validate(trigger, content string) error {
	if strings.TrimSpace(trigger) == "" {
		return fmt.Errorf("%w: trigger is required", apperr.ErrValidation)
	}
	if strings.IndexFunc(strings.TrimSpace(trigger), unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: trigger must be a single word", apperr.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is required", apperr.ErrValidation)
	}
	return nil
}

// SameTrigger reports whether two triggers collide. Collisions are
// case-insensitive even though expansion matching is not.
func SameTrigger(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FindTrigger returns the index of the first snippet whose trigger collides
// with trigger, skipping the snippet with id exceptID.
func FindTrigger(snippets []Snippet, trigger, exceptID string) int {
	for i, s := range snippets {
		if s.ID != exceptID && SameTrigger(s.Trigger, trigger) {
			return i
		}
	}
	return -1
}

// IndexOf returns the position of id in snippets, or -1.
func IndexOf(snippets []Snippet, id string) int {
	for i, s := range snippets {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// NormalizeCategory trims the label and falls back to DefaultCategory.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory
	}
	return category
}

// IsLegacy reports whether s is a leftover generated sample from an older
// release.
func IsLegacy(s Snippet) bool {
	return !s.IsBuiltIn && strings.HasPrefix(s.Trigger, legacyPrefix)
}

// Clone returns a deep copy of snippets so callers can hand out snapshots
// without sharing the backing array.
func Clone(snippets []Snippet) []Snippet {
	if snippets == nil {
		return nil
	}
	out := make([]Snippet, len(snippets))
	copy(out, snippets)
	return out
}

// Filter narrows List results. A zero Filter matches everything.
type Filter struct {
	Category   string
	SearchText string
}

// Match reports whether s passes the filter.
func (f Filter) Match(s Snippet) bool {
	if c := strings.TrimSpace(f.Category); c != "" && !strings.EqualFold(c, CategoryAll) {
		if s.Category != c {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.SearchText)); q != "" {
		return strings.Contains(strings.ToLower(s.Trigger), q) ||
			strings.Contains(strings.ToLower(s.Content), q)
	}
	return true
}

// Apply returns the snippets that pass the filter, preserving order.
func (f Filter) Apply(snippets []Snippet) []Snippet {
	out := make([]Snippet, 0, len(snippets))
	for _, s := range snippets {
		if f.Match(s) {
			out = append(out, s)
		}
	}
	return out
}
