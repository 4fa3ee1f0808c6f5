package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys of the persisted extension state.
const (
	KeySnippets         = "snippets"
	KeyTier             = "tier"
	KeyTheme            = "theme"
	KeyPendingCheckout  = "pendingCheckout"
	KeyEntitlementToken = "entitlementToken"
)

// StateStore is the persisted key-value state shared by the editing surface
// and its observers. Values are JSON documents.
//
// Set writes all entries at once so a snippet list and the tier it was
// computed for are never observed apart.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Watcher is implemented by stores that can report changes made by another
// process.
type Watcher interface {
	// Watch calls onChange with the changed keys until ctx is done.
	Watch(ctx context.Context, onChange func(keys []string)) error
}

// GetJSON loads key into dst. It reports false when the key is absent.
func GetJSON(ctx context.Context, s StateStore, key string, dst any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Entries builds the argument of Set from Go values.
func Entries(values map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(values))
	for k, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = data
	}
	return out, nil
}

// SetJSON encodes values and writes them in one Set call.
func SetJSON(ctx context.Context, s StateStore, values map[string]any) error {
	entries, err := Entries(values)
	if err != nil {
		return err
	}
	return s.Set(ctx, entries)
}
