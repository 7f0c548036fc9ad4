package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Slot is a single string value under its own key, such as the profile image.
type Slot struct {
	backend Backend
	key     string
}

// NewSlot returns the slot stored under key.
func NewSlot(b Backend, key string) *Slot {
	return &Slot{backend: b, key: key}
}

// Get returns the value, or "" when unset or unreadable.
func (s *Slot) Get(ctx context.Context) string {
	data, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return ""
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return v
}

// Set stores v. An empty v clears the slot.
func (s *Slot) Set(ctx context.Context, v string) error {
	if v == "" {
		return s.Clear(ctx)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", s.key, err)
	}
	return s.backend.Set(ctx, s.key, data, 0)
}

func (s *Slot) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
