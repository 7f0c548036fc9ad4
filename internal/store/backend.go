// Package store persists larder's local state: the cart snapshot, the
// session bundle, the profile image and the cart backup. Each lives under
// its own key so a corrupt cart cannot take the session down with it.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when the key holds no live value.
var ErrNotFound = errors.New("store: key not found")

// Keys of the durable slots.
const (
	KeyCart         = "cart"
	KeySession      = "session"
	KeyProfileImage = "profile_image"
	KeyBackup       = "cart_backup"
)

// Backend is a durable key-value slot store.
type Backend interface {
	// Get returns the value for key, or ErrNotFound when missing or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value for key. A ttl <= 0 keeps the value until it is
	// overwritten; backends without native expiry may ignore ttl.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}
