package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/pkg/domain"
)

type backupPayload struct {
	Items     []domain.CartLine `json:"items"`
	Timestamp int64             `json:"timestamp"`
	User      string            `json:"user,omitempty"`
}

// Backup holds a short-lived copy of a cart that is about to be replaced.
type Backup struct {
	backend Backend
	ttl     time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewBackup returns a backup slot whose snapshots expire after ttl.
func NewBackup(b Backend, ttl time.Duration, log zerolog.Logger) *Backup {
	return &Backup{
		backend: b,
		ttl:     ttl,
		log:     log.With().Str("component", "store.backup").Logger(),
		now:     time.Now,
	}
}

// Save records lines for userID. An empty cart is not backed up.
func (b *Backup) Save(ctx context.Context, lines []domain.CartLine, userID string) error {
	if len(lines) == 0 {
		return nil
	}
	data, err := json.Marshal(backupPayload{
		Items:     lines,
		Timestamp: b.now().UnixMilli(),
		User:      userID,
	})
	if err != nil {
		return fmt.Errorf("store: encode backup: %w", err)
	}
	return b.backend.Set(ctx, KeyBackup, data, b.ttl)
}

// Restore returns the backed-up lines if a backup younger than the ttl
// exists. The age is checked against the stamped timestamp so backends
// without native expiry behave the same.
func (b *Backup) Restore(ctx context.Context) ([]domain.CartLine, bool) {
	data, err := b.backend.Get(ctx, KeyBackup)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			b.log.Warn().Err(err).Msg("read cart backup")
		}
		return nil, false
	}
	var p backupPayload
	if err := json.Unmarshal(data, &p); err != nil {
		b.log.Warn().Err(err).Msg("discard corrupt cart backup")
		return nil, false
	}
	if b.ttl > 0 && b.now().Sub(time.UnixMilli(p.Timestamp)) > b.ttl {
		return nil, false
	}
	lines := sanitize(p.Items, b.log)
	if len(lines) == 0 {
		return nil, false
	}
	return lines, true
}

// Discard deletes the backup.
func (b *Backup) Discard(ctx context.Context) error {
	return b.backend.Delete(ctx, KeyBackup)
}
