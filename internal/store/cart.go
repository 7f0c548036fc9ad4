package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/pkg/domain"
)

// CartSnapshotVersion is the layout written by Save. Snapshots with any other
// version load as an empty cart; a bare JSON array is read as version 0.
const CartSnapshotVersion = 1

type cartSnapshot struct {
	Version  int               `json:"version"`
	Instance string            `json:"instance,omitempty"`
	SavedAt  time.Time         `json:"saved_at"`
	Lines    []domain.CartLine `json:"lines"`
}

// Cart persists the cart line array under KeyCart.
type Cart struct {
	backend  Backend
	log      zerolog.Logger
	instance string
	now      func() time.Time
}

// NewCart returns a cart snapshot adapter over b.
func NewCart(b Backend, log zerolog.Logger) *Cart {
	return &Cart{
		backend:  b,
		log:      log.With().Str("component", "store.cart").Logger(),
		instance: uuid.NewString(),
		now:      time.Now,
	}
}

// Load returns the persisted lines. It never fails: a missing key, an
// unreadable slot or a corrupt snapshot all yield an empty cart.
func (c *Cart) Load(ctx context.Context) []domain.CartLine {
	data, err := c.backend.Get(ctx, KeyCart)
	if errors.Is(err, ErrNotFound) {
		return []domain.CartLine{}
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("read cart snapshot")
		return []domain.CartLine{}
	}
	lines, err := decodeCart(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("discard corrupt cart snapshot")
		return []domain.CartLine{}
	}
	return sanitize(lines, c.log)
}

// Save writes lines. Failures are logged and swallowed; the in-memory cart
// stays usable when the slot is not.
func (c *Cart) Save(ctx context.Context, lines []domain.CartLine) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(cartSnapshot{
		Version:  CartSnapshotVersion,
		Instance: c.instance,
		SavedAt:  c.now().UTC(),
		Lines:    lines,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("encode cart snapshot")
		return
	}
	if err := c.backend.Set(ctx, KeyCart, data, 0); err != nil {
		c.log.Warn().Err(err).Int("lines", len(lines)).Msg("write cart snapshot")
	}
}

var errUnknownVersion = errors.New("unknown cart snapshot version")

func decodeCart(data []byte) ([]domain.CartLine, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var lines []domain.CartLine
		if err := json.Unmarshal(trimmed, &lines); err != nil {
			return nil, err
		}
		return lines, nil
	}
	var snap cartSnapshot
	if err := json.Unmarshal(trimmed, &snap); err != nil {
		return nil, err
	}
	if snap.Version != CartSnapshotVersion {
		return nil, errUnknownVersion
	}
	return snap.Lines, nil
}

// sanitize drops lines that fail validation and folds duplicates.
func sanitize(lines []domain.CartLine, log zerolog.Logger) []domain.CartLine {
	valid := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if err := domain.Validate(l); err != nil {
			log.Debug().Err(err).Str("line", l.ID).Msg("drop invalid cart line")
			continue
		}
		valid = append(valid, l)
	}
	return domain.MergeLines(valid)
}
