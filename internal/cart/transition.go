package cart

import (
	"context"
	"fmt"

	"github.com/naveenspark/larder/pkg/domain"
)

// Attach switches to Synced for userID. The server cart replaces the local
// lines and the id mapping is rebuilt from it. A non-empty local cart that
// differs from the server's is backed up first.
//
// If the server cart cannot be fetched the engine still enters Synced with
// the local lines and an empty mapping, sets a warning and returns the error.
func (e *Engine) Attach(ctx context.Context, userID string) error {
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	local := e.copyLocked()
	e.mu.Unlock()

	server, err := e.mirror.GetCart(ctx)

	e.mu.Lock()
	if epoch != e.epoch {
		// A later Attach or Detach won.
		e.mu.Unlock()
		if err != nil {
			return fmt.Errorf("cart.Attach: %w", err)
		}
		return nil
	}
	e.mode = Synced
	e.mapping = make(map[string]string)
	e.resetQueueLocked()

	if err != nil {
		e.warning = "Couldn't load your saved cart; showing the cart on this device."
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("fetch server cart")
		e.notify()
		return fmt.Errorf("cart.Attach: %w", err)
	}

	lines := make([]domain.CartLine, 0, len(server.Items))
	for _, it := range server.Items {
		l := it.Line()
		if l.ID == "" || l.Quantity < 1 {
			continue
		}
		lines = append(lines, l)
		if _, ok := e.mapping[l.ID]; !ok {
			e.mapping[l.ID] = it.ID.String()
		}
	}
	lines = domain.MergeLines(lines)

	if e.backup != nil && len(local) > 0 && !sameLines(local, lines) {
		if err := e.backup.Save(ctx, local, userID); err != nil {
			e.log.Warn().Err(err).Msg("back up local cart")
		}
	}

	e.lines = lines
	e.warning = ""
	e.snap.Save(ctx, e.copyLocked())
	e.mu.Unlock()

	e.log.Debug().Int("lines", len(lines)).Msg("cart attached to server")
	e.notify()
	return nil
}

// Detach switches to LocalOnly. Lines are kept; the mapping and the retry
// queue are dropped, and results of calls still in flight are ignored.
func (e *Engine) Detach(context.Context) {
	e.mu.Lock()
	e.epoch++
	e.mode = LocalOnly
	e.mapping = nil
	e.warning = ""
	e.resetQueueLocked()
	e.mu.Unlock()
	e.notify()
}

// RestoreBackup merges a fresh backup into the current cart through Add and
// deletes it. It returns how many lines were merged.
func (e *Engine) RestoreBackup(ctx context.Context) (int, error) {
	if e.backup == nil {
		return 0, nil
	}
	lines, ok := e.backup.Restore(ctx)
	if !ok {
		return 0, nil
	}
	for _, l := range lines {
		if err := e.Add(ctx, l, l.Quantity); err != nil {
			return 0, fmt.Errorf("cart.RestoreBackup: %w", err)
		}
	}
	if err := e.backup.Discard(ctx); err != nil {
		e.log.Warn().Err(err).Msg("discard restored backup")
	}
	return len(lines), nil
}

func sameLines(a, b []domain.CartLine) bool {
	if len(a) != len(b) {
		return false
	}
	qty := make(map[string]int, len(a))
	for _, l := range a {
		qty[l.ID] = l.Quantity
	}
	for _, l := range b {
		if q, ok := qty[l.ID]; !ok || q != l.Quantity {
			return false
		}
	}
	return true
}
