package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/naveenspark/larder/internal/metrics"
	"github.com/naveenspark/larder/pkg/client"
	"github.com/naveenspark/larder/pkg/domain"
)

type opKind int

const (
	opCreate opKind = iota
	opUpdate
	opDelete
	opClear
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	default:
		return "clear"
	}
}

// op is one server mirror call. qty is an increment for creates and an
// absolute quantity for updates.
type op struct {
	kind   opKind
	lineID string
	itemID string
	qty    int
}

func skipped(k opKind) {
	metrics.MirrorCallsTotal.WithLabelValues(k.String(), "skipped").Inc()
}

func newBreaker(log zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "cart-mirror",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		// Only transport trouble and 5xx say anything about server health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				client.IsClientError(err) ||
				errors.Is(err, client.ErrSessionExpired) ||
				errors.Is(err, client.ErrSessionChanged) ||
				errors.Is(err, client.ErrNoSession)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("mirror breaker state changed")
		},
	})
}

// Online reports whether the mirror breaker lets calls through.
func (e *Engine) Online() bool {
	return e.breaker.State() != gobreaker.StateOpen
}

func (e *Engine) runBackground(epoch uint64, o op) {
	ctx, cancel := context.WithTimeout(context.Background(), e.callTimeout)
	defer cancel()
	if follow := e.complete(epoch, o, e.call(ctx, o)); follow != nil {
		e.complete(epoch, *follow, e.call(ctx, *follow))
	}
}

type result struct {
	item *domain.ServerCartItem
	err  error
}

func (e *Engine) call(ctx context.Context, o op) result {
	v, err := e.breaker.Execute(func() (any, error) {
		switch o.kind {
		case opCreate:
			return e.mirror.AddCartItem(ctx, o.lineID, o.qty)
		case opUpdate:
			return e.mirror.UpdateCartItem(ctx, o.itemID, o.qty)
		case opDelete:
			return nil, e.mirror.DeleteCartItem(ctx, o.itemID)
		default:
			return nil, e.mirror.ClearCart(ctx)
		}
	})
	item, _ := v.(*domain.ServerCartItem)
	return result{item: item, err: err}
}

// complete applies the outcome of o. It returns a follow-up call when a
// create landed for a line that was removed meanwhile.
func (e *Engine) complete(epoch uint64, o op, r result) *op {
	e.mu.Lock()
	defer e.notify()
	defer e.mu.Unlock()

	log := e.log.With().Str("op", o.kind.String()).Str("line", o.lineID).Str("item", o.itemID).Logger()

	if epoch != e.epoch || e.mode != Synced {
		// Finished after a sign-in or sign-out; the mapping it belongs to is gone.
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "stale").Inc()
		log.Debug().Err(r.err).Msg("discard stale mirror result")
		return nil
	}

	err := r.err
	if err == nil && o.kind == opCreate && r.item == nil {
		err = errors.New("server returned no cart item")
	}

	switch {
	case err == nil:
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "ok").Inc()
		if o.kind != opCreate {
			return nil
		}
		itemID := r.item.ID.String()
		if e.indexLocked(o.lineID) < 0 {
			return &op{kind: opDelete, lineID: o.lineID, itemID: itemID}
		}
		e.mapping[o.lineID] = itemID
		return nil

	case errors.Is(err, client.ErrSessionExpired), errors.Is(err, client.ErrSessionChanged),
		errors.Is(err, client.ErrNoSession):
		// Sign-out follows through the session hook; nothing to retry.
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "error").Inc()
		log.Info().Err(err).Msg("mirror call without a session")
		return nil

	case client.IsStatus(err, http.StatusNotFound) && o.kind == opDelete:
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "ok").Inc()
		return nil

	case client.IsStatus(err, http.StatusNotFound) && o.kind == opUpdate:
		// The server lost the item; recreate it on the next flush.
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "error").Inc()
		if e.mapping[o.lineID] == o.itemID {
			delete(e.mapping, o.lineID)
		}
		e.warning = "Cart item was missing on the server; it will be re-added on the next sync."
		e.enqueueLocked(op{kind: opCreate, lineID: o.lineID})
		log.Warn().Err(err).Msg("server item vanished")
		return nil

	default:
		metrics.MirrorCallsTotal.WithLabelValues(o.kind.String(), "error").Inc()
		e.warning = fmt.Sprintf("Couldn't sync cart (%s): %v", o.kind, err)
		e.enqueueLocked(o)
		log.Warn().Err(err).Msg("mirror call failed; queued for retry")
		return nil
	}
}

func (e *Engine) enqueueLocked(o op) {
	if e.queueSize <= 0 {
		metrics.SyncQueueDroppedTotal.Inc()
		return
	}
	if len(e.queue) >= e.queueSize {
		e.queue = e.queue[1:]
		metrics.SyncQueueDroppedTotal.Inc()
	}
	e.queue = append(e.queue, o)
	metrics.SyncQueueDepth.Set(float64(len(e.queue)))
}

func (e *Engine) resetQueueLocked() {
	e.queue = nil
	metrics.SyncQueueDepth.Set(0)
}

// Flush replays queued mirror calls against the current cart: creates and
// updates send the line's present quantity, and lines removed since are
// skipped. It returns an error when any replay failed; those calls are
// queued again.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.mode != Synced || len(e.queue) == 0 {
		e.mu.Unlock()
		return nil
	}
	epoch := e.epoch
	pending := e.queue
	e.resetQueueLocked()
	ops := e.resolveLocked(pending)
	e.mu.Unlock()

	var failed []error
	for _, o := range ops {
		r := e.call(ctx, o)
		if follow := e.complete(epoch, o, r); follow != nil {
			e.complete(epoch, *follow, e.call(ctx, *follow))
		}
		if r.err != nil && !client.IsStatus(r.err, http.StatusNotFound) {
			failed = append(failed, r.err)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("cart.Flush: %d of %d calls failed: %w", len(failed), len(ops), errors.Join(failed...))
	}
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.warning = ""
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// resolveLocked rewrites queued ops against the current lines and mapping,
// keeping at most one create/update per line.
func (e *Engine) resolveLocked(pending []op) []op {
	out := make([]op, 0, len(pending))
	seen := make(map[string]bool)
	for _, o := range pending {
		switch o.kind {
		case opDelete, opClear:
			out = append(out, o)
		default:
			if seen[o.lineID] {
				continue
			}
			i := e.indexLocked(o.lineID)
			if i < 0 {
				continue
			}
			seen[o.lineID] = true
			qty := e.lines[i].Quantity
			if itemID, ok := e.mapping[o.lineID]; ok {
				out = append(out, op{kind: opUpdate, lineID: o.lineID, itemID: itemID, qty: qty})
			} else {
				out = append(out, op{kind: opCreate, lineID: o.lineID, qty: qty})
			}
		}
	}
	return out
}
