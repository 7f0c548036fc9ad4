// Package cart holds the in-memory shopping cart. Every mutation is applied
// and persisted locally first; while a session is attached the engine mirrors
// it to the server cart in the background and never rolls the local change
// back when the server call fails.
package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/naveenspark/larder/pkg/domain"
)

// Mode is the engine's synchronization state.
type Mode int

const (
	// LocalOnly keeps the cart on this device only.
	LocalOnly Mode = iota
	// Synced mirrors every mutation to the signed-in user's server cart.
	Synced
)

func (m Mode) String() string {
	if m == Synced {
		return "synced"
	}
	return "local"
}

// ErrMissingID is returned when an item without an id is added.
var ErrMissingID = errors.New("cart: item has no id")

// Mirror is the server cart API.
type Mirror interface {
	GetCart(ctx context.Context) (*domain.ServerCart, error)
	AddCartItem(ctx context.Context, recipeID string, quantity int) (*domain.ServerCartItem, error)
	UpdateCartItem(ctx context.Context, itemID string, quantity int) (*domain.ServerCartItem, error)
	DeleteCartItem(ctx context.Context, itemID string) error
	ClearCart(ctx context.Context) error
}

// Snapshotter persists the line array.
type Snapshotter interface {
	Load(ctx context.Context) []domain.CartLine
	Save(ctx context.Context, lines []domain.CartLine)
}

// Backuper keeps a short-lived copy of a cart replaced at sign-in.
type Backuper interface {
	Save(ctx context.Context, lines []domain.CartLine, userID string) error
	Restore(ctx context.Context) ([]domain.CartLine, bool)
	Discard(ctx context.Context) error
}

// Engine is the cart state machine. It is safe for concurrent use.
type Engine struct {
	snap    Snapshotter
	mirror  Mirror
	backup  Backuper
	log     zerolog.Logger
	breaker *gobreaker.CircuitBreaker[any]

	queueSize   int
	callTimeout time.Duration

	mu      sync.Mutex
	lines   []domain.CartLine
	mode    Mode
	mapping map[string]string
	epoch   uint64
	warning string
	queue   []op
	closed  bool
	wg      sync.WaitGroup

	lmu          sync.Mutex
	listeners    map[int]func()
	nextListener int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l.With().Str("component", "cart").Logger() }
}

// WithQueueSize bounds the retry queue of failed mirror calls. Zero disables
// the queue.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// WithBackup enables the pre-sign-in backup.
func WithBackup(b Backuper) Option {
	return func(e *Engine) { e.backup = b }
}

// WithCallTimeout bounds each background mirror call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) { e.callTimeout = d }
}

// New loads the persisted cart and starts in LocalOnly mode.
func New(ctx context.Context, snap Snapshotter, mirror Mirror, opts ...Option) *Engine {
	e := &Engine{
		snap:        snap,
		mirror:      mirror,
		log:         zerolog.Nop(),
		queueSize:   32,
		callTimeout: 30 * time.Second,
		listeners:   make(map[int]func()),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.breaker = newBreaker(e.log)
	e.lines = snap.Load(ctx)
	return e
}

// Add puts qty of item in the cart, incrementing an existing line.
func (e *Engine) Add(ctx context.Context, item domain.CartLine, qty int) error {
	if item.ID == "" {
		return ErrMissingID
	}
	if qty < 1 {
		return domain.ErrInvalidQuantity
	}

	e.mu.Lock()
	var o *op
	if i := e.indexLocked(item.ID); i >= 0 {
		e.lines[i].Quantity += qty
		if e.mode == Synced {
			if itemID, ok := e.mapping[item.ID]; ok {
				o = &op{kind: opUpdate, lineID: item.ID, itemID: itemID, qty: e.lines[i].Quantity}
			} else {
				o = &op{kind: opCreate, lineID: item.ID, qty: qty}
			}
		}
	} else {
		item.Quantity = qty
		e.lines = append(e.lines, item)
		if e.mode == Synced {
			o = &op{kind: opCreate, lineID: item.ID, qty: qty}
		}
	}
	e.commitLocked(ctx, o)
	return nil
}

// SetQuantity replaces the quantity of line id. qty <= 0 removes the line.
// Setting the quantity of a line that is not in the cart does nothing.
func (e *Engine) SetQuantity(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		e.Remove(ctx, id)
		return nil
	}

	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return nil
	}
	e.lines[i].Quantity = qty
	var o *op
	if e.mode == Synced {
		if itemID, ok := e.mapping[id]; ok {
			o = &op{kind: opUpdate, lineID: id, itemID: itemID, qty: qty}
		} else {
			skipped(opUpdate)
		}
	}
	e.commitLocked(ctx, o)
	return nil
}

// Remove deletes line id. Removing an absent line is a no-op.
func (e *Engine) Remove(ctx context.Context, id string) {
	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return
	}
	e.lines = append(e.lines[:i], e.lines[i+1:]...)
	var o *op
	if e.mode == Synced {
		if itemID, ok := e.mapping[id]; ok {
			delete(e.mapping, id)
			o = &op{kind: opDelete, lineID: id, itemID: itemID}
		} else {
			skipped(opDelete)
		}
	}
	e.commitLocked(ctx, o)
}

// Clear empties the cart.
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	e.lines = []domain.CartLine{}
	var o *op
	if e.mode == Synced {
		e.mapping = make(map[string]string)
		e.resetQueueLocked()
		o = &op{kind: opClear}
	}
	e.commitLocked(ctx, o)
}

// commitLocked persists the lines, schedules o and releases e.mu. Saving
// under the lock keeps snapshots in mutation order.
func (e *Engine) commitLocked(ctx context.Context, o *op) {
	e.snap.Save(ctx, e.copyLocked())
	var epoch uint64
	if o != nil {
		epoch = e.epoch
		if e.closed {
			e.enqueueLocked(*o)
			o = nil
		} else {
			e.wg.Add(1)
		}
	}
	e.mu.Unlock()

	e.notify()
	if o != nil {
		go func(o op) {
			defer e.wg.Done()
			e.runBackground(epoch, o)
		}(*o)
	}
}

// Lines returns a copy of the cart lines in insertion order.
func (e *Engine) Lines() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyLocked()
}

// Total is the sum of unit price × quantity.
func (e *Engine) Total() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	var total float64
	for _, l := range e.lines {
		total += l.Subtotal()
	}
	return total
}

// Count is the sum of quantities.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, l := range e.lines {
		n += l.Quantity
	}
	return n
}

// Mode reports whether the cart is mirrored to the server.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Warning is the last sync problem worth showing the user, or "".
func (e *Engine) Warning() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.warning
}

// ClearWarning dismisses the current warning.
func (e *Engine) ClearWarning() {
	e.mu.Lock()
	e.warning = ""
	e.mu.Unlock()
	e.notify()
}

// Pending is the number of failed mirror calls waiting for Flush.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// ServerItemID returns the server item mapped to line id.
func (e *Engine) ServerItemID(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	itemID, ok := e.mapping[id]
	return itemID, ok
}

// Subscribe registers fn to run after every change. The returned func
// unregisters it. fn must not block.
func (e *Engine) Subscribe(fn func()) func() {
	e.lmu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.lmu.Unlock()
	return func() {
		e.lmu.Lock()
		delete(e.listeners, id)
		e.lmu.Unlock()
	}
}

func (e *Engine) notify() {
	e.lmu.Lock()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.lmu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Close waits for in-flight mirror calls. Mutations after Close are applied
// locally and queued instead of mirrored.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) indexLocked(id string) int {
	for i, l := range e.lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) copyLocked() []domain.CartLine {
	return append([]domain.CartLine{}, e.lines...)
}
