package cart

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/naveenspark/larder/pkg/client"
	"github.com/naveenspark/larder/pkg/domain"
)

// fakeMirror is an in-memory server cart with failure and latency knobs.
type fakeMirror struct {
	mu     sync.Mutex
	items  []*domain.ServerCartItem
	nextID int
	calls  []string

	failWith error
	getErr   error

	// When gate is set, AddCartItem signals started and waits on gate.
	gate    chan struct{}
	started chan struct{}
}

func newFakeMirror(seed ...domain.ServerCartItem) *fakeMirror {
	m := &fakeMirror{}
	for i := range seed {
		it := seed[i]
		m.nextID++
		if it.ID == "" {
			it.ID = domain.ID(strconv.Itoa(100 + m.nextID))
		}
		m.items = append(m.items, &it)
	}
	return m
}

func (m *fakeMirror) record(call string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.failWith
}

func (m *fakeMirror) setFail(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *fakeMirror) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeMirror) quantities() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, it := range m.items {
		out[it.Recipe.ID.String()] = it.Quantity
	}
	return out
}

func (m *fakeMirror) GetCart(context.Context) (*domain.ServerCart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	cart := &domain.ServerCart{ID: "1"}
	for _, it := range m.items {
		cart.Items = append(cart.Items, *it)
	}
	return cart, nil
}

func (m *fakeMirror) AddCartItem(_ context.Context, recipeID string, qty int) (*domain.ServerCartItem, error) {
	if m.gate != nil {
		m.started <- struct{}{}
		<-m.gate
	}
	if err := m.record(fmt.Sprintf("create %s %d", recipeID, qty)); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.Recipe.ID.String() == recipeID {
			it.Quantity += qty
			out := *it
			return &out, nil
		}
	}
	m.nextID++
	it := &domain.ServerCartItem{
		ID:       domain.ID(strconv.Itoa(100 + m.nextID)),
		Recipe:   domain.Recipe{ID: domain.ID(recipeID)},
		Quantity: qty,
	}
	m.items = append(m.items, it)
	out := *it
	return &out, nil
}

func (m *fakeMirror) UpdateCartItem(_ context.Context, itemID string, qty int) (*domain.ServerCartItem, error) {
	if err := m.record(fmt.Sprintf("update %s %d", itemID, qty)); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID.String() == itemID {
			it.Quantity = qty
			out := *it
			return &out, nil
		}
	}
	return nil, &client.HTTPError{StatusCode: http.StatusNotFound, Message: "Not found."}
}

func (m *fakeMirror) DeleteCartItem(_ context.Context, itemID string) error {
	if err := m.record("delete " + itemID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID.String() == itemID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return &client.HTTPError{StatusCode: http.StatusNotFound, Message: "Not found."}
}

func (m *fakeMirror) ClearCart(context.Context) error {
	if err := m.record("clear"); err != nil {
		return err
	}
	m.mu.Lock()
	m.items = nil
	m.mu.Unlock()
	return nil
}
