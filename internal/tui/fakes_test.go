package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/internal/cart"
	"github.com/naveenspark/larder/internal/store"
	"github.com/naveenspark/larder/pkg/domain"
)

var testRecipes = []domain.Recipe{
	{ID: "1", Title: "Shakshuka", Price: 8, Time: "30 min", Servings: 2},
	{ID: "2", Title: "Red lentil dal", Price: 6.25, Servings: 4},
	{ID: "3", Title: "Miso soup", Price: 4.5},
}

type fakeCatalog struct {
	recipes []domain.Recipe
	err     error
}

func (f fakeCatalog) ListRecipes(context.Context) ([]domain.Recipe, error) {
	return f.recipes, f.err
}

type fakeAuth struct {
	mu       sync.Mutex
	state    domain.SessionState
	err      error
	logins   []domain.LoginRequest
	signups  []domain.SignupRequest
	logouts  int
	onChange func(domain.SessionState)
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{state: domain.Anonymous{}}
}

func (f *fakeAuth) State(context.Context) domain.SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAuth) signIn(username string) domain.SessionState {
	st := domain.Authenticated{Credential: domain.Credential{
		AccessToken: "access",
		User:        &domain.User{ID: "7", Username: username},
	}}
	f.state = st
	return st
}

func (f *fakeAuth) Login(_ context.Context, req domain.LoginRequest) (domain.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, req)
	if f.err != nil {
		return domain.Anonymous{}, f.err
	}
	return f.signIn(req.Username), nil
}

func (f *fakeAuth) Signup(_ context.Context, req domain.SignupRequest) (domain.SessionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signups = append(f.signups, req)
	if f.err != nil {
		return domain.Anonymous{}, f.err
	}
	return f.signIn(req.Username), nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.state = domain.Anonymous{}
	return nil
}

func (f *fakeAuth) OnStateChange(fn func(domain.SessionState)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

var errBadCredentials = errors.New("no active account found with the given credentials")

// newTestEngine returns a local-only engine holding lines.
func newTestEngine(t *testing.T, lines ...domain.CartLine) *cart.Engine {
	t.Helper()
	ctx := context.Background()
	e := cart.New(ctx, store.NewCart(store.NewMemoryBackend(), zerolog.Nop()), nil)
	t.Cleanup(e.Close)
	for _, l := range lines {
		if err := e.Add(ctx, l, l.Quantity); err != nil {
			t.Fatalf("seed cart: %v", err)
		}
	}
	return e
}
