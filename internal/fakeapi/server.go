// Package fakeapi is an in-memory stand-in for the recipe shop backend. It
// speaks the same REST shapes as the real service and exposes knobs that let
// tests expire tokens and inject failures.
package fakeapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/naveenspark/larder/pkg/domain"
)

// Server is the fake backend. The zero value is not usable; call New.
type Server struct {
	router chi.Router
	secret []byte

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu         sync.Mutex
	accounts   map[string]*account
	nextUserID int
	carts      map[domain.ID]*serverCart
	nextCartID int
	nextItemID int
	recipes    []domain.Recipe
	accessGen  int
	refreshGen int
	failures   map[string][]int
	hits       map[string]int
}

type account struct {
	user         domain.User
	passwordHash []byte
}

type serverCart struct {
	id    domain.ID
	items []*domain.ServerCartItem
}

// Option configures a Server.
type Option func(*Server)

// WithTokenTTL sets the lifetime of issued access and refresh tokens.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithRecipes replaces the seeded recipe catalog.
func WithRecipes(recipes ...domain.Recipe) Option {
	return func(s *Server) { s.recipes = recipes }
}

// WithSecret sets the HMAC key used to sign tokens.
func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

// New returns a backend with the default catalog and no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		secret:     []byte("larder-fake-api"),
		accessTTL:  5 * time.Minute,
		refreshTTL: 24 * time.Hour,
		now:        time.Now,
		accounts:   make(map[string]*account),
		carts:      make(map[domain.ID]*serverCart),
		recipes:    defaultRecipes(),
		failures:   make(map[string][]int),
		hits:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/token/", s.track("POST /token/", s.handleLogin))
	r.Post("/token/refresh/", s.track("POST /token/refresh/", s.handleRefresh))
	r.Post("/users/register/", s.track("POST /users/register/", s.handleRegister))
	r.Get("/recipes/", s.track("GET /recipes/", s.handleRecipes))

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/users/me/", s.track("GET /users/me/", s.handleMe))
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.track("GET /cart/", s.handleGetCart))
			r.Get("/count/", s.track("GET /cart/count/", s.handleCount))
			r.Delete("/clear/", s.track("DELETE /cart/clear/", s.handleClear))
			r.Post("/items/", s.track("POST /cart/items/", s.handleAddItem))
			r.Patch("/items/{id}/", s.track("PATCH /cart/items/{id}/", s.handleUpdateItem))
			r.Delete("/items/{id}/", s.track("DELETE /cart/items/{id}/", s.handleDeleteItem))
		})
	})
	return r
}

// track counts hits on route and serves queued failures before h.
func (s *Server) track(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		var status int
		if q := s.failures[route]; len(q) > 0 {
			status, s.failures[route] = q[0], q[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			respondError(w, status, http.StatusText(status))
			return
		}
		h(w, r)
	}
}

// FailNext makes the next len(statuses) calls to route answer with the given
// statuses. route is "METHOD /path/" as registered, e.g.
// "PATCH /cart/items/{id}/".
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// ResetHits zeroes every route counter.
func (s *Server) ResetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

// InvalidateAccessTokens rejects every access token issued so far.
func (s *Server) InvalidateAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessGen++
}

// InvalidateRefreshTokens rejects every refresh token issued so far.
func (s *Server) InvalidateRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshGen++
}

// Recipes returns the catalog.
func (s *Server) Recipes() []domain.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Recipe(nil), s.recipes...)
}

// Cart returns a copy of username's server cart.
func (s *Server) Cart(username string) domain.ServerCart {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(username)]
	if !ok {
		return domain.ServerCart{}
	}
	return s.cartViewLocked(acc.user.ID)
}

// SeedCart puts quantity of recipeID into username's cart.
func (s *Server) SeedCart(username, recipeID string, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(username)]
	if !ok {
		return false
	}
	_, ok = s.addItemLocked(acc.user.ID, domain.ID(recipeID), quantity)
	return ok
}
