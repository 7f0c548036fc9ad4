// Package auth drives sign-in, sign-up, sign-out and start-up session
// checks, and moves the cart between local-only and synced mode to match.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/pkg/domain"
)

var (
	// ErrNoUser is returned when the backend issues tokens without a user.
	ErrNoUser = errors.New("auth: response carried no user")
	// ErrSessionLost is returned when a fresh session ends before sign-in
	// completes, for example when loading the server cart fails its refresh.
	ErrSessionLost = errors.New("auth: session ended during sign-in")
)

// API is the subset of the backend client the controller uses.
type API interface {
	Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error)
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.AuthResponse, error)
	GetMe(ctx context.Context) (*domain.User, error)
}

// Sessions stores the credential.
type Sessions interface {
	Get(ctx context.Context) *domain.Credential
	Set(ctx context.Context, c domain.Credential) error
	SetUser(ctx context.Context, u domain.User) error
	Clear(ctx context.Context) error
}

// Cart is the engine transition surface.
type Cart interface {
	Attach(ctx context.Context, userID string) error
	Detach(ctx context.Context)
}

// Controller owns session transitions.
type Controller struct {
	api      API
	sessions Sessions
	cart     Cart
	log      zerolog.Logger

	// mu serializes transitions. SessionExpired does not take it: it runs
	// from inside API calls made while mu is held.
	mu sync.Mutex

	hmu      sync.Mutex
	onChange func(domain.SessionState)
}

// New returns a controller. Nothing happens until Bootstrap or Login.
func New(api API, sessions Sessions, cart Cart, log zerolog.Logger) *Controller {
	return &Controller{
		api:      api,
		sessions: sessions,
		cart:     cart,
		log:      log.With().Str("component", "auth").Logger(),
	}
}

// OnStateChange registers fn to run after every transition.
func (c *Controller) OnStateChange(fn func(domain.SessionState)) {
	c.hmu.Lock()
	c.onChange = fn
	c.hmu.Unlock()
}

func (c *Controller) changed(st domain.SessionState) {
	c.hmu.Lock()
	fn := c.onChange
	c.hmu.Unlock()
	if fn != nil {
		fn(st)
	}
}

// State returns the current session state.
func (c *Controller) State(ctx context.Context) domain.SessionState {
	return domain.StateOf(c.sessions.Get(ctx))
}

// Login signs in. The session is stored before the cart is attached, so the
// server cart fetch already carries the new token.
func (c *Controller) Login(ctx context.Context, req domain.LoginRequest) (domain.SessionState, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Anonymous{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.Login(ctx, req)
	if err != nil {
		return domain.Anonymous{}, fmt.Errorf("auth.Login: %w", err)
	}
	return c.begin(ctx, resp)
}

// Signup registers and signs in.
func (c *Controller) Signup(ctx context.Context, req domain.SignupRequest) (domain.SessionState, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Anonymous{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.api.Signup(ctx, req)
	if err != nil {
		return domain.Anonymous{}, fmt.Errorf("auth.Signup: %w", err)
	}
	return c.begin(ctx, resp)
}

func (c *Controller) begin(ctx context.Context, resp *domain.AuthResponse) (domain.SessionState, error) {
	cred := resp.Credential()
	if !cred.Complete() {
		return domain.Anonymous{}, ErrNoUser
	}
	if err := c.sessions.Set(ctx, cred); err != nil {
		// The store keeps it in memory; this process stays signed in.
		c.log.Warn().Err(err).Msg("persist session")
	}
	if err := c.cart.Attach(ctx, cred.User.ID.String()); err != nil {
		c.log.Warn().Err(err).Msg("attach cart after sign-in")
	}
	// The session hook has already reported the sign-out if attaching ended it.
	st := domain.StateOf(c.sessions.Get(ctx))
	if _, ok := st.(domain.Authenticated); !ok {
		return st, ErrSessionLost
	}
	c.log.Info().Str("user", cred.User.Username).Msg("signed in")
	c.changed(st)
	return st, nil
}

// Logout clears the session and keeps the cart on this device.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.sessions.Clear(ctx)
	c.cart.Detach(ctx)
	c.changed(domain.Anonymous{})
	if err != nil {
		return fmt.Errorf("auth.Logout: %w", err)
	}
	return nil
}

// Bootstrap checks a stored session against the backend once at start-up.
// Any failure, including a failed refresh, ends the session.
func (c *Controller) Bootstrap(ctx context.Context) domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.Get(ctx) == nil {
		return domain.Anonymous{}
	}

	u, err := c.api.GetMe(ctx)
	if err != nil {
		c.log.Info().Err(err).Msg("stored session rejected")
		if cerr := c.sessions.Clear(ctx); cerr != nil {
			c.log.Warn().Err(cerr).Msg("clear rejected session")
		}
		c.cart.Detach(ctx)
		c.changed(domain.Anonymous{})
		return domain.Anonymous{}
	}

	if err := c.sessions.SetUser(ctx, *u); err != nil {
		c.log.Warn().Err(err).Msg("update stored user")
	}
	if err := c.cart.Attach(ctx, u.ID.String()); err != nil {
		c.log.Warn().Err(err).Msg("attach cart at start-up")
	}
	st := domain.StateOf(c.sessions.Get(ctx))
	c.changed(st)
	return st
}

// UpdateUser replaces the stored profile of the signed-in user.
func (c *Controller) UpdateUser(ctx context.Context, u domain.User) error {
	if err := c.sessions.SetUser(ctx, u); err != nil {
		return fmt.Errorf("auth.UpdateUser: %w", err)
	}
	c.changed(c.State(ctx))
	return nil
}

// SessionExpired is the client's hook for a session it had to clear. The
// credential is already gone; only the cart needs to follow.
func (c *Controller) SessionExpired() {
	c.log.Info().Msg("session expired")
	c.cart.Detach(context.Background())
	c.changed(domain.Anonymous{})
}
