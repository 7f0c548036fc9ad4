// Package session keeps the signed-in user's credential. Reads are served
// from memory after the first load, so a Set is visible to the very next Get
// in the process even if the durable write failed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/naveenspark/larder/internal/store"
	"github.com/naveenspark/larder/pkg/domain"
)

var (
	// ErrIncomplete is returned when Set is given a credential without an
	// access token or user.
	ErrIncomplete = errors.New("session: credential is incomplete")
	// ErrNoSession is returned by partial updates when nobody is signed in.
	ErrNoSession = errors.New("session: no active session")
)

// Store is the process's credential holder.
type Store struct {
	backend store.Backend
	image   *store.Slot
	log     zerolog.Logger

	mu     sync.Mutex
	loaded bool
	cred   *domain.Credential
}

// New returns a Store over b. Nothing is read until the first call.
func New(b store.Backend, log zerolog.Logger) *Store {
	return &Store{
		backend: b,
		image:   store.NewSlot(b, store.KeyProfileImage),
		log:     log.With().Str("component", "session").Logger(),
	}
}

// Get returns a copy of the stored credential, or nil when there is no
// complete session. Partially written or corrupt state reads as nil.
func (s *Store) Get(ctx context.Context) *domain.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return clone(s.cred)
}

// State returns the tagged session state.
func (s *Store) State(ctx context.Context) domain.SessionState {
	return domain.StateOf(s.Get(ctx))
}

// Tokens returns the current access and refresh tokens.
func (s *Store) Tokens(ctx context.Context) (access, refresh string) {
	c := s.Get(ctx)
	if c == nil {
		return "", ""
	}
	return c.AccessToken, c.RefreshToken
}

// Set replaces the credential. The in-memory copy is updated before the
// durable write, so a write error leaves a working in-memory session.
func (s *Store) Set(ctx context.Context, c domain.Credential) error {
	if !c.Complete() {
		return ErrIncomplete
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = true
	s.cred = clone(&c)
	err := s.persistLocked(ctx)
	if img := c.User.ProfileImage; img != "" {
		if ierr := s.image.Set(ctx, img); ierr != nil {
			s.log.Warn().Err(ierr).Msg("write profile image")
		}
	}
	return err
}

// SetAccess swaps in a refreshed access token for the session that owns
// refresh. It reports false and changes nothing when that session has since
// been replaced or cleared.
func (s *Store) SetAccess(ctx context.Context, refresh, access string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if s.cred == nil || s.cred.RefreshToken != refresh {
		return false, nil
	}
	s.cred.AccessToken = access
	return true, s.persistLocked(ctx)
}

// SetUser replaces the stored profile of the signed-in user.
func (s *Store) SetUser(ctx context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if s.cred == nil {
		return ErrNoSession
	}
	if u.ID == "" || u.Username == "" {
		return ErrIncomplete
	}
	s.cred.User = &u
	if err := s.persistLocked(ctx); err != nil {
		return err
	}
	return s.image.Set(ctx, u.ProfileImage)
}

// ProfileImage returns the stored profile image reference.
func (s *Store) ProfileImage(ctx context.Context) string {
	return s.image.Get(ctx)
}

// Clear forgets the credential and the profile image.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIf clears the session only while it is still the one identified by
// access and refresh, and reports whether it did. A non-empty refresh token
// identifies the session on its own; refreshes change the access token.
func (s *Store) ClearIf(ctx context.Context, access, refresh string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if !s.matchesLocked(access, refresh) {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) matchesLocked(access, refresh string) bool {
	if s.cred == nil {
		return false
	}
	if refresh != "" {
		return s.cred.RefreshToken == refresh
	}
	return s.cred.RefreshToken == "" && s.cred.AccessToken == access
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.loaded = true
	s.cred = nil
	err := s.backend.Delete(ctx, store.KeySession)
	if ierr := s.image.Clear(ctx); ierr != nil && err == nil {
		err = ierr
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("clear session")
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *Store) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	data, err := s.backend.Get(ctx, store.KeySession)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn().Err(err).Msg("read session")
			// Retry on the next call; the backend may come back.
			s.loaded = false
		}
		return
	}
	var c domain.Credential
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.Warn().Err(err).Msg("discard corrupt session")
		return
	}
	if !c.Complete() {
		s.log.Debug().Msg("ignore partial session")
		return
	}
	s.cred = &c
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.cred)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.backend.Set(ctx, store.KeySession, data, 0); err != nil {
		s.log.Warn().Err(err).Msg("write session; keeping it in memory")
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

func clone(c *domain.Credential) *domain.Credential {
	if c == nil {
		return nil
	}
	out := *c
	if c.User != nil {
		u := *c.User
		out.User = &u
	}
	return &out
}
