package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/naveenspark/larder/pkg/domain"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

type claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	Gen       int    `json:"gen"`
	jwt.RegisteredClaims
}

const msgTokenInvalid = "Token is invalid or expired"

var errTokenInvalid = errors.New("token invalid")

type ctxKey struct{}

// IssueTokens mints an access/refresh pair for an existing user.
func (s *Server) IssueTokens(user domain.User) (access, refresh string, err error) {
	s.mu.Lock()
	accessGen, refreshGen := s.accessGen, s.refreshGen
	s.mu.Unlock()

	access, err = s.sign(user.ID, tokenAccess, accessGen)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.sign(user.ID, tokenRefresh, refreshGen)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) sign(userID domain.ID, kind string, gen int) (string, error) {
	ttl := s.accessTTL
	if kind == tokenRefresh {
		ttl = s.refreshTTL
	}
	now := s.now()
	c := claims{
		UserID:    userID.String(),
		TokenType: kind,
		Gen:       gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// verify parses raw and checks its type and generation.
func (s *Server) verify(raw, kind string) (domain.ID, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid || c.TokenType != kind {
		return "", errTokenInvalid
	}

	s.mu.Lock()
	gen := s.accessGen
	if kind == tokenRefresh {
		gen = s.refreshGen
	}
	s.mu.Unlock()
	if c.Gen != gen {
		return "", errTokenInvalid
	}
	return domain.ID(c.UserID), nil
}

// authenticate requires a valid bearer access token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			respondDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}
		userID, err := s.verify(parts[1], tokenAccess)
		if err != nil {
			respondDetail(w, http.StatusUnauthorized, msgTokenInvalid)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userIDFrom(ctx context.Context) domain.ID {
	id, _ := ctx.Value(ctxKey{}).(domain.ID)
	return id
}
