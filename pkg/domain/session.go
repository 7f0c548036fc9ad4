package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the signed-in shopper's profile.
type User struct {
	ID           ID     `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Credential is the access/refresh token pair plus the user it belongs to.
type Credential struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Complete reports whether the credential carries everything a session
// needs. Partially written state (a token without a user, a user without an
// id) is not a session.
func (c Credential) Complete() bool {
	return c.AccessToken != "" && c.User != nil && c.User.ID != "" && c.User.Username != ""
}

// AccessExpiry reads the exp claim of the access token without verifying
// the signature. The client never holds the signing key; the server stays
// the authority and the expiry is for display only.
func (c Credential) AccessExpiry() (time.Time, bool) {
	if c.AccessToken == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// SessionState is either Anonymous or Authenticated.
type SessionState interface {
	sessionState()
}

// Anonymous means no usable credential is stored.
type Anonymous struct{}

// Authenticated carries the active credential.
type Authenticated struct {
	Credential Credential
}

func (Anonymous) sessionState()     {}
func (Authenticated) sessionState() {}

// StateOf maps a stored credential onto a SessionState.
func StateOf(c *Credential) SessionState {
	if c == nil || !c.Complete() {
		return Anonymous{}
	}
	return Authenticated{Credential: *c}
}

// CurrentUser returns the user of an Authenticated state, nil otherwise.
func CurrentUser(s SessionState) *User {
	if a, ok := s.(Authenticated); ok {
		return a.Credential.User
	}
	return nil
}

// LoginRequest is the body of POST /token/.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest is the body of POST /users/register/.
type SignupRequest struct {
	Username  string `json:"username" validate:"required,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthResponse is returned by token issuance and registration.
type AuthResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    *User  `json:"user"`
}

// Credential converts the response into a storable credential.
func (r AuthResponse) Credential() Credential {
	return Credential{AccessToken: r.Access, RefreshToken: r.Refresh, User: r.User}
}
