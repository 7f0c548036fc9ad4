package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang-jwt/jwt/v5"

	"github.com/naveenspark/larder/pkg/domain"
)

func typeText(m accountModel, s string) accountModel {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestAccountLoginFlow(t *testing.T) {
	auth := newFakeAuth()
	m := newAccountModel(auth)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.editing {
		t.Fatal("expected editing=true after enter")
	}
	m = typeText(m, "ada")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != fieldPassword {
		t.Fatalf("tab on sign-in form should skip email, focus = %d", m.focus)
	}
	m = typeText(m, "lovelace1")

	if view := m.View(); strings.Contains(view, "lovelace1") {
		t.Errorf("password rendered in clear:\n%s", view)
	}

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected login command on enter, got nil")
	}
	if !m.busy {
		t.Error("expected busy while signing in")
	}
	m, _ = m.Update(cmd())

	if len(auth.logins) != 1 || auth.logins[0] != (domain.LoginRequest{Username: "ada", Password: "lovelace1"}) {
		t.Fatalf("logins = %+v", auth.logins)
	}
	if m.editing {
		t.Error("form should close after sign-in")
	}
	view := m.View()
	if !strings.Contains(view, "signed in as ada") || !strings.Contains(view, "user") {
		t.Errorf("expected account view, got:\n%s", view)
	}
}

func TestAccountValidationSkipsRequest(t *testing.T) {
	auth := newFakeAuth()
	m := newAccountModel(auth)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "ada")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("expected no command for an incomplete form")
	}
	if !strings.Contains(m.View(), "password is required") {
		t.Errorf("expected validation message, got:\n%s", m.View())
	}
	if len(auth.logins) != 0 {
		t.Errorf("auth was called: %+v", auth.logins)
	}
}

func TestAccountLoginFailureKeepsForm(t *testing.T) {
	auth := newFakeAuth()
	auth.err = errBadCredentials
	m := newAccountModel(auth)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "ada")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "wrong")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(cmd())

	if !m.editing {
		t.Error("form should stay open after a failed sign-in")
	}
	if _, ok := m.state.(domain.Anonymous); !ok {
		t.Errorf("state = %T, want Anonymous", m.state)
	}
	if !strings.Contains(m.View(), "no active account") {
		t.Errorf("expected error in view, got:\n%s", m.View())
	}
}

func TestAccountSignupFlow(t *testing.T) {
	auth := newFakeAuth()
	m := newAccountModel(auth)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if !m.signup {
		t.Fatal("expected signup mode after s")
	}
	if !strings.Contains(m.View(), "email") {
		t.Errorf("signup form should show email, got:\n%s", m.View())
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "grace")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "grace@example.com")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "hopper123")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected signup command")
	}
	m.Update(cmd())

	if len(auth.signups) != 1 {
		t.Fatalf("signups = %+v", auth.signups)
	}
	got := auth.signups[0]
	if got.Username != "grace" || got.Email != "grace@example.com" || got.Password != "hopper123" {
		t.Errorf("signup request = %+v", got)
	}
}

func TestAccountEscLeavesForm(t *testing.T) {
	m := newAccountModel(newFakeAuth())
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.editing {
		t.Error("expected editing=false after esc")
	}
}

func TestAccountShowsTokenExpiry(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "7",
		"exp":     time.Now().Add(10*time.Minute + 30*time.Second).Unix(),
	})
	signed, err := tok.SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	m := newAccountModel(newFakeAuth())
	m.state = domain.Authenticated{Credential: domain.Credential{
		AccessToken: signed,
		User:        &domain.User{ID: "7", Username: "ada", Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"},
	}}
	view := m.View()
	for _, want := range []string{"ada", "Ada Lovelace", "ada@example.com", "expires in 10m"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in account view, got:\n%s", want, view)
		}
	}
}

func TestAccountLogout(t *testing.T) {
	auth := newFakeAuth()
	m := newAccountModel(auth)
	m.state = auth.signIn("ada")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("L")})
	if cmd == nil {
		t.Fatal("expected logout command on L")
	}
	m, _ = m.Update(cmd())

	if auth.logouts != 1 {
		t.Errorf("logouts = %d, want 1", auth.logouts)
	}
	if _, ok := m.state.(domain.Anonymous); !ok {
		t.Errorf("state = %T, want Anonymous", m.state)
	}
	if !strings.Contains(m.View(), "your cart stays on this device") {
		t.Errorf("expected sign-out note, got:\n%s", m.View())
	}
}
