package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/larder/pkg/domain"
)

type accountField int

const (
	fieldUsername accountField = iota
	fieldEmail
	fieldPassword
	numAccountFields
)

type authResultMsg struct {
	state domain.SessionState
	err   error
}

type loggedOutMsg struct {
	err error
}

type accountModel struct {
	auth    Auth
	state   domain.SessionState
	signup  bool
	editing bool
	focus   accountField
	fields  [numAccountFields]string
	busy    bool
	status  string
	width   int
	height  int
}

func newAccountModel(a Auth) accountModel {
	return accountModel{auth: a, state: domain.Anonymous{}}
}

func (m accountModel) Update(msg tea.Msg) (accountModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case authResultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = errorStyle.Render(msg.err.Error())
			return m, nil
		}
		m.state = msg.state
		m.editing = false
		m.fields = [numAccountFields]string{}
		m.status = ""
		if u := domain.CurrentUser(msg.state); u != nil {
			m.status = accentStyle.Render("signed in as " + u.Username)
		}
		return m, nil

	case loggedOutMsg:
		m.busy = false
		m.state = domain.Anonymous{}
		if msg.err != nil {
			m.status = warnStyle.Render("signed out, but the session could not be erased: " + msg.err.Error())
		} else {
			m.status = dimStyle.Render("signed out. your cart stays on this device")
		}
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.handleFormKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m accountModel) handleKey(msg tea.KeyMsg) (accountModel, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	_, signedIn := m.state.(domain.Authenticated)
	switch msg.String() {
	case "enter", "i":
		if !signedIn {
			m.editing = true
			m.focus = fieldUsername
			m.status = ""
		}
	case "s":
		if !signedIn {
			m.signup = !m.signup
			m.status = ""
		}
	case "L":
		if signedIn && m.auth != nil {
			m.busy = true
			a := m.auth
			return m, func() tea.Msg {
				return loggedOutMsg{err: a.Logout(context.Background())}
			}
		}
	}
	return m, nil
}

func (m accountModel) handleFormKey(msg tea.KeyMsg) (accountModel, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		m.editing = false
		return m, nil
	case "tab", "down":
		m.focus = m.nextField(1)
		return m, nil
	case "shift+tab", "up":
		m.focus = m.nextField(-1)
		return m, nil
	case "enter", "ctrl+s":
		return m.submit()
	}
	m.fields[m.focus] = editRune(m.fields[m.focus], msg.String())
	return m, nil
}

// nextField cycles focus, skipping email on the sign-in form.
func (m accountModel) nextField(step int) accountField {
	f := m.focus
	for {
		f = (f + accountField(step) + numAccountFields) % numAccountFields
		if f != fieldEmail || m.signup {
			return f
		}
	}
}

func (m accountModel) submit() (accountModel, tea.Cmd) {
	if m.auth == nil {
		return m, nil
	}
	username := strings.TrimSpace(m.fields[fieldUsername])
	password := m.fields[fieldPassword]
	a := m.auth

	if m.signup {
		req := domain.SignupRequest{
			Username: username,
			Email:    strings.TrimSpace(m.fields[fieldEmail]),
			Password: password,
		}
		if err := domain.Validate(req); err != nil {
			m.status = errorStyle.Render(err.Error())
			return m, nil
		}
		m.busy = true
		m.status = dimStyle.Render("creating account...")
		return m, func() tea.Msg {
			st, err := a.Signup(context.Background(), req)
			return authResultMsg{state: st, err: err}
		}
	}

	req := domain.LoginRequest{Username: username, Password: password}
	if err := domain.Validate(req); err != nil {
		m.status = errorStyle.Render(err.Error())
		return m, nil
	}
	m.busy = true
	m.status = dimStyle.Render("signing in...")
	return m, func() tea.Msg {
		st, err := a.Login(context.Background(), req)
		return authResultMsg{state: st, err: err}
	}
}

func (m accountModel) helpKeys() string {
	if m.editing {
		return helpBar("tab", "next", "enter", "submit", "esc", "cancel")
	}
	if _, ok := m.state.(domain.Authenticated); ok {
		return helpBar("1-3", "tabs", "L", "sign out", "h", "help", "q", "quit")
	}
	toggle := "sign up"
	if m.signup {
		toggle = "sign in"
	}
	return helpBar("1-3", "tabs", "enter", "edit", "s", toggle, "h", "help", "q", "quit")
}

func (m accountModel) View() string {
	var b strings.Builder
	b.WriteString("\n")

	if auth, ok := m.state.(domain.Authenticated); ok {
		u := auth.Credential.User
		fmt.Fprintf(&b, "  %s\n\n", sectionHeaderStyle.Render("account"))
		fmt.Fprintf(&b, "  %s  %s\n", metaStyle.Render("user    "), selectedStyle.Render(u.Username))
		if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
			fmt.Fprintf(&b, "  %s  %s\n", metaStyle.Render("name    "), normalStyle.Render(name))
		}
		if u.Email != "" {
			fmt.Fprintf(&b, "  %s  %s\n", metaStyle.Render("email   "), normalStyle.Render(u.Email))
		}
		if exp, ok := auth.Credential.AccessExpiry(); ok {
			fmt.Fprintf(&b, "  %s  %s\n", metaStyle.Render("token   "), dimStyle.Render("expires "+formatUntil(exp)))
		}
		if m.status != "" {
			b.WriteString("\n  " + m.status + "\n")
		}
		return b.String()
	}

	title := "sign in"
	if m.signup {
		title = "create an account"
	}
	fmt.Fprintf(&b, "  %s\n", sectionHeaderStyle.Render(title))
	b.WriteString("  " + dimStyle.Render("signing in syncs your cart with your account") + "\n\n")

	labels := [numAccountFields]string{"username", "email", "password"}
	for i := accountField(0); i < numAccountFields; i++ {
		if i == fieldEmail && !m.signup {
			continue
		}
		value := m.fields[i]
		if i == fieldPassword {
			value = mask(value)
		}
		cursor := " "
		style := metaStyle
		if m.editing && i == m.focus {
			cursor = ">"
			style = selectedStyle
			value += "█"
		}
		fmt.Fprintf(&b, "  %s %s: %s\n", cursor, style.Render(fmt.Sprintf("%-8s", labels[i])), value)
	}

	if m.status != "" {
		b.WriteString("\n  " + m.status + "\n")
	} else if !m.editing {
		b.WriteString("\n  " + dimStyle.Render("press enter to start typing") + "\n")
	}
	return b.String()
}
