package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/term"

	"github.com/naveenspark/larder/internal/cart"
	"github.com/naveenspark/larder/pkg/client"
	"github.com/naveenspark/larder/pkg/domain"
)

// prompter reads answers from stdin. Secrets are read without echo when
// stdin is a terminal.
type prompter struct {
	in  io.Reader
	r   *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, r: bufio.NewReader(in), out: out}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) secret(label string) (string, error) {
	f, ok := p.in.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		line, err := p.ask(label)
		return line, err
	}
	fmt.Fprintf(p.out, "%s: ", label)
	b, err := term.ReadPassword(f.Fd())
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", label, err)
	}
	return string(b), nil
}

func (a *larder) runLogin(ctx context.Context, p *prompter) error {
	username, err := p.ask("Username")
	if err != nil {
		return err
	}
	password, err := p.secret("Password")
	if err != nil {
		return err
	}
	st, err := a.ctrl.Login(ctx, domain.LoginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	a.printSignedIn(p.out, st)
	return nil
}

func (a *larder) runSignup(ctx context.Context, p *prompter) error {
	username, err := p.ask("Username")
	if err != nil {
		return err
	}
	email, err := p.ask("Email")
	if err != nil {
		return err
	}
	password, err := p.secret("Password")
	if err != nil {
		return err
	}
	st, err := a.ctrl.Signup(ctx, domain.SignupRequest{Username: username, Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}
	a.printSignedIn(p.out, st)
	return nil
}

func (a *larder) printSignedIn(w io.Writer, st domain.SessionState) {
	u := domain.CurrentUser(st)
	if u == nil {
		return
	}
	fmt.Fprintf(w, "Signed in as %s.\n", u.Username)
	fmt.Fprintf(w, "Cart: %d items, %s (%s)\n", a.engine.Count(), money(a.engine.Total()), a.engine.Mode())
	if warn := a.engine.Warning(); warn != "" {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func (a *larder) runLogout(ctx context.Context, w io.Writer) error {
	if _, ok := a.ctrl.State(ctx).(domain.Anonymous); ok {
		fmt.Fprintln(w, "Not signed in.")
		return nil
	}
	if err := a.ctrl.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Signed out. %d items stay in the cart on this device.\n", a.engine.Count())
	return nil
}

func (a *larder) runCart(ctx context.Context, w io.Writer) error {
	a.ctrl.Bootstrap(ctx)

	lines := a.engine.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(w, "Your cart is empty.")
		return nil
	}
	for _, l := range lines {
		fmt.Fprintf(w, "%3d x %-32s %9s\n", l.Quantity, l.Name, money(l.Subtotal()))
	}
	fmt.Fprintf(w, "%d items, total %s (%s)\n", a.engine.Count(), money(a.engine.Total()), a.engine.Mode())
	if warn := a.engine.Warning(); warn != "" {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}

func (a *larder) runStatus(ctx context.Context, w io.Writer) error {
	st := a.ctrl.Bootstrap(ctx)

	fmt.Fprintf(w, "api:    %s\n", a.cfg.APIURL)
	fmt.Fprintf(w, "store:  %s\n", a.cfg.Store)

	authed, ok := st.(domain.Authenticated)
	if !ok {
		fmt.Fprintf(w, "cart:   %d items (%s)\n", a.engine.Count(), cart.LocalOnly)
		printGreeting(w)
		return nil
	}

	fmt.Fprintf(w, "user:   %s\n", authed.Credential.User.Username)
	if exp, ok := authed.Credential.AccessExpiry(); ok {
		fmt.Fprintf(w, "token:  expires %s\n", exp.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "cart:   %d items (%s)\n", a.engine.Count(), a.engine.Mode())

	n, err := a.client.CartCount(ctx)
	switch {
	case err == nil:
		fmt.Fprintf(w, "server: %d items\n", n)
	case errors.Is(err, client.ErrSessionExpired), errors.Is(err, client.ErrSessionChanged):
		fmt.Fprintln(w, "server: session expired, sign in again")
	default:
		fmt.Fprintf(w, "server: unreachable (%v)\n", err)
	}
	return nil
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
