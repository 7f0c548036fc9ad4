package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/larder/pkg/domain"
)

func newTestCartModel(t *testing.T) (cartModel, Cart) {
	t.Helper()
	e := newTestEngine(t,
		domain.CartLine{ID: "1", Name: "Shakshuka", UnitPrice: 8, Quantity: 2},
		domain.CartLine{ID: "2", Name: "Red lentil dal", UnitPrice: 6.25, Quantity: 1},
	)
	m := newCartModel(e)
	m.width = 80
	m.height = 30
	return m, e
}

// press sends key to m and feeds the resulting command's message back.
func press(t *testing.T, m cartModel, key string) cartModel {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	m, cmd := m.Update(msg)
	if cmd != nil {
		m, _ = m.Update(cmd())
	}
	return m
}

func TestCartViewShowsLinesAndTotal(t *testing.T) {
	m, _ := newTestCartModel(t)
	view := m.View()
	for _, want := range []string{"Shakshuka", "Red lentil dal", "$16.00", "3 items", "total $22.25", "local only"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in cart view, got:\n%s", want, view)
		}
	}
}

func TestCartEmptyView(t *testing.T) {
	m := newCartModel(newTestEngine(t))
	if !strings.Contains(m.View(), "your cart is empty") {
		t.Errorf("expected empty message, got:\n%s", m.View())
	}
}

func TestCartQuantityKeys(t *testing.T) {
	m, c := newTestCartModel(t)

	m = press(t, m, "+")
	if got := c.Lines()[0].Quantity; got != 3 {
		t.Fatalf("quantity after + = %d, want 3", got)
	}
	if m.count != 4 {
		t.Errorf("model count = %d, want 4", m.count)
	}

	m = press(t, m, "j")
	m = press(t, m, "-")
	lines := c.Lines()
	if len(lines) != 1 || lines[0].ID != "1" {
		t.Fatalf("- on a single item should remove it, lines = %+v", lines)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want it clamped to 0", m.cursor)
	}
}

func TestCartRemoveAndClear(t *testing.T) {
	m, c := newTestCartModel(t)

	m = press(t, m, "d")
	if lines := c.Lines(); len(lines) != 1 || lines[0].ID != "2" {
		t.Fatalf("lines after d = %+v, want only Red lentil dal", lines)
	}
	if !strings.Contains(m.View(), "removed Shakshuka") {
		t.Errorf("expected removal status, got:\n%s", m.View())
	}

	m = press(t, m, "x")
	if c.Count() != 0 {
		t.Errorf("Count() after clear = %d, want 0", c.Count())
	}
	if !strings.Contains(m.View(), "cart cleared") {
		t.Errorf("expected clear status, got:\n%s", m.View())
	}

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}); cmd != nil {
		t.Error("clearing an empty cart should not issue a command")
	}
}

func TestCartFlushOnlyWhenSynced(t *testing.T) {
	m, _ := newTestCartModel(t)
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("f")}); cmd != nil {
		t.Error("f in a local-only cart should do nothing")
	}
}

func TestCartRestoreWithoutBackup(t *testing.T) {
	m, _ := newTestCartModel(t)
	m = press(t, m, "b")
	if !strings.Contains(m.View(), "no recent cart to restore") {
		t.Errorf("expected no-backup status, got:\n%s", m.View())
	}
	if m.busy {
		t.Error("busy should reset after the restore result")
	}
}

func TestCartChangedRefreshes(t *testing.T) {
	m, c := newTestCartModel(t)
	c.Remove(t.Context(), "1")
	if m.count != 3 {
		t.Fatalf("model should keep its snapshot until notified, count = %d", m.count)
	}
	m, _ = m.Update(cartChangedMsg{})
	if m.count != 1 {
		t.Errorf("count after cartChangedMsg = %d, want 1", m.count)
	}
}

func TestCartHelpKeys(t *testing.T) {
	m, _ := newTestCartModel(t)
	help := m.helpKeys()
	if !strings.Contains(help, "remove") || !strings.Contains(help, "restore") {
		t.Errorf("help missing entries: %q", help)
	}
	if strings.Contains(help, "sync") {
		t.Errorf("local-only help should not offer sync: %q", help)
	}
}
