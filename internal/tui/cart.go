package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/larder/internal/cart"
	"github.com/naveenspark/larder/pkg/domain"
)

// cartChangedMsg is sent whenever the engine or the session changed.
type cartChangedMsg struct{}

type cartOpMsg struct {
	done string
	err  error
}

type copyResultMsg struct {
	err error
}

type cartModel struct {
	cart    Cart
	lines   []domain.CartLine
	total   float64
	count   int
	mode    cart.Mode
	warning string
	pending int
	cursor  int
	busy    bool
	status  string
	width   int
	height  int
}

func newCartModel(c Cart) cartModel {
	m := cartModel{cart: c}
	return m.refresh()
}

// refresh copies the engine state into the model.
func (m cartModel) refresh() cartModel {
	if m.cart == nil {
		return m
	}
	m.lines = m.cart.Lines()
	m.total = m.cart.Total()
	m.count = m.cart.Count()
	m.mode = m.cart.Mode()
	m.warning = m.cart.Warning()
	m.pending = m.cart.Pending()
	if m.cursor >= len(m.lines) {
		m.cursor = max(len(m.lines)-1, 0)
	}
	return m
}

func (m cartModel) Update(msg tea.Msg) (cartModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case cartChangedMsg:
		return m.refresh(), nil

	case cartOpMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = errorStyle.Render(msg.err.Error())
		case msg.done != "":
			m.status = accentStyle.Render(msg.done)
		}
		return m.refresh(), nil

	case copyResultMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("copy failed: " + msg.err.Error())
		} else {
			m.status = accentStyle.Render("order summary copied")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m cartModel) handleKey(msg tea.KeyMsg) (cartModel, tea.Cmd) {
	if m.cart == nil {
		return m, nil
	}
	c := m.cart
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.lines)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "+", "=", "right":
		if l, ok := m.selected(); ok {
			return m, func() tea.Msg {
				return cartOpMsg{err: c.Add(context.Background(), l, 1)}
			}
		}
	case "-", "left":
		if l, ok := m.selected(); ok {
			return m, func() tea.Msg {
				return cartOpMsg{err: c.SetQuantity(context.Background(), l.ID, l.Quantity-1)}
			}
		}
	case "d", "delete":
		if l, ok := m.selected(); ok {
			return m, func() tea.Msg {
				c.Remove(context.Background(), l.ID)
				return cartOpMsg{done: "removed " + l.Name}
			}
		}
	case "x":
		if len(m.lines) > 0 {
			return m, func() tea.Msg {
				c.Clear(context.Background())
				return cartOpMsg{done: "cart cleared"}
			}
		}
	case "c":
		if len(m.lines) > 0 {
			text := cartSummary(m.lines, m.total)
			return m, func() tea.Msg {
				return copyResultMsg{err: clipboard.WriteAll(text)}
			}
		}
	case "f":
		if m.mode == cart.Synced && m.pending > 0 && !m.busy {
			m.busy = true
			m.status = dimStyle.Render("syncing...")
			return m, func() tea.Msg {
				if err := c.Flush(context.Background()); err != nil {
					return cartOpMsg{err: err}
				}
				return cartOpMsg{done: "cart synced"}
			}
		}
	case "b":
		if !m.busy {
			m.busy = true
			return m, func() tea.Msg {
				n, err := c.RestoreBackup(context.Background())
				if err != nil {
					return cartOpMsg{err: err}
				}
				if n == 0 {
					return cartOpMsg{done: "no recent cart to restore"}
				}
				return cartOpMsg{done: fmt.Sprintf("restored %s from your previous cart", plural(n, "item", "items"))}
			}
		}
	case "w":
		if m.warning != "" {
			c.ClearWarning()
			m.warning = ""
		}
	}
	return m, nil
}

func (m cartModel) selected() (domain.CartLine, bool) {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return domain.CartLine{}, false
	}
	return m.lines[m.cursor], true
}

func (m cartModel) helpKeys() string {
	pairs := []string{"1-3", "tabs", "j/k", "nav", "+/-", "qty", "d", "remove", "x", "clear", "c", "copy", "b", "restore"}
	if m.mode == cart.Synced && m.pending > 0 {
		pairs = append(pairs, "f", "sync")
	}
	if m.warning != "" {
		pairs = append(pairs, "w", "dismiss")
	}
	return helpBar(append(pairs, "q", "quit")...)
}

func (m cartModel) View() string {
	var b strings.Builder
	b.WriteString("\n")

	modeLabel := localStyle.Render("local only")
	if m.mode == cart.Synced {
		modeLabel = syncedStyle.Render("synced")
	}
	header := "  " + sectionHeaderStyle.Render("cart") + "  " + modeLabel
	if m.pending > 0 {
		header += "  " + warnStyle.Render(fmt.Sprintf("%d pending", m.pending))
	}
	b.WriteString(header + "\n")
	if m.warning != "" {
		b.WriteString("  " + warnStyle.Render("! "+m.warning) + "\n")
	}
	b.WriteString("\n")

	if len(m.lines) == 0 {
		b.WriteString("  " + dimStyle.Render("your cart is empty. add something from the shop (1)") + "\n")
		if m.status != "" {
			b.WriteString("\n  " + m.status + "\n")
		}
		return b.String()
	}

	nameWidth := max(m.width-34, 16)
	for i, l := range m.lines {
		name := fmt.Sprintf("%-*s", nameWidth, truncStr(l.Name, nameWidth))
		row := fmt.Sprintf("  %s  %3d x %8s  %s", name, l.Quantity,
			formatMoney(l.UnitPrice), priceStyle.Render(fmt.Sprintf("%9s", formatMoney(l.Subtotal()))))
		if i == m.cursor {
			row = selectedRowBg.Render(selectedStyle.Render(">") + row[1:])
		} else {
			row = normalStyle.Render(row)
		}
		b.WriteString(row + "\n")
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  %s  %s\n",
		metaStyle.Render(plural(m.count, "item", "items")),
		selectedStyle.Render("total "+formatMoney(m.total)))
	if m.status != "" {
		b.WriteString("\n  " + m.status + "\n")
	}
	return b.String()
}
