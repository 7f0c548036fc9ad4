package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/naveenspark/larder/internal/browser"
	"github.com/naveenspark/larder/pkg/domain"
)

type recipesLoadedMsg struct {
	recipes []domain.Recipe
	err     error
}

type addedMsg struct {
	name string
	err  error
}

type openResultMsg struct {
	err error
}

type shopModel struct {
	catalog Catalog
	cart    Cart
	site    string
	recipes []domain.Recipe
	cursor  int
	loading bool
	err     error
	status  string
	width   int
	height  int
}

func newShopModel(catalog Catalog, cart Cart, site string) shopModel {
	return shopModel{catalog: catalog, cart: cart, site: site, loading: true}
}

func (m shopModel) Init() tea.Cmd {
	return m.loadRecipes()
}

func (m shopModel) loadRecipes() tea.Cmd {
	c := m.catalog
	return func() tea.Msg {
		if c == nil {
			return recipesLoadedMsg{}
		}
		recipes, err := c.ListRecipes(context.Background())
		return recipesLoadedMsg{recipes: recipes, err: err}
	}
}

func (m shopModel) Update(msg tea.Msg) (shopModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case recipesLoadedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.recipes = msg.recipes
			if m.cursor >= len(m.recipes) {
				m.cursor = max(len(m.recipes)-1, 0)
			}
		}
		return m, nil

	case addedMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("add failed: " + msg.err.Error())
		} else {
			m.status = accentStyle.Render("added " + msg.name)
		}
		return m, nil

	case openResultMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("could not open browser")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m shopModel) handleKey(msg tea.KeyMsg) (shopModel, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.cursor < len(m.recipes)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a", "enter":
		if m.cursor < len(m.recipes) && m.cart != nil {
			r := m.recipes[m.cursor]
			c := m.cart
			return m, func() tea.Msg {
				err := c.Add(context.Background(), r.Line(1), 1)
				return addedMsg{name: r.Title, err: err}
			}
		}
	case "o":
		if m.cursor < len(m.recipes) && m.site != "" {
			url := m.site + "/recipes/" + m.recipes[m.cursor].ID.String()
			return m, func() tea.Msg {
				return openResultMsg{err: browser.Open(url)}
			}
		}
	case "r":
		m.loading = true
		m.status = ""
		return m, m.loadRecipes()
	}
	return m, nil
}

func (m shopModel) View() string {
	if m.loading {
		return "\n  " + dimStyle.Render("loading recipes...")
	}
	if m.err != nil {
		return "\n  " + errorStyle.Render("could not load recipes: "+m.err.Error()) +
			"\n  " + dimStyle.Render("press r to retry")
	}
	if len(m.recipes) == 0 {
		return "\n  " + dimStyle.Render("no recipes on the shelf")
	}

	inCart := map[string]int{}
	if m.cart != nil {
		for _, l := range m.cart.Lines() {
			inCart[l.ID] = l.Quantity
		}
	}

	titleWidth := max(m.width-36, 16)
	var b strings.Builder
	b.WriteString("\n")
	for i, r := range m.recipes {
		meta := []string{}
		if r.Time != "" {
			meta = append(meta, r.Time)
		}
		if r.Servings > 0 {
			meta = append(meta, plural(r.Servings, "serving", "servings"))
		}
		title := fmt.Sprintf("%-*s", titleWidth, truncStr(r.Title, titleWidth))
		row := fmt.Sprintf("  %s  %s  %s", title,
			priceStyle.Render(fmt.Sprintf("%8s", formatMoney(float64(r.Price)))),
			metaStyle.Render(strings.Join(meta, " . ")))
		if q := inCart[r.ID.String()]; q > 0 {
			row += "  " + accentStyle.Render(fmt.Sprintf("x%d in cart", q))
		}
		if i == m.cursor {
			row = selectedRowBg.Render(selectedStyle.Render(">") + row[1:])
		} else {
			row = normalStyle.Render(row)
		}
		b.WriteString(row + "\n")
	}
	if m.status != "" {
		b.WriteString("\n  " + m.status + "\n")
	}
	return b.String()
}
