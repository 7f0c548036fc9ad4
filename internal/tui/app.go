package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/naveenspark/larder/internal/browser"
	"github.com/naveenspark/larder/internal/cart"
	"github.com/naveenspark/larder/pkg/domain"
)

// Catalog lists the recipes the shop can sell.
type Catalog interface {
	ListRecipes(ctx context.Context) ([]domain.Recipe, error)
}

// Cart is the engine surface the views drive.
type Cart interface {
	Add(ctx context.Context, item domain.CartLine, qty int) error
	SetQuantity(ctx context.Context, id string, qty int) error
	Remove(ctx context.Context, id string)
	Clear(ctx context.Context)
	Flush(ctx context.Context) error
	RestoreBackup(ctx context.Context) (int, error)
	Lines() []domain.CartLine
	Total() float64
	Count() int
	Mode() cart.Mode
	Warning() string
	ClearWarning()
	Pending() int
	Subscribe(fn func()) func()
}

// Auth is the session controller surface.
type Auth interface {
	State(ctx context.Context) domain.SessionState
	Login(ctx context.Context, req domain.LoginRequest) (domain.SessionState, error)
	Signup(ctx context.Context, req domain.SignupRequest) (domain.SessionState, error)
	Logout(ctx context.Context) error
	OnStateChange(fn func(domain.SessionState))
}

// Deps wires the app to the rest of the program. Any field may be nil.
type Deps struct {
	Catalog Catalog
	Cart    Cart
	Auth    Auth
	// Site is the storefront web address used for "open in browser".
	Site string
}

type view int

const (
	viewShop view = iota
	viewCart
	viewAccount
)

// App is the root Bubbletea model.
type App struct {
	auth       Auth
	changes    chan struct{}
	view       view
	shop       shopModel
	cart       cartModel
	account    accountModel
	state      domain.SessionState
	helpOpen   bool
	helpCursor int
	helpItems  []helpItem
	width      int
	height     int
	frame      int // logo shimmer animation frame
}

// NewApp creates a new TUI application.
func NewApp(d Deps) App {
	a := App{
		auth:      d.Auth,
		changes:   make(chan struct{}, 1),
		shop:      newShopModel(d.Catalog, d.Cart, d.Site),
		cart:      newCartModel(d.Cart),
		account:   newAccountModel(d.Auth),
		state:     domain.Anonymous{},
		helpItems: helpItemsFor(d.Site),
	}
	signal := a.signal
	if d.Cart != nil {
		d.Cart.Subscribe(signal)
	}
	if d.Auth != nil {
		d.Auth.OnStateChange(func(domain.SessionState) { signal() })
		a.state = d.Auth.State(context.Background())
		a.account.state = a.state
	}
	return a
}

// signal coalesces change notifications; it never blocks the notifier.
func (a App) signal() {
	select {
	case a.changes <- struct{}{}:
	default:
	}
}

func (a App) waitForChange() tea.Cmd {
	ch := a.changes
	return func() tea.Msg {
		<-ch
		return cartChangedMsg{}
	}
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.shop.Init(), shimmerTickCmd(), a.waitForChange())
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		// Chrome: header(2) + tabs(1) + status(1) + help(1) = 5 lines
		bodyMsg := tea.WindowSizeMsg{Width: msg.Width, Height: msg.Height - 5}
		a.shop, _ = a.shop.Update(bodyMsg)
		a.cart, _ = a.cart.Update(bodyMsg)
		a.account, _ = a.account.Update(bodyMsg)
		return a, nil

	case shimmerTickMsg:
		a.frame++
		return a, shimmerTickCmd()

	case cartChangedMsg:
		a.cart, _ = a.cart.Update(msg)
		if a.auth != nil {
			a.state = a.auth.State(context.Background())
			if !a.account.busy {
				a.account.state = a.state
			}
		}
		return a, a.waitForChange()

	case authResultMsg, loggedOutMsg:
		var cmd tea.Cmd
		a.account, cmd = a.account.Update(msg)
		a.state = a.account.state
		a.cart = a.cart.refresh()
		return a, cmd

	case addedMsg, recipesLoadedMsg, openResultMsg:
		var cmd tea.Cmd
		a.shop, cmd = a.shop.Update(msg)
		a.cart = a.cart.refresh()
		return a, cmd

	case cartOpMsg, copyResultMsg:
		var cmd tea.Cmd
		a.cart, cmd = a.cart.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if a.helpOpen {
			switch msg.String() {
			case "h", "esc":
				a.helpOpen = false
			case "q", "ctrl+c":
				return a, tea.Quit
			case "j", "down":
				if a.helpCursor < len(a.helpItems)-1 {
					a.helpCursor++
				}
			case "k", "up":
				if a.helpCursor > 0 {
					a.helpCursor--
				}
			case "enter":
				if a.helpCursor < len(a.helpItems) {
					browser.Open(a.helpItems[a.helpCursor].url) //nolint:errcheck // best-effort browser open
				}
			}
			return a, nil
		}

		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}

		if !a.isEditing() {
			switch msg.String() {
			case "h", "?":
				a.helpOpen = true
				a.helpCursor = 0
				return a, nil
			case "q":
				return a, tea.Quit
			case "1":
				if a.view != viewShop {
					a.view = viewShop
					return a, a.shop.Init()
				}
				return a, nil
			case "2":
				a.view = viewCart
				a.cart = a.cart.refresh()
				return a, nil
			case "3":
				a.view = viewAccount
				return a, nil
			}
		}
	}

	var cmd tea.Cmd
	switch a.view {
	case viewShop:
		a.shop, cmd = a.shop.Update(msg)
	case viewCart:
		a.cart, cmd = a.cart.Update(msg)
	case viewAccount:
		a.account, cmd = a.account.Update(msg)
	}
	return a, cmd
}

func (a App) isEditing() bool {
	return a.view == viewAccount && a.account.editing
}

func (a App) View() string {
	logo := renderShimmerLogo(a.frame)

	var parts []string
	if u := domain.CurrentUser(a.state); u != nil {
		parts = append(parts, selectedStyle.Render(u.Username))
	} else {
		parts = append(parts, dimStyle.Render("signed out"))
	}
	if a.cart.mode == cart.Synced {
		parts = append(parts, syncedStyle.Render("synced"))
	} else {
		parts = append(parts, localStyle.Render("local cart"))
	}
	parts = append(parts, metaStyle.Render(plural(a.cart.count, "item", "items")+" "+formatMoney(a.cart.total)))
	statsLine := strings.Join(parts, metaStyle.Render(" . "))

	header := center(logo, a.width) + "\n" + center(statsLine, a.width)

	type tabEntry struct {
		key  string
		name string
		v    view
	}
	tabs := []tabEntry{
		{"1", "Shop", viewShop},
		{"2", "Cart", viewCart},
		{"3", "Account", viewAccount},
	}

	colWidth := a.width / len(tabs)
	var tabBar strings.Builder
	for _, t := range tabs {
		var label string
		if t.v == a.view {
			label = accentStyle.Render(t.key) + " " + selectedStyle.Underline(true).Render(t.name)
		} else {
			label = metaStyle.Render(t.key) + " " + dimStyle.Render(t.name)
		}
		if t.v == viewCart && a.cart.count > 0 {
			label += " " + accentStyle.Render(fmt.Sprintf("%d", a.cart.count))
		}
		if t.v == viewCart && a.cart.warning != "" {
			label += " " + warnStyle.Render("!")
		}
		labelWidth := lipgloss.Width(label)
		leftPad := max((colWidth-labelWidth)/2, 0)
		rightPad := max(colWidth-labelWidth-leftPad, 0)
		tabBar.WriteString(strings.Repeat(" ", leftPad) + label + strings.Repeat(" ", rightPad))
	}

	var body, help string
	switch a.view {
	case viewShop:
		body = a.shop.View()
		help = helpBar("1-3", "tabs", "j/k", "nav", "a", "add", "o", "open", "r", "reload", "h", "help", "q", "quit")
	case viewCart:
		body = a.cart.View()
		help = a.cart.helpKeys()
	case viewAccount:
		body = a.account.View()
		help = a.account.helpKeys()
	}

	if a.helpOpen {
		body = helpView(a.helpItems, a.helpCursor)
		help = helpBar("j/k", "nav", "enter", "open", "esc", "close")
	}

	statusBar := ""
	if a.cart.pending > 0 && a.view != viewCart {
		statusBar = " " + statusStyle.Render(fmt.Sprintf("%d cart changes waiting to sync", a.cart.pending))
	}

	// Chrome budget: header(2) + tabs(1) + status(1) + help(1) = 5 lines + body
	chrome := 5
	body = strings.TrimRight(truncateToHeight(body, a.height-chrome), "\n")

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", header, tabBar.String(), body, statusBar, help)
}

func center(s string, width int) string {
	pad := max((width-lipgloss.Width(s))/2, 0)
	return strings.Repeat(" ", pad) + s
}
