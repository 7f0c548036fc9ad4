package main

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/charmbracelet/lipgloss"
)

var larderGreetings = [...]string{
	"Your cart is safe on this device. Sign in and it follows you.",
	"The shelves are stocked. Your account is not signed in.",
	"A cart without an account is a shopping list. Still useful.",
	"Everything you add now stays here until you sign in.",
	"Sign in and your cart meets the one waiting on the server.",
	"The pantry remembers. The server remembers more.",
	"Six recipes on the shelf and a cart with your name on it, nearly.",
	"Signed out. Nothing lost, nothing synced.",
}

func printHelp(w io.Writer) {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#f5b942")).
		Bold(true).
		Render("L A R D E R")

	cmdStyle := lipgloss.NewStyle().Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	commands := []struct{ cmd, desc string }{
		{"larder", "Open the shop (interactive TUI)"},
		{"larder login", "Sign in and sync your cart"},
		{"larder signup", "Create an account"},
		{"larder logout", "Sign out, keep the cart on this device"},
		{"larder cart", "Print the cart"},
		{"larder status", "Show session and sync state"},
		{"larder version", "Show version"},
		{"larder help", "You are here"},
	}

	fmt.Fprintf(w, "\n  %s\n\n  Commands:\n", title)
	for _, c := range commands {
		fmt.Fprintf(w, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-20s", c.cmd)), descStyle.Render(c.desc))
	}
	env := descStyle.Render("Configure with LARDER_API_URL, LARDER_STORE and LARDER_DATA_DIR.")
	fmt.Fprintf(w, "\n  %s\n\n", env)
}

func printGreeting(w io.Writer) {
	msg := larderGreetings[rand.IntN(len(larderGreetings))]

	quote := lipgloss.NewStyle().
		Foreground(lipgloss.Color("245")).
		Italic(true).
		Render(msg)

	hint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#c8a84c")).
		Render("To sync: larder login")

	fmt.Fprintf(w, "\n%s\n%s\n\n", quote, hint)
}
