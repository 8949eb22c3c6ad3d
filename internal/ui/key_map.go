package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle  key.Binding
	all     key.Binding
	preview key.Binding
	export  key.Binding
	back    key.Binding
	yes     key.Binding
	no      key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:  key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space/x", "select")),
		all:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
		preview: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preview")),
		export:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "export")),
		back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		no:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "export more")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
