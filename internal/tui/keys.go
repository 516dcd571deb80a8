package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Output key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

var Keys = KeyMap{
	Output: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "toggle output"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "cancel run"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc"),
		key.WithHelp("q", "quit"),
	),
}
