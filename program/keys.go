package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Pause key.Binding
	Trace key.Binding
	Stats key.Binding
	Quit  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Trace, k.Stats}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Pause},
		{k.Trace, k.Stats},
	}
}

var keys = keyMap{
	Pause: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause"),
	),
	Trace: key.NewBinding(
		key.WithKeys("t"),
		key.WithHelp("t", "trace"),
	),
	Stats: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stats"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "Q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "quit"),
	),
}
