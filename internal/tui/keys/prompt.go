package keys

import "github.com/charmbracelet/bubbles/key"

// PromptKeys apply while a prompt is open.
type PromptKeys struct {
	Submit   key.Binding
	Cancel   key.Binding
	Complete key.Binding
	Previous key.Binding
	Next     key.Binding
}

func NewPromptKeys() PromptKeys {
	return PromptKeys{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Complete: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "complete"),
		),
		Previous: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "previous"),
		),
		Next: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next"),
		),
	}
}

func (k PromptKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel, k.Complete}
}

func (k PromptKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Submit, k.Cancel}, {k.Complete, k.Previous, k.Next}}
}
