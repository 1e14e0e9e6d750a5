package keys

import "github.com/charmbracelet/bubbles/key"

// ConsoleKeys are the operator console bindings outside a prompt.
type ConsoleKeys struct {
	Connect    key.Binding
	Disconnect key.Binding
	Record     key.Binding
	Pause      key.Binding
	Stop       key.Binding
	Clear      key.Binding
	Timestamps key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	Bottom     key.Binding
	Help       key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
}

func NewConsoleKeys() ConsoleKeys {
	return ConsoleKeys{
		Connect: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "connect"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "disconnect"),
		),
		Record: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "start recording"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause/resume recording"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop recording"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "clear screen"),
		),
		Timestamps: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle timestamps"),
		),
		ScrollUp: key.NewBinding(
			key.WithKeys("up", "k", "pgup"),
			key.WithHelp("↑/k/pgup", "scroll up"),
		),
		ScrollDown: key.NewBinding(
			key.WithKeys("down", "j", "pgdown"),
			key.WithHelp("↓/j/pgdn", "scroll down"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "follow"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "Q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),
	}
}

func (k ConsoleKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Disconnect, k.Record, k.Stop, k.Help, k.Quit}
}

func (k ConsoleKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Connect, k.Disconnect},
		{k.Record, k.Pause, k.Stop},
		{k.Clear, k.Timestamps, k.ScrollUp, k.ScrollDown, k.Bottom},
		{k.Help, k.Quit, k.ForceQuit},
	}
}
