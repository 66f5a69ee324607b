package tui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/mabhi256/refwatch/internal/analysis"
)

type TabType int

const (
	RetainedTab TabType = iota
	LeaksTab
	DumpsTab
)

const lastTab = DumpsTab

func (t TabType) String() string {
	switch t {
	case RetainedTab:
		return "Retained"
	case LeaksTab:
		return "Leaks"
	case DumpsTab:
		return "Heap Dumps"
	default:
		return "Unknown"
	}
}

func GetAllTabs() []TabType {
	return []TabType{RetainedTab, LeaksTab, DumpsTab}
}

// Snapshot is everything the dashboard shows, collected once per tick.
type Snapshot struct {
	Disabled     bool
	RetainedKeys []string
	Leaks        []analysis.Result
	DumpFiles    []string
	// Leaked is the number of widgets parked by the demo workload, -1 without one.
	Leaked int
	Err    error
}

type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Tab     key.Binding
	PrevTab key.Binding
	Leak    key.Binding
	Release key.Binding
	Reset   key.Binding
	Clear   key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func k(keys []string, help, desc string) key.Binding {
	return key.NewBinding(
		key.WithKeys(keys...),
		key.WithHelp(help, desc),
	)
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:      k([]string{"up", "k"}, "↑/k", "up"),
		Down:    k([]string{"down", "j"}, "↓/j", "down"),
		Tab:     k([]string{"tab"}, "tab", "next view"),
		PrevTab: k([]string{"shift+tab"}, "shift+tab", "previous view"),
		Leak:    k([]string{"L"}, "L", "leak widget"),
		Release: k([]string{"R"}, "R", "release widget"),
		Reset:   k([]string{"x"}, "x", "drop leaked widgets"),
		Clear:   k([]string{"c"}, "c", "clear watched"),
		Refresh: k([]string{"r"}, "r", "refresh"),
		Help:    k([]string{"?"}, "?", "toggle help"),
		Quit:    k([]string{"q", "ctrl+c"}, "q", "quit"),
	}
}

func (km KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Tab, km.Clear, km.Help, km.Quit}
}

func (km KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Up, km.Down, km.Tab, km.PrevTab, km.Refresh},
		{km.Leak, km.Release, km.Reset, km.Clear},
		{km.Help, km.Quit},
	}
}
