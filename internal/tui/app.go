package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/internal/demo"
	"github.com/mabhi256/refwatch/internal/heapdump"
	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/mabhi256/refwatch/utils"
)

const recentLeaks = 50

// Source is what the dashboard reads from and acts on.
type Source struct {
	Watcher *watcher.RefWatcher
	Store   *analysis.Store
	Dumps   *heapdump.Directory
	// Workload enables the leak and release keys.
	Workload *demo.Workload
}

func (s Source) snapshot() Snapshot {
	snap := Snapshot{
		Disabled:     s.Watcher.IsDisabled(),
		RetainedKeys: s.Watcher.RetainedKeys(),
		Leaked:       -1,
	}
	if s.Workload != nil {
		snap.Leaked = s.Workload.Leaked()
	}
	if s.Store != nil {
		leaks, err := s.Store.List(recentLeaks)
		if err != nil {
			snap.Err = err
		}
		snap.Leaks = leaks
	}
	if s.Dumps != nil {
		files, err := s.Dumps.Files()
		if err != nil && snap.Err == nil {
			snap.Err = err
		}
		snap.DumpFiles = files
	}
	return snap
}

type TickMsg time.Time

type Model struct {
	source   Source
	interval time.Duration

	snapshot  Snapshot
	updatedAt time.Time
	status    string

	activeTab       TabType
	scrollPositions map[TabType]int
	width           int
	height          int

	keys KeyMap
	help help.Model
}

func StartTUI(source Source, refresh time.Duration) error {
	program := tea.NewProgram(
		NewModel(source, refresh),
		tea.WithAltScreen(), // Use alternate screen buffer
	)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func NewModel(source Source, refresh time.Duration) *Model {
	return &Model{
		source:          source,
		interval:        refresh,
		activeTab:       RetainedTab,
		scrollPositions: make(map[TabType]int),
		keys:            DefaultKeyMap(),
		help:            help.New(),
	}
}

func (m *Model) Init() tea.Cmd {
	return triggerImmediateTick()
}

func (m *Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func triggerImmediateTick() tea.Cmd {
	return func() tea.Msg { return TickMsg(time.Now()) }
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case TickMsg:
		m.refresh()
		return m, m.scheduleTick()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m *Model) refresh() {
	m.snapshot = m.source.snapshot()
	m.updatedAt = time.Now()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		m.activeTab = utils.GetNextEnum(m.activeTab, lastTab)

	case key.Matches(msg, m.keys.PrevTab):
		m.activeTab = utils.GetPrevEnum(m.activeTab, lastTab)

	case key.Matches(msg, m.keys.Up):
		m.scrollPositions[m.activeTab] = max(m.scrollPositions[m.activeTab]-1, 0)

	case key.Matches(msg, m.keys.Down):
		// upper bound is enforced in applyScrolling
		m.scrollPositions[m.activeTab]++

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Refresh):
		m.refresh()

	case key.Matches(msg, m.keys.Clear):
		n := len(m.source.Watcher.RetainedKeys())
		m.source.Watcher.ClearWatchedReferences()
		m.status = fmt.Sprintf("cleared %d watched references", n)
		m.refresh()

	case key.Matches(msg, m.keys.Leak):
		m.runWorkload("leaked", m.leak)

	case key.Matches(msg, m.keys.Release):
		m.runWorkload("released", m.release)

	case key.Matches(msg, m.keys.Reset):
		if m.source.Workload != nil {
			m.status = fmt.Sprintf("dropped %d leaked widgets", m.source.Workload.Reset())
			m.refresh()
		}
	}
	return m, nil
}

func (m *Model) leak() ([]string, error)    { return m.source.Workload.Leak(1) }
func (m *Model) release() ([]string, error) { return m.source.Workload.Release(1) }

func (m *Model) runWorkload(verb string, run func() ([]string, error)) {
	if m.source.Workload == nil {
		m.status = "no demo workload attached"
		return
	}
	keys, err := run()
	if err != nil {
		m.status = "error: " + err.Error()
		return
	}
	if len(keys) > 0 && keys[0] != "" {
		m.status = fmt.Sprintf("%s widget %s", verb, shortKey(keys[0]))
	} else {
		m.status = verb + " widget (watcher disabled)"
	}
	m.refresh()
}

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	header := m.renderHeader()
	tabBar := m.renderTabBar()
	helpView := m.help.View(m.keys)

	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(tabBar) - lipgloss.Height(helpView)
	contentHeight = max(contentHeight, 1)

	content := m.applyScrolling(m.renderActiveTab(), contentHeight)
	content = lipgloss.NewStyle().Height(contentHeight).Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, header, tabBar, content, helpView)
}

func (m *Model) renderHeader() string {
	headerLine := "🔍 refwatch • " + m.getStatus()
	if m.status != "" {
		headerLine += " • " + MutedStyle.Render(m.status)
	}
	separatorLine := strings.Repeat("─", m.width)

	return lipgloss.JoinVertical(lipgloss.Left,
		HeaderStyle.Width(m.width).Render(headerLine),
		MutedStyle.Render(separatorLine),
	)
}

func (m *Model) getStatus() string {
	snap := m.snapshot
	switch {
	case snap.Disabled:
		return MutedStyle.Render("⏸ disabled")
	case snap.Err != nil:
		return CriticalStyle.Render("🔴 " + snap.Err.Error())
	case len(snap.RetainedKeys) == 0:
		return GoodStyle.Render("🟢 nothing retained")
	default:
		return WarningStyle.Render(fmt.Sprintf("🟠 %d retained", len(snap.RetainedKeys)))
	}
}

func (m *Model) renderTabBar() string {
	var tabs []string
	for _, tab := range GetAllTabs() {
		label := fmt.Sprintf("%s (%d)", tab, m.countFor(tab))
		if tab == m.activeTab {
			tabs = append(tabs, TabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, TabInactiveStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m *Model) countFor(tab TabType) int {
	switch tab {
	case RetainedTab:
		return len(m.snapshot.RetainedKeys)
	case LeaksTab:
		return len(m.snapshot.Leaks)
	case DumpsTab:
		return len(m.snapshot.DumpFiles)
	default:
		return 0
	}
}

func (m *Model) renderActiveTab() string {
	switch m.activeTab {
	case RetainedTab:
		return m.renderRetained()
	case LeaksTab:
		return m.renderLeaks()
	case DumpsTab:
		return m.renderDumps()
	default:
		return CriticalStyle.Render("Unknown tab")
	}
}

func (m *Model) renderRetained() string {
	var b strings.Builder
	if m.snapshot.Leaked >= 0 {
		fmt.Fprintf(&b, "%s %d\n\n", MutedStyle.Render("widgets parked by demo workload:"), m.snapshot.Leaked)
	}
	if len(m.snapshot.RetainedKeys) == 0 {
		b.WriteString(GoodStyle.Render("No retained references."))
		return b.String()
	}
	for _, k := range m.snapshot.RetainedKeys {
		b.WriteString(TextStyle.Render(k) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderLeaks() string {
	if len(m.snapshot.Leaks) == 0 {
		return MutedStyle.Render("No leaks analyzed yet.")
	}

	var b strings.Builder
	for _, leak := range m.snapshot.Leaks {
		name := leak.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "%s %s  %s\n",
			WarningStyle.Render(name),
			MutedStyle.Render(shortKey(leak.Key)),
			MutedStyle.Render(leak.AnalyzedAt.Format(time.TimeOnly)))

		watch := utils.FormatDuration(time.Duration(leak.WatchDurationMs) * time.Millisecond)
		dump := utils.FormatDuration(time.Duration(leak.HeapDumpDurationMs) * time.Millisecond)
		detail := fmt.Sprintf("  watched %s • dump %s", watch, dump)
		if leak.Summary != nil {
			detail += fmt.Sprintf(" • %s • %d objects", leak.Summary.Size, leak.Summary.Objects)
		}
		b.WriteString(InfoStyle.Render(detail) + "\n")
		if leak.Failed() {
			b.WriteString(CriticalStyle.Render("  "+leak.Error) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderDumps() string {
	if len(m.snapshot.DumpFiles) == 0 {
		return MutedStyle.Render("No heap dumps stored.")
	}
	var b strings.Builder
	if m.source.Dumps != nil {
		b.WriteString(MutedStyle.Render(m.source.Dumps.Path()) + "\n\n")
	}
	for _, f := range m.snapshot.DumpFiles {
		b.WriteString(TextStyle.Render(filepath.Base(f)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
