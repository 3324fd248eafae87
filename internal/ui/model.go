// Package ui renders the indicator menu as a terminal UI.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"

	"github.com/e7d/rustdesk-indicator/internal/clipboard"
	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/menu"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
)

var uiLog = logging.ForComponent(logging.CompUI)

// copyToClipboard is swapped in tests.
var copyToClipboard = clipboard.Copy

// StateSource provides per-cycle state. *rustdesk.Observer implements it.
type StateSource interface {
	State() rustdesk.State
	Subscribe() (<-chan rustdesk.State, func())
}

// Options wires the model to the rest of the program.
type Options struct {
	Source    StateSource
	Commander menu.Commander
	Settings  config.IndicatorSettings

	// Optional live updates
	SettingsChanges <-chan *config.Settings
	ThemeChanges    <-chan bool
}

type (
	stateMsg        rustdesk.State
	stateClosedMsg  struct{}
	settingsMsg     *config.Settings
	themeChangedMsg bool
	actionDoneMsg   struct {
		label string
		err   error
	}
)

type rowKind int

const (
	rowTitle rowKind = iota
	rowItem
	rowSeparator
)

type row struct {
	kind rowKind
	text string
	item menu.Item
}

// Model is the bubbletea model for the indicator.
type Model struct {
	ctx       context.Context
	commander menu.Commander
	updates   <-chan rustdesk.State
	cancelSub func()
	settingCh <-chan *config.Settings
	themeCh   <-chan bool

	settings        config.IndicatorSettings
	settingsPending bool
	state           rustdesk.State
	menu            menu.Menu

	rows   []row
	cursor int

	filter    textinput.Model
	filtering bool
	keys      keyMap
	help      help.Model

	width  int
	height int
	status string
	err    error
}

// New creates the model. It subscribes to the source immediately so no
// cycle is missed between construction and Init.
func New(ctx context.Context, opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "peer id"
	ti.Prompt = "/ "
	ti.CharLimit = 32

	m := &Model{
		ctx:       ctx,
		commander: opts.Commander,
		settingCh: opts.SettingsChanges,
		themeCh:   opts.ThemeChanges,
		settings:  opts.Settings,
		filter:    ti,
		keys:      newKeyMap(),
		help:      help.New(),
		width:     60,
		state:     rustdesk.NewState(),
	}
	if opts.Source != nil {
		m.updates, m.cancelSub = opts.Source.Subscribe()
		m.state = opts.Source.State()
	}
	m.rebuild()
	return m
}

// Close releases the state subscription.
func (m *Model) Close() {
	if m.cancelSub != nil {
		m.cancelSub()
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		listenForState(m.updates),
		listenForSettings(m.settingCh),
		listenForTheme(m.themeCh),
	)
}

func listenForState(ch <-chan rustdesk.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return stateClosedMsg{}
		}
		return stateMsg(st)
	}
}

func listenForSettings(ch <-chan *config.Settings) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok || s == nil {
			return nil
		}
		return settingsMsg(s)
	}
}

func listenForTheme(ch <-chan bool) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		isDark, ok := <-ch
		if !ok {
			return nil
		}
		return themeChangedMsg(isDark)
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		st := rustdesk.State(msg)
		m.state = st
		if menu.NeedsUpdate(false, st, m.settingsPending) {
			m.settingsPending = false
			m.rebuild()
		}
		return m, listenForState(m.updates)

	case stateClosedMsg:
		return m, nil

	case settingsMsg:
		m.settings = msg.Indicator
		m.settingsPending = true
		uiLog.Debug("settings_pending")
		return m, listenForSettings(m.settingCh)

	case themeChangedMsg:
		if msg {
			InitTheme(string(ThemeDark))
		} else {
			InitTheme(string(ThemeLight))
		}
		return m, listenForTheme(m.themeCh)

	case actionDoneMsg:
		m.err = msg.err
		if msg.err != nil {
			m.status = ""
			uiLog.Warn("menu_action_failed", slog.String("item", msg.label), slog.String("error", msg.err.Error()))
		} else {
			m.status = msg.label
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Select):
		if it, ok := m.selected(); ok {
			return m, m.execute(it)
		}
	case key.Matches(msg, m.keys.Close):
		if it, ok := m.selected(); ok {
			if closeItem, ok := menu.CloseItem(it); ok {
				return m, m.execute(closeItem)
			}
		}
	case key.Matches(msg, m.keys.Copy):
		if it, ok := m.selected(); ok && it.SessionID != "" {
			return m, copyPeerID(it.SessionID)
		}
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	case key.Matches(msg, m.keys.Clear):
		m.filter.SetValue("")
		m.applyFilter()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) execute(it menu.Item) tea.Cmd {
	if m.commander == nil {
		return nil
	}
	ctx, cmd, mn := m.ctx, m.commander, m.menu
	label := it.Label
	if it.SessionID != "" {
		label = menu.SessionLabel(it.SessionID) + ": " + label
	}
	return func() tea.Msg {
		return actionDoneMsg{label: label, err: mn.Execute(ctx, cmd, it)}
	}
}

func copyPeerID(id string) tea.Cmd {
	return func() tea.Msg {
		method, err := copyToClipboard(id, true)
		if err == nil {
			uiLog.Debug("peer_id_copied", slog.String("method", string(method)))
		}
		return actionDoneMsg{label: "copied " + menu.SessionLabel(id), err: err}
	}
}

// rebuild derives the menu from the current state and settings.
func (m *Model) rebuild() {
	m.menu = menu.Build(m.state, m.settings)
	m.applyFilter()
}

// applyFilter lays out rows, keeping only session sections matching the
// filter, and keeps the cursor on the same entry when it survives.
func (m *Model) applyFilter() {
	prev, hadPrev := m.selected()

	sections := m.menu.Sections
	if query := strings.TrimSpace(m.filter.Value()); query != "" {
		sections = filterSessions(sections, query)
	}

	m.rows = m.rows[:0]
	for i, sec := range sections {
		if i > 0 {
			m.rows = append(m.rows, row{kind: rowSeparator})
		}
		if sec.Title != "" {
			m.rows = append(m.rows, row{kind: rowTitle, text: sec.Title})
		}
		for _, it := range sec.Items {
			m.rows = append(m.rows, row{kind: rowItem, text: it.Label, item: it})
		}
	}

	m.cursor = -1
	if hadPrev {
		for i, r := range m.rows {
			if r.kind == rowItem && r.item.Label == prev.Label && r.item.SessionID == prev.SessionID {
				m.cursor = i
				break
			}
		}
	}
	if m.cursor < 0 {
		m.cursor = 0
		m.moveCursor(0)
	}
}

func filterSessions(sections []menu.Section, query string) []menu.Section {
	var targets []string
	var idx []int
	for i, sec := range sections {
		if sec.SessionID != "" {
			targets = append(targets, sec.SessionID+" "+sec.Title)
			idx = append(idx, i)
		}
	}
	keep := make(map[int]bool)
	for _, match := range fuzzy.Find(query, targets) {
		keep[idx[match.Index]] = true
	}

	out := make([]menu.Section, 0, len(sections))
	for i, sec := range sections {
		if sec.SessionID != "" && !keep[i] {
			continue
		}
		out = append(out, sec)
	}
	return out
}

// moveCursor steps delta selectable rows; delta 0 snaps to the nearest one.
func (m *Model) moveCursor(delta int) {
	if len(m.rows) == 0 {
		m.cursor = 0
		return
	}
	step := delta
	if step == 0 {
		step = 1
	}
	i := m.cursor
	if delta != 0 {
		i += step
	}
	for i >= 0 && i < len(m.rows) {
		if m.rows[i].kind == rowItem {
			m.cursor = i
			return
		}
		i += step
	}
}

func (m *Model) selected() (menu.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) || m.rows[m.cursor].kind != rowItem {
		return menu.Item{}, false
	}
	return m.rows[m.cursor].item, true
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	width := m.width
	if width <= 0 {
		width = 60
	}

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	for i, r := range m.rows {
		switch r.kind {
		case rowSeparator:
			b.WriteString(SeparatorStyle.Render(strings.Repeat("─", min(width, 40))))
		case rowTitle:
			b.WriteString(SectionTitleStyle.Render(truncate(r.text, width-2)))
		case rowItem:
			text := r.text
			if r.item.ClosePID > 0 {
				text += " ●"
			}
			text = truncate(text, width-4)
			if i == m.cursor {
				b.WriteString(SelectedItemStyle.Render(text))
			} else {
				b.WriteString(ItemStyle.Render(text))
			}
		}
		b.WriteString("\n")
	}

	if m.filtering || m.filter.Value() != "" {
		b.WriteString("\n")
		b.WriteString(FilterPromptStyle.Render(m.filter.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderHeader() string {
	parts := []string{TitleStyle.Render("RustDesk")}
	icon := m.menu.Icon
	if n := len(m.state.LiveSessions()); icon.SessionOut {
		parts = append(parts, BadgeSessionOut.Render(plural(n, "session")))
	}
	if icon.SessionIn {
		parts = append(parts, BadgeSessionIn.Render("incoming"))
	}
	if icon.ServiceOffline {
		parts = append(parts, BadgeServiceOffline.Render("service offline"))
	} else {
		parts = append(parts, BadgeServiceOnline.Render("service"))
	}
	if !m.menu.Visible {
		parts = append(parts, DimStyle.Render("(hidden)"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, " "))
}

func (m *Model) renderStatus() string {
	if m.err != nil {
		msg := m.err.Error()
		if errors.Is(m.err, rustdesk.ErrThrottled) {
			msg = "slow down"
		}
		return ErrorStyle.Render(truncate(msg, m.width))
	}
	line := fmt.Sprintf("cycle %d", m.state.Cycle)
	if !m.state.ObservedAt.IsZero() {
		line += " · " + m.state.ObservedAt.Format("15:04:05")
	}
	if m.status != "" {
		line += " · " + m.status
	}
	return StatusStyle.Render(truncate(line, m.width))
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// Run starts the program and blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	m := New(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}
