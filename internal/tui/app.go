// internal/tui/app.go
//
// The chain monitor. It is read-only: a chain list on the left, the selected
// chain's segments in a table on the right, and the transition journal at
// the bottom. Everything refreshes on a tick.

package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/chainforge/internal/chain"
	"github.com/kingrea/chainforge/internal/fabricator"
	"github.com/kingrea/chainforge/internal/logbook"
	"github.com/kingrea/chainforge/internal/work"
)

const (
	defaultRefreshInterval = 2 * time.Second
	journalLines           = 8
)

// Source is what the monitor reads. *work.Service satisfies it; StoreSource
// adapts a bare chain store for monitoring another process.
type Source interface {
	Status(ctx context.Context) ([]work.ChainStatus, error)
	Segments(ctx context.Context, chainID string) ([]chain.Segment, error)
}

// StoreSource reads chain status straight from a store.
type StoreSource struct {
	Store chain.Store
}

// Status implements Source.
func (s StoreSource) Status(ctx context.Context) ([]work.ChainStatus, error) {
	chains, err := s.Store.Chains(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(chains, func(i, j int) bool { return chains[i].CreatedAt.Before(chains[j].CreatedAt) })
	out := make([]work.ChainStatus, 0, len(chains))
	for _, c := range chains {
		st, err := work.StatusOf(ctx, s.Store, c)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Segments implements Source.
func (s StoreSource) Segments(ctx context.Context, chainID string) ([]chain.Segment, error) {
	return s.Store.Segments(ctx, chainID, chain.SegmentCrafted, chain.SegmentDubbing, chain.SegmentDubbed, chain.SegmentFailed)
}

type pane int

const (
	paneChains pane = iota
	paneSegments
)

type refreshMsg struct {
	chains   []work.ChainStatus
	chainID  string
	segments []chain.Segment
	err      error
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the tail of a transition journal.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// WithRefreshInterval overrides the refresh tick.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.interval = d
		}
	}
}

// App is the monitor model.
type App struct {
	source   Source
	logbook  *logbook.Logbook
	interval time.Duration

	chainList list.Model
	segTable  table.Model
	focus     pane

	statuses []work.ChainStatus
	selected string
	segments []chain.Segment
	err      string

	width  int
	height int
}

// chainItem implements list.Item for one chain.
type chainItem struct {
	status work.ChainStatus
}

func (i chainItem) Title() string {
	name := i.status.Chain.Name
	if name == "" {
		name = i.status.Chain.ID
	}
	return name
}

func (i chainItem) Description() string {
	c := i.status.Chain
	state := string(c.State)
	if i.status.Paused {
		state += " (paused)"
	}
	return fmt.Sprintf("%s · %s · %s ahead", state, c.TemplateKey,
		fabricator.FormatChainSeconds(i.status.FabricatedToMicros-i.status.CursorMicros))
}

func (i chainItem) FilterValue() string { return i.status.Chain.Name }

var segmentColumns = []table.Column{
	{Title: "#", Width: 5},
	{Title: "Type", Width: 10},
	{Title: "State", Width: 9},
	{Title: "Begin", Width: 10},
	{Title: "Length", Width: 9},
	{Title: "Tempo", Width: 6},
	{Title: "Key", Width: 9},
	{Title: "Int.", Width: 5},
	{Title: "Choices", Width: 7},
	{Title: "Missing", Width: 7},
}

// NewApp builds a monitor over source.
func NewApp(source Source, opts ...AppOption) *App {
	chainList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	chainList.Title = "Chains"
	chainList.SetShowStatusBar(false)
	chainList.SetFilteringEnabled(false)
	chainList.SetShowHelp(false)

	segTable := table.New(
		table.WithColumns(segmentColumns),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#5B8DEF"))
	segTable.SetStyles(styles)

	app := &App{
		source:    source,
		interval:  defaultRefreshInterval,
		chainList: chainList,
		segTable:  segTable,
		focus:     paneChains,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.resize()
	return app
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetch(a.selected)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.resize()
		return a, nil

	case refreshMsg:
		a.apply(msg)
		return a, a.scheduleRefresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "r":
			return a, a.fetch(a.selected)
		case "tab":
			a.toggleFocus()
			return a, nil
		case "right", "l":
			a.setFocus(paneSegments)
			return a, nil
		case "left", "h":
			a.setFocus(paneChains)
			return a, nil
		}
	}

	if a.focus == paneSegments {
		var cmd tea.Cmd
		a.segTable, cmd = a.segTable.Update(msg)
		return a, cmd
	}
	var cmds []tea.Cmd
	var listCmd tea.Cmd
	a.chainList, listCmd = a.chainList.Update(msg)
	if listCmd != nil {
		cmds = append(cmds, listCmd)
	}
	if id := a.highlightedChain(); id != "" && id != a.selected {
		a.selected = id
		a.segments = nil
		a.segTable.SetRows(nil)
		cmds = append(cmds, a.fetch(id))
	}
	return a, tea.Batch(cmds...)
}

func (a *App) toggleFocus() {
	if a.focus == paneChains {
		a.setFocus(paneSegments)
		return
	}
	a.setFocus(paneChains)
}

func (a *App) setFocus(p pane) {
	a.focus = p
	if p == paneSegments {
		a.segTable.Focus()
	} else {
		a.segTable.Blur()
	}
}

func (a *App) highlightedChain() string {
	item, ok := a.chainList.SelectedItem().(chainItem)
	if !ok {
		return ""
	}
	return item.status.Chain.ID
}

// apply folds a snapshot into the model. A snapshot for a chain that is no
// longer selected only updates the chain list.
func (a *App) apply(msg refreshMsg) {
	if msg.err != nil {
		a.err = msg.err.Error()
		return
	}
	a.err = ""
	a.statuses = msg.chains
	items := make([]list.Item, len(msg.chains))
	idx := -1
	for i, st := range msg.chains {
		items[i] = chainItem{status: st}
		if st.Chain.ID == a.selected {
			idx = i
		}
	}
	a.chainList.SetItems(items)
	if idx >= 0 {
		a.chainList.Select(idx)
	} else if len(items) > 0 {
		a.chainList.Select(0)
		a.selected = msg.chains[0].Chain.ID
	} else {
		a.selected = ""
	}
	if msg.chainID != "" && msg.chainID == a.selected {
		a.segments = msg.segments
		a.segTable.SetRows(segmentRows(msg.segments))
	}
}

func (a *App) fetch(chainID string) tea.Cmd {
	source := a.source
	return func() tea.Msg {
		return snapshot(source, chainID)
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	source, chainID := a.source, a.selected
	return tea.Tick(a.interval, func(time.Time) tea.Msg {
		return snapshot(source, chainID)
	})
}

func snapshot(source Source, chainID string) refreshMsg {
	if source == nil {
		return refreshMsg{err: fmt.Errorf("tui: no chain source")}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	statuses, err := source.Status(ctx)
	if err != nil {
		return refreshMsg{err: err}
	}
	if chainID == "" && len(statuses) > 0 {
		chainID = statuses[0].Chain.ID
	}
	msg := refreshMsg{chains: statuses, chainID: chainID}
	if chainID == "" {
		return msg
	}
	segs, err := source.Segments(ctx, chainID)
	if err != nil {
		return refreshMsg{chains: statuses, err: err}
	}
	msg.segments = segs
	return msg
}

func segmentRows(segs []chain.Segment) []table.Row {
	rows := make([]table.Row, 0, len(segs))
	for _, s := range segs {
		tempo, key, intensity := "", s.Key, ""
		if s.Tempo > 0 {
			tempo = fmt.Sprintf("%.0f", s.Tempo)
			intensity = fmt.Sprintf("%.2f", s.Intensity)
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", s.ID),
			string(s.Type),
			string(s.State),
			fabricator.FormatChainSeconds(s.BeginAtChainMicros),
			fabricator.FormatChainSeconds(s.DurationMicros),
			tempo,
			key,
			intensity,
			fmt.Sprintf("%d", len(s.Choices)),
			fmt.Sprintf("%d", len(s.Missing)),
		})
	}
	return rows
}

func (a *App) resize() {
	leftWidth, rightWidth := a.columns()
	bodyHeight := max(16, a.height-journalLines-8)
	a.chainList.SetSize(max(20, leftWidth-4), bodyHeight)
	a.segTable.SetWidth(max(20, rightWidth-4))
	a.segTable.SetHeight(max(4, bodyHeight-2))
}

func (a *App) columns() (int, int) {
	width := a.width
	if width <= 0 {
		width = 120
	}
	leftWidth := max(28, width/4)
	return leftWidth, max(20, width-leftWidth-2)
}

// View renders the monitor.
func (a *App) View() string {
	leftWidth, rightWidth := a.columns()
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("CHAINFORGE")

	leftBox := a.box(a.focus == paneChains).Width(leftWidth - 2).Render(a.renderChains())
	rightBox := a.box(a.focus == paneSegments).Width(rightWidth - 2).Render(a.renderSegments())
	body := lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)

	parts := []string{header, body}
	if a.err != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("error: "+a.err))
	}
	if journal := a.renderJournal(); journal != "" {
		parts = append(parts, journal)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		Render("[tab] switch pane · [↑/↓] move · [r] refresh · [q] quit")
	parts = append(parts, footer)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a *App) box(focused bool) lipgloss.Style {
	border := lipgloss.Color("#444444")
	if focused {
		border = lipgloss.Color("#5B8DEF")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1)
}

func (a *App) renderChains() string {
	if len(a.statuses) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).
			Render("No chains yet. Start one with `chainforge run`.")
	}
	return a.chainList.View()
}

func (a *App) renderSegments() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(a.segmentsTitle())
	if len(a.segments) == 0 {
		note := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Render("No segments crafted.")
		return lipgloss.JoinVertical(lipgloss.Left, title, note)
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, a.segTable.View(), a.renderSelectedSegment())
}

func (a *App) segmentsTitle() string {
	for _, st := range a.statuses {
		if st.Chain.ID != a.selected {
			continue
		}
		counts := make([]string, 0, len(st.Segments))
		for _, state := range []chain.SegmentState{chain.SegmentCrafted, chain.SegmentDubbing, chain.SegmentDubbed, chain.SegmentFailed} {
			if n := st.Segments[state]; n > 0 {
				counts = append(counts, fmt.Sprintf("%d %s", n, strings.ToLower(string(state))))
			}
		}
		title := fmt.Sprintf("SEGMENTS · %s", st.Chain.Name)
		if len(counts) > 0 {
			title += " · " + strings.Join(counts, ", ")
		}
		return title
	}
	return "SEGMENTS"
}

// renderSelectedSegment shows the choices and gaps of the highlighted row.
func (a *App) renderSelectedSegment() string {
	idx := a.segTable.Cursor()
	if idx < 0 || idx >= len(a.segments) {
		return ""
	}
	seg := a.segments[idx]
	timing, timingErr := fabricator.SegmentTiming(seg)
	var lines []string
	for _, c := range seg.Choices {
		line := fmt.Sprintf("%-6s %s", c.ProgramType, c.ProgramID)
		if c.InstrumentID != "" {
			line += " → " + c.InstrumentID
		}
		if c.Mute {
			line += " (muted)"
		}
		if picks := seg.PicksOf(c.ID); len(picks) > 0 && timingErr == nil {
			line += fmt.Sprintf(" · %d picks from %s", len(picks), timing.FormatPosition(picks[0].StartAtSegmentMicros))
		}
		lines = append(lines, line)
	}
	for _, m := range seg.Missing {
		lines = append(lines, "missing "+m)
	}
	if seg.Error != "" {
		lines = append(lines, "error "+seg.Error)
	}
	if len(lines) == 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		MarginTop(1).
		Render(strings.Join(lines, "\n"))
}

func (a *App) renderJournal() string {
	if a.logbook == nil {
		return ""
	}
	entries := a.logbook.Entries(journalLines)
	if len(entries) == 0 {
		return ""
	}
	_, total := a.logbook.Tail(0)
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s %s", e.At.Local().Format("15:04:05"), e.Level, e.Message)
		if e.Level != logbook.LevelInfo {
			line = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Render(line)
		}
		lines = append(lines, line)
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "journal"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(fmt.Sprintf("JOURNAL · %s · %d entries", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
}
