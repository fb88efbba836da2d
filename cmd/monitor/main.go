// ====================================
// File: cmd/monitor/main.go
// ====================================
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/snowball-dex/launchpad/internal/core"
	"github.com/snowball-dex/launchpad/internal/journal"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")).
			Bold(true).
			Padding(0, 1)

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	tableBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)
)

// poolSummary is a pool roster row reconstructed from the journal stream.
type poolSummary struct {
	pool    string
	symbol  string
	state   string
	trades  int
	volume  *uint256.Int
	pending *uint256.Int
	burned  *uint256.Int
	created time.Time
}

// refreshMsg carries a fresh read of the journal into the Update loop.
type refreshMsg struct {
	events []core.Event
	pools  []*poolSummary
	counts map[string]int64
	err    error
}

type tickMsg struct{}

type model struct {
	journal *journal.Journal
	limit   int

	pools  table.Model
	events table.Model
	counts map[string]int64
	err    error
}

func newModel(j *journal.Journal, limit int) model {
	pools := table.New(
		table.WithColumns([]table.Column{
			{Title: "Symbol", Width: 8},
			{Title: "Pool", Width: 14},
			{Title: "State", Width: 10},
			{Title: "Trades", Width: 7},
			{Title: "Volume", Width: 16},
			{Title: "Pending", Width: 12},
			{Title: "Burned", Width: 12},
		}),
		table.WithHeight(8),
	)
	events := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 19},
			{Title: "Block", Width: 8},
			{Title: "Event", Width: 22},
			{Title: "Details", Width: 56},
		}),
		table.WithFocused(true),
		table.WithHeight(14),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Foreground(lipgloss.Color("86")).
		Bold(true).
		BorderBottom(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	pools.SetStyles(styles)
	events.SetStyles(styles)

	return model{journal: j, limit: limit, pools: pools, events: events}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refresh, tea.EnterAltScreen)
}

func (m model) refresh() tea.Msg {
	recent, err := m.journal.Recent(m.limit)
	if err != nil {
		return refreshMsg{err: err}
	}
	counts, err := m.journal.Counts()
	if err != nil {
		return refreshMsg{err: err}
	}
	// The roster needs the whole stream in order, not just the recent window.
	history, err := m.journal.SinceBlock(0)
	if err != nil {
		return refreshMsg{err: err}
	}
	return refreshMsg{events: recent, pools: rosterFrom(history), counts: counts}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		case "tab":
			if m.events.Focused() {
				m.events.Blur()
				m.pools.Focus()
			} else {
				m.pools.Blur()
				m.events.Focus()
			}
			return m, nil
		}

	case tickMsg:
		return m, m.refresh

	case refreshMsg:
		m.err = msg.err
		if msg.err == nil {
			m.counts = msg.counts
			m.pools.SetRows(poolRows(msg.pools))
			m.events.SetRows(eventRows(msg.events))
		}
		return m, scheduleRefresh()

	case tea.WindowSizeMsg:
		if h := msg.Height - 18; h > 4 {
			m.events.SetHeight(h)
		}
	}

	var cmd tea.Cmd
	if m.pools.Focused() {
		m.pools, cmd = m.pools.Update(msg)
	} else {
		m.events, cmd = m.events.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Launchpad Monitor"))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(summaryLine(m.counts)))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Pools"))
	b.WriteString("\n")
	b.WriteString(tableBorderStyle.Render(m.pools.View()))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Events"))
	b.WriteString("\n")
	b.WriteString(tableBorderStyle.Render(m.events.View()))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errStyle.Render("journal read failed: " + m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(summaryStyle.Render("q quit · r refresh · tab switch pane"))
	return b.String()
}

// rosterFrom folds the ordered event stream into per-pool summaries.
func rosterFrom(history []core.Event) []*poolSummary {
	byPool := make(map[string]*poolSummary)
	get := func(pool string) *poolSummary {
		s, ok := byPool[pool]
		if !ok {
			s = &poolSummary{
				pool:    pool,
				symbol:  "?",
				state:   "active",
				volume:  uint256.NewInt(0),
				pending: uint256.NewInt(0),
				burned:  uint256.NewInt(0),
			}
			byPool[pool] = s
		}
		return s
	}

	for _, ev := range history {
		pool, _ := ev.Fields["pool"].(string)
		if pool == "" {
			continue
		}
		s := get(pool)
		switch ev.Type {
		case core.EvTokenCreated:
			if sym, ok := ev.Fields["symbol"].(string); ok {
				s.symbol = sym
			}
			s.created = ev.At
		case core.EvBuy:
			s.trades++
			addField(s.volume, ev.Fields, "value")
		case core.EvSell:
			s.trades++
			addField(s.volume, ev.Fields, "gross")
		case core.EvGraduated:
			s.state = "graduated"
		case core.EvFeeReceived:
			// The wrapper stamps the running total on every credit.
			if p, ok := parseField(ev.Fields, "pending"); ok {
				s.pending = p
			}
		case core.EvBuybackExecuted:
			s.pending = uint256.NewInt(0)
			addField(s.burned, ev.Fields, "burned")
		}
	}

	roster := make([]*poolSummary, 0, len(byPool))
	for _, s := range byPool {
		roster = append(roster, s)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].created.Before(roster[j].created) })
	return roster
}

func addField(total *uint256.Int, fields map[string]interface{}, key string) {
	if v, ok := parseField(fields, key); ok {
		total.Add(total, v)
	}
}

func parseField(fields map[string]interface{}, key string) (*uint256.Int, bool) {
	s, ok := fields[key].(string)
	if !ok {
		return nil, false
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, false
	}
	return v, true
}

func poolRows(roster []*poolSummary) []table.Row {
	rows := make([]table.Row, 0, len(roster))
	for _, s := range roster {
		rows = append(rows, table.Row{
			s.symbol,
			shortAddr(s.pool),
			s.state,
			fmt.Sprintf("%d", s.trades),
			s.volume.String(),
			s.pending.String(),
			s.burned.String(),
		})
	}
	return rows
}

func shortAddr(hex string) string {
	if len(hex) <= 12 {
		return hex
	}
	return hex[:8] + "…" + hex[len(hex)-4:]
}

func eventRows(events []core.Event) []table.Row {
	rows := make([]table.Row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, table.Row{
			ev.At.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", ev.Block),
			ev.Type,
			fieldSummary(ev.Fields),
		})
	}
	return rows
}

// fieldSummary renders event fields as key=value pairs in stable order.
func fieldSummary(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func summaryLine(counts map[string]int64) string {
	if len(counts) == 0 {
		return "no events recorded yet"
	}
	var total int64
	trades := counts[core.EvBuy] + counts[core.EvSell] + counts[core.EvRouterTrade]
	for _, n := range counts {
		total += n
	}
	return fmt.Sprintf("events %d · tokens %d · trades %d · graduations %d · buybacks %d",
		total, counts[core.EvTokenCreated], trades,
		counts[core.EvGraduated], counts[core.EvBuybackExecuted]+counts[core.EvRouterBuyback])
}

func main() {
	journalPath := flag.String("journal", "launchpad.db", "path to the journal database")
	limit := flag.Int("limit", 200, "number of recent events to display")
	flag.Parse()

	j, err := journal.Open(*journalPath, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open journal: %v\n", err)
		os.Exit(1)
	}
	defer j.Close()

	p := tea.NewProgram(newModel(j, *limit))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor error: %v\n", err)
		os.Exit(1)
	}
}
