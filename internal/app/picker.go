package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/junegunn/fzf/src/util"
)

// builtinPicker is the full-screen fallback selector: a filterable table
// of merged sessions with the same enter/ctrl-d actions as the external
// finder.
type builtinPicker struct{}

func (b *builtinPicker) Choose(entries []Entry, prompt string) (*Entry, Action, error) {
	m := newPickerModel(entries, prompt)
	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, "", err
	}
	result, ok := finalModel.(pickerModel)
	if !ok {
		return nil, "", fmt.Errorf("unexpected picker model type")
	}
	if result.cancelled || result.selected == nil {
		return nil, "", nil
	}
	return result.selected, result.action, nil
}

type pickerRow struct {
	entry Entry
	score int
}

type pickerModel struct {
	prompt     string
	allRows    []pickerRow
	visible    []pickerRow
	queryInput textinput.Model
	table      table.Model
	slab       *util.Slab
	selected   *Entry
	action     Action
	cancelled  bool
	width      int
	height     int
}

var pickerHelpStyle = lipgloss.NewStyle().Faint(true)

func newPickerModel(entries []Entry, prompt string) pickerModel {
	input := textinput.New()
	input.Placeholder = "fuzzy search"
	input.Prompt = prompt + "> "
	input.Focus()

	cols := []table.Column{
		{Title: "SESSION", Width: 32},
		{Title: "STATUS", Width: 6},
		{Title: "WINS", Width: 5},
		{Title: "SAVED", Width: 16},
	}
	tbl := table.New(
		table.WithColumns(cols),
		table.WithRows(nil),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	m := pickerModel{
		prompt:     prompt,
		queryInput: input,
		table:      tbl,
		slab:       util.MakeSlab(100*1024, 2048),
		allRows:    make([]pickerRow, 0, len(entries)),
	}
	for _, e := range entries {
		m.allRows = append(m.allRows, pickerRow{entry: e})
	}
	m.applyFilter()
	return m
}

func (m pickerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter", "ctrl+d":
			if len(m.visible) == 0 {
				return m, nil
			}
			idx := m.table.Cursor()
			if idx >= 0 && idx < len(m.visible) {
				entry := m.visible[idx].entry
				m.selected = &entry
				m.action = ActionSelect
				if msg.String() == "ctrl+d" {
					m.action = ActionDrop
				}
				return m, tea.Quit
			}
		}
	}

	prevQuery := m.queryInput.Value()
	var cmdInput tea.Cmd
	m.queryInput, cmdInput = m.queryInput.Update(msg)
	if prevQuery != m.queryInput.Value() {
		m.applyFilter()
	}

	var cmdTable tea.Cmd
	m.table, cmdTable = m.table.Update(msg)
	return m, tea.Batch(cmdInput, cmdTable)
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(m.prompt + "\n")
	b.WriteString(pickerHelpStyle.Render("enter: switch/restore  ctrl-d: drop archive  esc: cancel") + "\n\n")
	b.WriteString(m.queryInput.View())
	b.WriteString("\n\n")
	if len(m.visible) == 0 {
		b.WriteString("No sessions match query\n")
		return b.String()
	}
	b.WriteString(m.table.View())
	return b.String()
}

func (m *pickerModel) resize() {
	if m.width <= 0 {
		return
	}
	sessionW := m.width - 35
	if sessionW < 16 {
		sessionW = 16
	}
	cols := m.table.Columns()
	if len(cols) == 4 {
		cols[0].Width = sessionW
		m.table.SetColumns(cols)
	}

	tableHeight := m.height - 7
	if tableHeight < 5 {
		tableHeight = 5
	}
	m.table.SetHeight(tableHeight)
}

func (m *pickerModel) applyFilter() {
	pattern := []rune(strings.ToLower(strings.TrimSpace(m.queryInput.Value())))
	rows := make([]pickerRow, 0, len(m.allRows))

	for _, row := range m.allRows {
		score, ok := fuzzyScore(row.entry.Name, pattern, m.slab)
		if !ok {
			continue
		}
		row.score = score
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].score > rows[j].score
	})

	m.visible = rows
	tableRows := make([]table.Row, 0, len(rows))
	for _, row := range rows {
		windows := ""
		if wc, ok := row.entry.WindowCount(); ok {
			windows = fmt.Sprintf("%dw", wc)
		}
		tableRows = append(tableRows, table.Row{
			row.entry.Name,
			row.entry.Status(),
			windows,
			formatMtime(row.entry.ArchiveMtime),
		})
	}
	m.table.SetRows(tableRows)

	if len(tableRows) == 0 {
		m.table.SetCursor(0)
		return
	}
	if m.table.Cursor() >= len(tableRows) {
		m.table.SetCursor(len(tableRows) - 1)
	}
}
