package tui

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/paging"
)

// PageLoader fetches one 1-based page of the documents matching every
// condition.
type PageLoader func(ctx context.Context, conditions []string, page int) (*paging.Result[*document.Document], error)

// PageLoadedMsg carries a fetched page.
type PageLoadedMsg struct {
	Page   int
	Result *paging.Result[*document.Document]
}

// PageErrorMsg reports a failed fetch.
type PageErrorMsg struct {
	Err error
}

// BrowseModel pages through query results one page at a time. Conditions
// can be added while browsing; each change reloads from the first page.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View interface methods.
type BrowseModel struct {
	ctx  context.Context
	load PageLoader

	state      ViewState
	conditions []string
	page       int
	result     *paging.Result[*document.Document]

	table      table.Model
	textInput  textinput.Model
	showFilter bool
	selected   int

	width  int
	height int

	err      error
	inputErr error
}

// NewBrowseModel returns a model that starts on page 1 of conditions.
func NewBrowseModel(ctx context.Context, load PageLoader, conditions []string) BrowseModel {
	m := BrowseModel{
		ctx:        ctx,
		load:       load,
		state:      ViewStateLoading,
		conditions: slices.Clone(conditions),
		page:       1,
		textInput:  newTextInput(),
		width:      defaultWidth,
		height:     defaultHeight,
	}
	m.table = m.buildTable()
	return m
}

func newTextInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "data.age>=18"
	ti.CharLimit = filterInputCharLimit
	ti.Width = filterInputWidth
	return ti
}

// Init loads the first page (Bubble Tea interface).
func (m BrowseModel) Init() tea.Cmd {
	return m.loadPage(m.page)
}

// loadPage fetches page in the background.
func (m BrowseModel) loadPage(page int) tea.Cmd {
	ctx, load, conditions := m.ctx, m.load, slices.Clone(m.conditions)
	return func() tea.Msg {
		result, err := load(ctx, conditions, page)
		if err != nil {
			return PageErrorMsg{Err: err}
		}
		return PageLoadedMsg{Page: page, Result: result}
	}
}

// Update handles messages (Bubble Tea interface).
func (m BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.buildTable()
		return m, nil
	case PageLoadedMsg:
		m.page = msg.Page
		m.result = msg.Result
		m.state = ViewStateList
		m.err = nil
		m.table = m.buildTable()
		return m, nil
	case PageErrorMsg:
		m.err = msg.Err
		m.state = ViewStateError
		return m, nil
	}

	if m.showFilter {
		return m.handleFilterInput(msg)
	}

	switch m.state {
	case ViewStateList:
		return m.handleListUpdate(msg)
	case ViewStateDetail:
		return m.handleDetailUpdate(msg)
	case ViewStateLoading, ViewStateError:
		return m.handleQuitOnly(msg)
	case ViewStateQuitting:
		return m, nil
	default:
		return m, nil
	}
}

func (m BrowseModel) handleFilterInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.showFilter = false
			m.textInput.Blur()
			m.textInput.SetValue("")
			m.inputErr = nil
			return m, nil
		case keyEnter:
			raw := m.textInput.Value()
			if _, err := expr.ParseCondition(raw); err != nil {
				m.inputErr = err
				return m, nil
			}
			m.showFilter = false
			m.textInput.Blur()
			m.textInput.SetValue("")
			m.inputErr = nil
			m.conditions = append(m.conditions, raw)
			m.state = ViewStateLoading
			return m, m.loadPage(1)
		}
	}
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m BrowseModel) handleListUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}

	switch keyMsg.String() {
	case keyQuit, keyCtrlC:
		m.state = ViewStateQuitting
		return m, tea.Quit
	case keyEnter:
		m.selected = m.table.Cursor()
		if m.result != nil && m.selected >= 0 && m.selected < m.result.Count() {
			m.state = ViewStateDetail
		}
		return m, nil
	case keySlash:
		m.showFilter = true
		m.textInput.Focus()
		return m, textinput.Blink
	case keyClear:
		if len(m.conditions) == 0 {
			return m, nil
		}
		m.conditions = nil
		m.state = ViewStateLoading
		return m, m.loadPage(1)
	case keyNext, keyRight, keyPgDown:
		if m.result == nil || !m.result.Meta().HasNext {
			return m, nil
		}
		m.state = ViewStateLoading
		return m, m.loadPage(m.page + 1)
	case keyPrevious, keyLeft, keyPgUp:
		if m.page <= 1 {
			return m, nil
		}
		m.state = ViewStateLoading
		return m, m.loadPage(m.page - 1)
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(keyMsg)
		return m, cmd
	}
}

func (m BrowseModel) handleDetailUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyQuit, keyCtrlC:
			m.state = ViewStateQuitting
			return m, tea.Quit
		case keyEsc, "backspace":
			m.state = ViewStateList
			m.table.Focus()
			return m, nil
		}
	}
	return m, nil
}

func (m BrowseModel) handleQuitOnly(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyQuit, keyCtrlC:
			m.state = ViewStateQuitting
			return m, tea.Quit
		case keyEsc:
			if m.state == ViewStateError && m.result != nil {
				m.state = ViewStateList
			}
			return m, nil
		}
	}
	return m, nil
}

// Conditions returns the conditions currently applied.
func (m BrowseModel) Conditions() []string { return slices.Clone(m.conditions) }

// Page returns the 1-based page on display.
func (m BrowseModel) Page() int { return m.page }

// State returns the current screen.
func (m BrowseModel) State() ViewState { return m.state }

// buildTable creates a table sized to the window holding the current page.
func (m BrowseModel) buildTable() table.Model {
	idWidth, kindWidth, createdWidth := 26, 12, 20
	dataWidth := max(m.width-idWidth-kindWidth-createdWidth-8, 10) //nolint:mnd // column padding
	columns := []table.Column{
		{Title: "ID", Width: idWidth},
		{Title: "Kind", Width: kindWidth},
		{Title: "Created", Width: createdWidth},
		{Title: "Data", Width: dataWidth},
	}

	var rows []table.Row
	if m.result != nil {
		for _, d := range m.result.Items() {
			rows = append(rows, table.Row{
				d.ID,
				d.Kind,
				d.CreatedAt.UTC().Format(time.RFC3339),
				d.Summary(dataWidth),
			})
		}
	}

	return table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-chromeHeight, minTableHeight)),
	)
}
