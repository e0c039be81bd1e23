// Package tui holds the Bubble Tea models behind the interactive specrepo
// commands.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	ColorHeader = lipgloss.Color("33")
	ColorLabel  = lipgloss.Color("246")
	ColorValue  = lipgloss.Color("252")
	ColorMuted  = lipgloss.Color("240")
	ColorError  = lipgloss.Color("196")
)

//nolint:gochecknoglobals // immutable styles shared by every view
var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorHeader)
	LabelStyle  = lipgloss.NewStyle().Foreground(ColorLabel)
	ValueStyle  = lipgloss.NewStyle().Foreground(ColorValue)
	SubtleStyle = lipgloss.NewStyle().Foreground(ColorMuted)
	ErrorStyle  = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
)

// ViewState is the screen a model is showing.
type ViewState int

// View states.
const (
	ViewStateLoading ViewState = iota
	ViewStateList
	ViewStateDetail
	ViewStateError
	ViewStateQuitting
)

// Key bindings.
const (
	keyQuit     = "q"
	keyCtrlC    = "ctrl+c"
	keyEnter    = "enter"
	keyEsc      = "esc"
	keySlash    = "/"
	keyClear    = "c"
	keyNext     = "n"
	keyPrevious = "p"
	keyRight    = "right"
	keyLeft     = "left"
	keyPgDown   = "pgdown"
	keyPgUp     = "pgup"
)

const (
	defaultWidth         = 120
	defaultHeight        = 24
	chromeHeight         = 6
	minTableHeight       = 3
	filterInputCharLimit = 256
	filterInputWidth     = 60
)
