package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// View renders the current view (Bubble Tea interface).
func (m BrowseModel) View() string {
	switch m.state {
	case ViewStateQuitting:
		return ""
	case ViewStateError:
		return m.renderErrorView()
	case ViewStateLoading:
		return m.renderLoadingView()
	case ViewStateDetail:
		return m.renderDetailView()
	case ViewStateList:
		return m.renderListView()
	default:
		return ""
	}
}

func (m BrowseModel) renderLoadingView() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderConditions(), "Loading...")
}

func (m BrowseModel) renderErrorView() string {
	lines := []string{ErrorStyle.Render(fmt.Sprintf("Error: %v", m.err))}
	if m.result != nil {
		lines = append(lines, SubtleStyle.Render("esc: back  q: quit"))
	} else {
		lines = append(lines, SubtleStyle.Render("q: quit"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderListView renders the page table with its footer and filter input.
func (m BrowseModel) renderListView() string {
	sections := []string{m.renderConditions()}

	if m.result == nil || m.result.Count() == 0 {
		sections = append(sections, SubtleStyle.Render("No documents found."))
	} else {
		sections = append(sections, m.table.View())
	}

	sections = append(sections, m.renderPaginationFooter())

	if m.showFilter {
		sections = append(sections, LabelStyle.Render("Condition: ")+m.textInput.View())
		if m.inputErr != nil {
			sections = append(sections, ErrorStyle.Render(m.inputErr.Error()))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m BrowseModel) renderConditions() string {
	if len(m.conditions) == 0 {
		return HeaderStyle.Render("All documents")
	}
	return HeaderStyle.Render("Where ") + ValueStyle.Render(strings.Join(m.conditions, " AND "))
}

func (m BrowseModel) renderPaginationFooter() string {
	if m.result == nil {
		return ""
	}
	meta := m.result.Meta()
	footer := fmt.Sprintf("Page %d of %d (%d documents)", meta.CurrentPage, max(meta.TotalPages, 1), meta.TotalItems)
	help := "enter: details  /: add condition  c: clear  n/p: page  q: quit"
	return lipgloss.JoinVertical(lipgloss.Left, LabelStyle.Render(footer), SubtleStyle.Render(help))
}

// renderDetailView shows the selected document as YAML.
func (m BrowseModel) renderDetailView() string {
	d, ok := m.result.At(m.selected)
	if !ok {
		return ErrorStyle.Render("Document no longer on this page")
	}

	var content strings.Builder
	content.WriteString(HeaderStyle.Render("DOCUMENT " + d.ID))
	content.WriteString("\n\n")
	content.WriteString(LabelStyle.Render("Kind:    ") + ValueStyle.Render(d.Kind) + "\n")
	content.WriteString(LabelStyle.Render("Created: ") + ValueStyle.Render(d.CreatedAt.UTC().Format(time.RFC3339)) + "\n\n")

	raw, err := yaml.Marshal(d.Data)
	if err != nil {
		content.WriteString(ErrorStyle.Render(err.Error()))
	} else {
		content.WriteString(ValueStyle.Render(strings.TrimRight(string(raw), "\n")))
	}
	content.WriteString("\n\n")
	content.WriteString(SubtleStyle.Render("esc: back  q: quit"))
	return content.String()
}
