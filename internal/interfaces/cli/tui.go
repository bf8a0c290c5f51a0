package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fourdst.dev/plugin/bundle"
)

// runInspectTUI starts the interactive bundle browser on an inspection
// report.
func runInspectTUI(report *bundle.Report) error {
	program := tea.NewProgram(newInspectModel(report), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("interactive inspect failed: %w", err)
	}
	return nil
}

// inspectRow is one selectable line: a plugin or one of its binaries.
type inspectRow struct {
	plugin string
	binary *bundle.BinaryReport
}

type inspectModel struct {
	report       *bundle.Report
	rows         []inspectRow
	selected     int
	showAll      bool
	windowWidth  int
	windowHeight int
}

func newInspectModel(report *bundle.Report) inspectModel {
	m := inspectModel{report: report, showAll: true}
	m.rebuildRows()
	return m
}

// rebuildRows flattens the report into selectable rows, optionally
// hiding incompatible binaries.
func (m *inspectModel) rebuildRows() {
	m.rows = m.rows[:0]
	for i := range m.report.Plugins {
		plugin := &m.report.Plugins[i]
		m.rows = append(m.rows, inspectRow{plugin: plugin.Name})
		for j := range plugin.Binaries {
			bin := &plugin.Binaries[j]
			if !m.showAll && !bin.Compatible {
				continue
			}
			m.rows = append(m.rows, inspectRow{plugin: plugin.Name, binary: bin})
		}
	}
	if m.selected >= len(m.rows) {
		m.selected = len(m.rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m inspectModel) Init() tea.Cmd { return nil }

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil

		case "down", "j":
			if m.selected < len(m.rows)-1 {
				m.selected++
			}
			return m, nil

		case "c":
			m.showAll = !m.showAll
			m.rebuildRows()
			return m, nil
		}
	}

	return m, nil
}

func (m inspectModel) View() string {
	header := m.renderHeader()
	table := m.renderRows()
	footer := m.renderFooter()
	return lipgloss.JoinVertical(lipgloss.Left, header, table, footer)
}

func (m inspectModel) renderHeader() string {
	title := titleStyle.Render(m.report.Name + " " + m.report.Version)
	status := fmt.Sprintf("signed: %s  trusted: %s  host: %s",
		verdict(m.report.Signed, "yes", "no"),
		verdict(m.report.Trusted, "yes", "no"),
		m.report.Host.Triplet,
	)
	meta := dimStyle.Render(fmt.Sprintf("%s — %s (%s)", m.report.Author, m.report.Comment, m.report.BundledOn))
	return lipgloss.JoinVertical(lipgloss.Left, title, status, meta, "")
}

func (m inspectModel) renderRows() string {
	selectedStyle := lipgloss.NewStyle().Reverse(true)

	var sb strings.Builder
	for i, row := range m.rows {
		var line string
		if row.binary == nil {
			plugin := m.findPlugin(row.plugin)
			line = fmt.Sprintf("%s %s", verdict(plugin.Compatible, "✓", "✗"), row.plugin)
		} else {
			line = fmt.Sprintf("    %s %-24s %s",
				verdict(row.binary.Compatible, "✓", "✗"),
				row.binary.Triplet,
				dimStyle.Render(row.binary.ABISignature))
		}
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func (m inspectModel) renderFooter() string {
	detail := ""
	if m.selected < len(m.rows) {
		if bin := m.rows[m.selected].binary; bin != nil {
			detail = dimStyle.Render(fmt.Sprintf("%s  arch=%s", bin.Path, bin.Arch))
		}
	}
	controls := labelStyle.Render("↑/↓ move · c toggle incompatible · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, detail, controls)
}

func (m inspectModel) findPlugin(name string) *bundle.PluginReport {
	for i := range m.report.Plugins {
		if m.report.Plugins[i].Name == name {
			return &m.report.Plugins[i]
		}
	}
	return &bundle.PluginReport{}
}
