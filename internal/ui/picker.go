package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/sshman/internal/errors"
)

// ServerChoice is a server as shown in the picker.
type ServerChoice struct {
	Name        string
	Address     string
	Aliases     []string
	Description string
}

type serverItem struct {
	server ServerChoice
}

func (i serverItem) Title() string {
	return i.server.Name
}

func (i serverItem) Description() string {
	var parts []string
	if i.server.Address != "" {
		parts = append(parts, i.server.Address)
	}
	switch len(i.server.Aliases) {
	case 0:
	case 1:
		parts = append(parts, "alias "+i.server.Aliases[0])
	default:
		parts = append(parts, fmt.Sprintf("aliases %s (+%d)", i.server.Aliases[0], len(i.server.Aliases)-1))
	}
	if i.server.Description != "" {
		parts = append(parts, i.server.Description)
	}
	return strings.Join(parts, " | ")
}

// FilterValue lets the user type a name, alias or part of the description.
func (i serverItem) FilterValue() string {
	values := []string{i.server.Name}
	values = append(values, i.server.Aliases...)
	values = append(values, i.server.Description)
	return strings.Join(values, " ")
}

// ServerPickerModel is a Bubble Tea model for choosing a server.
type ServerPickerModel struct {
	list     list.Model
	selected *ServerChoice
	quitting bool
}

type pickerKeyMap struct {
	Enter key.Binding
	Quit  key.Binding
}

var pickerKeys = pickerKeyMap{
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "cancel"),
	),
}

// NewServerPickerModel creates a picker over servers.
func NewServerPickerModel(servers []ServerChoice) ServerPickerModel {
	items := make([]list.Item, len(servers))
	for i, s := range servers {
		items[i] = serverItem{server: s}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(ColorPrimary).
		BorderForeground(ColorSecondary)
	delegate.Styles.SelectedDesc = delegate.Styles.SelectedDesc.
		Foreground(ColorMuted)

	l := list.New(items, delegate, 80, 15)
	l.Title = "Select a server"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).Padding(0, 0, 1, 0)
	l.Styles.HelpStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	return ServerPickerModel{list: l}
}

// Init implements tea.Model.
func (m ServerPickerModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ServerPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// While filtering, keys belong to the filter input.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, pickerKeys.Enter):
			if item, ok := m.list.SelectedItem().(serverItem); ok {
				m.selected = &item.server
			}
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, pickerKeys.Quit):
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ServerPickerModel) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View()
}

// Selected returns the chosen server, or nil if cancelled.
func (m ServerPickerModel) Selected() *ServerChoice {
	return m.selected
}

// PickServer shows the picker on output and returns the chosen server, or
// nil if the user cancels. A single server is returned without prompting.
func PickServer(servers []ServerChoice, output io.Writer, input io.Reader) (*ServerChoice, error) {
	if len(servers) == 0 {
		return nil, errors.New(errors.ErrConfig, "No servers to pick from",
			"Add servers to servers.yaml or set SSH_SERVER_<NAME>_HOST and SSH_SERVER_<NAME>_USER")
	}
	if len(servers) == 1 {
		return &servers[0], nil
	}

	p := tea.NewProgram(NewServerPickerModel(servers), tea.WithOutput(output), tea.WithInput(input))
	final, err := p.Run()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig, "Server picker failed",
			"Pass the server name as the first argument instead")
	}

	if m, ok := final.(ServerPickerModel); ok {
		return m.Selected(), nil
	}
	return nil, nil
}
