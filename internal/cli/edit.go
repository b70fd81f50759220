package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/safetydesk/causemap/pkg/editor"
	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/tree"
)

// editCommand creates the interactive edit command.
func (c *CLI) editCommand() *cobra.Command {
	var (
		level  int
		input  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "edit [description]",
		Short: "Interactively edit a causal diagram in the terminal",
		Long: `Edit opens a terminal editor over a causal tree. The tree comes either
from a fresh generation (pass a description) or from a JSON file saved by
a previous session (--input). Changes are written back as JSON with the
save key.`,
		Example: `  causemap edit "Worker slipped on wet floor near loading dock"
  causemap edit --input diagram.json --output diagram.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed, err := openSession(args, input, level)
			if err != nil {
				return err
			}

			if output == "" {
				output = "causemap-edit.json"
			}

			model, err := newEditModel(ed, output)
			if err != nil {
				return err
			}

			final, err := tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			if err != nil {
				return err
			}

			if m, ok := final.(editModel); ok && m.dirty {
				printWarning("Unsaved changes were discarded")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&level, "level", "l", generate.DefaultLevel, "analysis level (1-5) for a fresh generation")
	cmd.Flags().StringVarP(&input, "input", "i", "", "load nodes from a JSON file instead of generating")
	cmd.Flags().StringVarP(&output, "output", "o", "", "save path (default: causemap-edit.json)")

	return cmd
}

func openSession(args []string, input string, level int) (*editor.Editor, error) {
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", input, err)
		}
		nodes, err := tree.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		return editor.New(nodes, level)
	}
	if len(args) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "a description or --input file is required")
	}
	return editor.NewFromDescription(args[0], level)
}

// =============================================================================
// editModel - Interactive tree editing
// =============================================================================

// Input modes. Browse handles navigation; the others capture typed text.
const (
	modeBrowse = iota
	modeRename
	modeRegenDesc
	modeRegenLevel
)

var (
	editSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	editNormalStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	editDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
	editInputStyle    = lipgloss.NewStyle().Foreground(colorYellow)
)

// editModel is the bubbletea model for the edit command.
type editModel struct {
	ed      *editor.Editor
	rows    []tree.Node // display order with depths, recomputed after each change
	cursor  int
	mode    int
	inpt    string
	pending string // regenerate description awaiting a level
	status  string
	output  string
	dirty   bool
}

func newEditModel(ed *editor.Editor, output string) (editModel, error) {
	m := editModel{ed: ed, output: output}
	if err := m.refresh(); err != nil {
		return editModel{}, err
	}
	return m, nil
}

// refresh recomputes the display rows from the editor state.
func (m *editModel) refresh() error {
	rows, err := tree.AssignDepths(m.ed.Nodes())
	if err != nil {
		return err
	}
	m.rows = rows
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return nil
}

func (m editModel) selected() *tree.Node {
	if len(m.rows) == 0 {
		return nil
	}
	return &m.rows[m.cursor]
}

func (m editModel) Init() tea.Cmd {
	return nil
}

func (m editModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.mode != modeBrowse {
		return m.updateInput(key)
	}

	switch key.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	case "enter", "e":
		if n := m.selected(); n != nil {
			_ = m.ed.StartEdit(n.Key)
			m.mode = modeRename
			m.inpt = n.Name
			m.status = ""
		}
	case "a":
		if n := m.selected(); n != nil {
			_ = m.ed.StartEdit(n.Key)
		}
		m.ed.Add()
		m.dirty = true
		if err := m.refresh(); err != nil {
			m.status = err.Error()
			return m, nil
		}
		// Move the cursor to the new node and rename it right away.
		for i, n := range m.rows {
			if n.Key == m.ed.EditKey() {
				m.cursor = i
				break
			}
		}
		m.mode = modeRename
		m.inpt = ""
		m.status = ""
	case "d":
		n := m.selected()
		if n == nil {
			break
		}
		if n.IsRoot() {
			m.status = "Cannot delete the incident root"
			break
		}
		before := m.ed.Len()
		if err := m.ed.Remove(n.Key); err != nil {
			m.status = errors.UserMessage(err)
			break
		}
		m.dirty = true
		m.status = fmt.Sprintf("Removed %d node(s)", before-m.ed.Len())
		if err := m.refresh(); err != nil {
			m.status = err.Error()
		}
	case "g":
		m.mode = modeRegenDesc
		m.inpt = ""
		m.status = ""
	case "s":
		if err := m.save(); err != nil {
			m.status = errors.UserMessage(err)
		} else {
			m.dirty = false
			m.status = "Saved to " + m.output
		}
	}
	return m, nil
}

func (m editModel) updateInput(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.ed.StopEdit()
		m.mode = modeBrowse
		m.inpt = ""
		return m, nil
	case "enter":
		return m.commitInput()
	case "backspace":
		if len(m.inpt) > 0 {
			runes := []rune(m.inpt)
			m.inpt = string(runes[:len(runes)-1])
		}
		return m, nil
	}

	switch {
	case key.Type == tea.KeySpace:
		m.inpt += " "
	case key.Type == tea.KeyRunes:
		m.inpt += string(key.Runes)
	}
	return m, nil
}

func (m editModel) commitInput() (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeRename:
		n := m.selected()
		if n == nil {
			m.mode = modeBrowse
			return m, nil
		}
		if err := m.ed.Rename(m.ed.EditKey(), m.inpt); err != nil {
			m.status = errors.UserMessage(err)
			return m, nil // stay in rename mode until valid or cancelled
		}
		m.dirty = true
		m.mode = modeBrowse
		m.inpt = ""
		m.status = ""
		if err := m.refresh(); err != nil {
			m.status = err.Error()
		}

	case modeRegenDesc:
		m.pending = m.inpt
		m.mode = modeRegenLevel
		m.inpt = ""

	case modeRegenLevel:
		level, err := strconv.Atoi(strings.TrimSpace(m.inpt))
		if err != nil {
			m.status = "Level must be a number between 1 and 5"
			return m, nil
		}
		if err := m.ed.Regenerate(m.pending, level); err != nil {
			m.status = errors.UserMessage(err)
			m.mode = modeRegenDesc
			m.inpt = m.pending
			return m, nil
		}
		m.dirty = true
		m.mode = modeBrowse
		m.inpt = ""
		m.cursor = 0
		m.status = fmt.Sprintf("Regenerated at level %d", level)
		if err := m.refresh(); err != nil {
			m.status = err.Error()
		}
	}
	return m, nil
}

func (m editModel) save() error {
	data, err := tree.Marshal(m.ed.Nodes())
	if err != nil {
		return err
	}
	return os.WriteFile(m.output, data, 0644)
}

func (m editModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Causemap Editor"))
	b.WriteString("  ")
	b.WriteString(editDimStyle.Render(generate.FormatLevelLabel(m.ed.Level())))
	b.WriteString("\n")
	b.WriteString(editDimStyle.Render("↑/↓ navigate  ⏎ rename  a add  d delete  g regenerate  s save  q quit"))
	b.WriteString("\n\n")

	for i, n := range m.rows {
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}

		indent := strings.Repeat("  ", n.Depth)
		line := cursor + indent + n.Name
		if n.Category != "" {
			line += "  " + editDimStyle.Render(n.Category)
		}

		if i == m.cursor && m.mode == modeRename {
			line = cursor + indent + editInputStyle.Render(m.inpt+"▏")
		}

		if i == m.cursor {
			b.WriteString(editSelectedStyle.Render(line))
		} else {
			b.WriteString(editNormalStyle.Render(line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.mode {
	case modeRegenDesc:
		b.WriteString(editInputStyle.Render("New description: " + m.inpt + "▏"))
		b.WriteString("\n")
	case modeRegenLevel:
		b.WriteString(editInputStyle.Render("Analysis level (1-5): " + m.inpt + "▏"))
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString(StyleWarning.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(editDimStyle.Render(fmt.Sprintf("  %d causes · [%d/%d]", m.ed.Len(), m.cursor+1, len(m.rows))))
	return b.String()
}
