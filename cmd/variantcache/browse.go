package main

import (
	"context"
	"fmt"

	"variantcache/internal/navigation"
	"variantcache/internal/render"
	"variantcache/internal/transcript"
	"variantcache/internal/variant"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// browseCmd starts the interactive browser
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse a conversation and switch message variants interactively",
	Long: `Keys:
  up/down, k/j     select a message
  left/right, h/l  previous/next variant of the selected message
  q, ctrl+c        quit`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).PaddingLeft(1)
	statusStyle = lipgloss.NewStyle().Faint(true).PaddingLeft(1)
)

// lifecycleMsg tells the browser that the conversation was renamed or
// deleted underneath it.
type lifecycleMsg struct{}

type browseModel struct {
	ctx      context.Context
	app      *application
	conv     *transcript.Conversation
	viewport viewport.Model
	ready    bool

	messages []render.Cursor
	selected int
	status   string
}

func newBrowseModel(ctx context.Context, a *application, c *transcript.Conversation) browseModel {
	m := browseModel{ctx: ctx, app: a, conv: c}
	for turn := 0; turn < c.History.Len(); turn++ {
		for _, role := range []variant.Role{variant.RoleUser, variant.RoleAssistant} {
			if p, ok := c.History.Text(turn, role); ok && p.Visible != "" {
				m.messages = append(m.messages, render.Cursor{Turn: turn, Role: role, Active: true})
			}
		}
	}
	if n := len(m.messages); n > 0 {
		m.selected = n - 1
	}
	return m
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.viewport.SetContent(m.content())
		return m, nil

	case lifecycleMsg:
		m.follow()
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.messages)-1 {
				m.selected++
			}
		case "left", "h":
			m.navigate(navigation.Retreat)
		case "right", "l":
			m.navigate(navigation.Advance)
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, nil
	}
	return m, nil
}

// follow picks up a rename or delete of the open conversation. It
// reports false once the conversation is gone.
func (m *browseModel) follow() bool {
	if m.app.gone() {
		m.status = "conversation was deleted"
		return false
	}
	if id := m.app.key().Conversation; id != m.conv.ID {
		m.conv.ID = id
		m.status = "renamed to " + id
	}
	return true
}

func (m *browseModel) navigate(dir navigation.Direction) {
	if !m.follow() {
		return
	}
	cur, ok := m.cursor()
	if !ok {
		return
	}
	out := m.app.engine.Navigate(m.ctx, m.app.key(), cur.Turn, cur.Role, dir, m.conv.History)
	switch {
	case !out.Moved:
		m.status = "no further variants"
	case out.Mirrored:
		if err := m.app.save(m.conv); err != nil {
			logger.Warn("Failed to save history", zap.Error(err))
			m.status = "save failed: " + err.Error()
			return
		}
		m.status = fmt.Sprintf("variant %d/%d", out.Selected+1, out.Total)
	default:
		m.status = fmt.Sprintf("variant %d/%d is incomplete", out.Selected+1, out.Total)
	}
}

func (m browseModel) cursor() (render.Cursor, bool) {
	if m.selected < 0 || m.selected >= len(m.messages) {
		return render.Cursor{}, false
	}
	return m.messages[m.selected], true
}

func (m browseModel) content() string {
	if len(m.messages) == 0 {
		return "This conversation has no messages yet."
	}
	cur, _ := m.cursor()
	return m.app.renderer.Transcript(m.conv.History, m.app.positions(m.ctx, m.conv), cur)
}

func (m browseModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(fmt.Sprintf("%s · %s · %s", m.conv.Participant, m.conv.Mode, m.conv.ID))
	return header + "\n" + m.viewport.View() + "\n" + statusStyle.Render(m.status)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	c, err := app.open()
	if err != nil {
		return err
	}

	p := tea.NewProgram(newBrowseModel(ctx, app, c), tea.WithAltScreen(), tea.WithContext(ctx))
	app.watchChanges(func() { go p.Send(lifecycleMsg{}) })
	defer app.watchChanges(nil)

	if app.cfg.Watch.Enabled {
		w, err := newWatcher()
		if err != nil {
			logger.Warn("Watcher unavailable", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("Watcher failed to start", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	return nil
}
