// Package render draws a conversation transcript for the terminal,
// including the variant navigation affordance of every message.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is a terminal color scheme.
type Theme struct {
	Name      string
	User      lipgloss.Color
	Assistant lipgloss.Color
	Accent    lipgloss.Color
	Muted     lipgloss.Color
	Border    lipgloss.Color
	Plain     bool
}

// DarkTheme is the default scheme.
func DarkTheme() Theme {
	return Theme{
		Name:      "dark",
		User:      lipgloss.Color("#4db6ac"),
		Assistant: lipgloss.Color("#8BC34A"),
		Accent:    lipgloss.Color("#FFC107"),
		Muted:     lipgloss.Color("#2a3850"),
		Border:    lipgloss.Color("#8BC34A"),
	}
}

// LightTheme suits light terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Name:      "light",
		User:      lipgloss.Color("#29434e"),
		Assistant: lipgloss.Color("#101F38"),
		Accent:    lipgloss.Color("#e57373"),
		Muted:     lipgloss.Color("#d6dae0"),
		Border:    lipgloss.Color("#101F38"),
	}
}

// PlainTheme draws without colors.
func PlainTheme() Theme {
	return Theme{Name: "notty", Plain: true}
}

// ThemeByName maps a configured theme name to a Theme. Unknown names get
// the dark theme.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	case "notty":
		return PlainTheme()
	default:
		return DarkTheme()
	}
}

// Styles holds the styled components of a transcript.
type Styles struct {
	Theme Theme

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Body           lipgloss.Style
	Cursor         lipgloss.Style
	Arrow          lipgloss.Style
	ArrowDisabled  lipgloss.Style
	Counter        lipgloss.Style
}

// NewStyles builds the styles for t.
func NewStyles(t Theme) Styles {
	s := Styles{
		Theme:          t,
		UserLabel:      lipgloss.NewStyle().Bold(true),
		AssistantLabel: lipgloss.NewStyle().Bold(true),
		Body:           lipgloss.NewStyle().PaddingLeft(2),
		Cursor: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			PaddingLeft(1),
		Arrow:         lipgloss.NewStyle(),
		ArrowDisabled: lipgloss.NewStyle().Faint(true),
		Counter:       lipgloss.NewStyle(),
	}
	if t.Plain {
		return s
	}

	s.UserLabel = s.UserLabel.Foreground(t.User)
	s.AssistantLabel = s.AssistantLabel.Foreground(t.Assistant)
	s.Cursor = s.Cursor.BorderForeground(t.Border)
	s.Arrow = s.Arrow.Foreground(t.Accent)
	s.ArrowDisabled = s.ArrowDisabled.Foreground(t.Muted)
	s.Counter = s.Counter.Foreground(t.Accent)
	return s
}
