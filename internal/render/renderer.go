package render

import (
	"fmt"
	"html"
	"strings"

	"variantcache/internal/logging"
	"variantcache/internal/variant"

	"github.com/charmbracelet/glamour"
)

const (
	arrowLeft  = "‹"
	arrowRight = "›"
)

// Source is the transcript being drawn.
type Source interface {
	Len() int
	Text(turn int, role variant.Role) (variant.Pair, bool)
}

// Cursor marks the message the user has focused.
type Cursor struct {
	Turn   int
	Role   variant.Role
	Active bool
}

// Options configures a Renderer.
type Options struct {
	Theme    string
	Markdown bool
	Width    int
}

// Renderer draws transcripts.
type Renderer struct {
	styles Styles
	md     *glamour.TermRenderer
	width  int
}

// New creates a renderer. Markdown rendering is skipped when disabled or
// when glamour cannot be set up.
func New(opts Options) (*Renderer, error) {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	theme := ThemeByName(opts.Theme)
	r := &Renderer{styles: NewStyles(theme), width: opts.Width}

	if opts.Markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(theme.Name),
			glamour.WithWordWrap(opts.Width-4),
		)
		if err != nil {
			return r, fmt.Errorf("markdown renderer: %w", err)
		}
		r.md = md
	}
	return r, nil
}

// AffordanceText is the plain form of the navigation affordance, e.g.
// "‹ 2/3 ›". Messages with at most one variant have none.
func AffordanceText(p variant.Position) string {
	if p.Total <= 1 {
		return ""
	}
	return fmt.Sprintf("%s %d/%d %s", arrowLeft, p.Selected+1, p.Total, arrowRight)
}

// Affordance is the styled form of AffordanceText. An arrow that would
// move past either end is drawn disabled.
func (r *Renderer) Affordance(p variant.Position) string {
	if p.Total <= 1 {
		return ""
	}
	left, right := r.styles.Arrow, r.styles.Arrow
	if p.Selected <= 0 {
		left = r.styles.ArrowDisabled
	}
	if p.Selected >= p.Total-1 {
		right = r.styles.ArrowDisabled
	}
	counter := r.styles.Counter.Render(fmt.Sprintf("%d/%d", p.Selected+1, p.Total))
	return left.Render(arrowLeft) + " " + counter + " " + right.Render(arrowRight)
}

// Message renders one message body. The raw text goes through markdown
// when enabled; otherwise the visible text is shown unescaped.
func (r *Renderer) Message(p variant.Pair) (out string) {
	plain := html.UnescapeString(p.Visible)
	if r.md == nil || p.Internal == "" {
		return plain
	}
	defer func() {
		if rec := recover(); rec != nil {
			logging.RenderWarn("Markdown renderer panicked: %v", rec)
			out = plain
		}
	}()
	rendered, err := r.md.Render(p.Internal)
	if err != nil {
		logging.RenderWarn("Markdown render failed: %v", err)
		return plain
	}
	return strings.TrimRight(rendered, "\n")
}

// Transcript renders every non-empty message with its affordance.
// positions may be shorter than the transcript.
func (r *Renderer) Transcript(src Source, positions []variant.TurnPositions, cursor Cursor) string {
	var b strings.Builder
	for turn := 0; turn < src.Len(); turn++ {
		for _, role := range []variant.Role{variant.RoleUser, variant.RoleAssistant} {
			p, ok := src.Text(turn, role)
			if !ok || p.Visible == "" {
				continue
			}
			var pos variant.Position
			if turn < len(positions) {
				pos = positions[turn][role]
			}
			block := r.block(role, p, pos)
			if cursor.Active && cursor.Turn == turn && cursor.Role == role {
				block = r.styles.Cursor.Render(block)
			}
			b.WriteString(block)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) block(role variant.Role, p variant.Pair, pos variant.Position) string {
	label := r.styles.UserLabel.Render("You")
	if role == variant.RoleAssistant {
		label = r.styles.AssistantLabel.Render("Assistant")
	}
	if a := r.Affordance(pos); a != "" {
		label += "  " + a
	}
	return label + "\n" + r.styles.Body.Render(r.Message(p))
}
