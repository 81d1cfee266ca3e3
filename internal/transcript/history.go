// Package transcript owns the canonical conversation history: the pairs of
// user/assistant messages in their internal (raw) and visible
// (display-safe) forms, the files they are stored in, and the lifecycle of
// conversations (create, rename, delete).
package transcript

import (
	"html"

	"variantcache/internal/variant"
)

// History is the message-pair history of one conversation. Row i of each
// view is turn i; column 0 is the user message, column 1 the reply.
type History struct {
	Internal [][2]string `json:"internal"`
	Visible  [][2]string `json:"visible"`
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{Internal: [][2]string{}, Visible: [][2]string{}}
}

// Escape produces the visible form of a raw message.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Len is the number of turns.
func (h *History) Len() int {
	return min(len(h.Internal), len(h.Visible))
}

// Text returns the pair stored at (turn, role).
func (h *History) Text(turn int, role variant.Role) (variant.Pair, bool) {
	if !role.Valid() || turn < 0 || turn >= h.Len() {
		return variant.Pair{}, false
	}
	return variant.Pair{Internal: h.Internal[turn][role], Visible: h.Visible[turn][role]}, true
}

// SetText overwrites both views at (turn, role).
func (h *History) SetText(turn int, role variant.Role, p variant.Pair) bool {
	if !role.Valid() || turn < 0 || turn >= h.Len() {
		return false
	}
	h.Internal[turn][role] = p.Internal
	h.Visible[turn][role] = p.Visible
	return true
}

// Last returns the index of the final turn, or -1 for an empty history.
func (h *History) Last() int {
	return h.Len() - 1
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	return &History{
		Internal: append([][2]string{}, h.Internal...),
		Visible:  append([][2]string{}, h.Visible...),
	}
}

func (h *History) appendRow(user, reply string) int {
	h.Internal = append(h.Internal, [2]string{user, reply})
	h.Visible = append(h.Visible, [2]string{Escape(user), Escape(reply)})
	return h.Last()
}

// normalize pads the shorter view so both have the same number of rows.
func (h *History) normalize() {
	if h.Internal == nil {
		h.Internal = [][2]string{}
	}
	if h.Visible == nil {
		h.Visible = [][2]string{}
	}
	for len(h.Visible) < len(h.Internal) {
		row := h.Internal[len(h.Visible)]
		h.Visible = append(h.Visible, [2]string{Escape(row[0]), Escape(row[1])})
	}
	for len(h.Internal) < len(h.Visible) {
		row := h.Visible[len(h.Internal)]
		h.Internal = append(h.Internal, [2]string{html.UnescapeString(row[0]), html.UnescapeString(row[1])})
	}
}
