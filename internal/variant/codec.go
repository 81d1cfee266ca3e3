package variant

import (
	"encoding/json"
	"fmt"
)

// On disk the store is split into two parallel sequences, one per view:
//
//	{"visible":  [null, [{"text": [...], "pos": 0}, {"text": [...], "pos": 1}]],
//	 "internal": [null, [{"text": [...], "pos": 0}, {"text": [...], "pos": 1}]]}
type fileStore struct {
	Visible  []*fileEntry `json:"visible"`
	Internal []*fileEntry `json:"internal"`
}

type fileEntry [2]*fileSlot

type fileSlot struct {
	Text []string `json:"text"`
	Pos  int      `json:"pos"`
}

// MarshalJSON writes the two-view file format.
func (s *Store) MarshalJSON() ([]byte, error) {
	fs := fileStore{
		Visible:  make([]*fileEntry, len(s.entries)),
		Internal: make([]*fileEntry, len(s.entries)),
	}
	for i, e := range s.entries {
		if e == nil {
			continue
		}
		var vis, in fileEntry
		for r, slot := range e {
			v := &fileSlot{Text: make([]string, len(slot.Variants)), Pos: slot.Selected}
			n := &fileSlot{Text: make([]string, len(slot.Variants)), Pos: slot.Selected}
			for j, p := range slot.Variants {
				v.Text[j] = p.Visible
				n.Text[j] = p.Internal
			}
			vis[r], in[r] = v, n
		}
		fs.Visible[i], fs.Internal[i] = &vis, &in
	}
	return json.Marshal(fs)
}

// UnmarshalJSON joins the two views back into one sequence. Views of
// unequal length are padded with empty text, and out-of-range selections
// are clamped, so a damaged file still loads into a consistent store.
func (s *Store) UnmarshalJSON(data []byte) error {
	var fs fileStore
	if err := json.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("decode variant store: %w", err)
	}

	n := max(len(fs.Visible), len(fs.Internal))
	entries := make([]*Entry, n)
	for i := range entries {
		vis, in := entryAt(fs.Visible, i), entryAt(fs.Internal, i)
		if vis == nil && in == nil {
			continue
		}
		e := &Entry{}
		for r := range e {
			e[r] = joinSlot(slotAt(vis, r), slotAt(in, r))
		}
		entries[i] = e
	}
	s.entries = entries
	return nil
}

func joinSlot(vis, in *fileSlot) Slot {
	var visText, inText []string
	pos := 0
	if in != nil {
		inText = in.Text
		pos = in.Pos
	}
	if vis != nil {
		visText = vis.Text
		pos = vis.Pos
	}

	n := max(len(visText), len(inText))
	slot := Slot{Variants: make([]Pair, n)}
	for j := range slot.Variants {
		if j < len(visText) {
			slot.Variants[j].Visible = visText[j]
		}
		if j < len(inText) {
			slot.Variants[j].Internal = inText[j]
		}
	}
	if n > 0 {
		slot.Selected = min(max(pos, 0), n-1)
	}
	return slot
}

func entryAt(entries []*fileEntry, i int) *fileEntry {
	if i >= len(entries) {
		return nil
	}
	return entries[i]
}

func slotAt(e *fileEntry, r int) *fileSlot {
	if e == nil {
		return nil
	}
	return e[r]
}
