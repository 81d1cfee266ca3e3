// Package navigation moves the selected variant of a message, mirrors the
// selection into the live transcript and records newly generated texts as
// variants.
package navigation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"variantcache/internal/logging"
	"variantcache/internal/session"
	"variantcache/internal/transcript"
	"variantcache/internal/variant"

	"github.com/google/uuid"
)

// Direction is a navigation step.
type Direction string

const (
	Advance Direction = "advance"
	Retreat Direction = "retreat"
)

// ParseDirection accepts advance/right/next and retreat/left/prev/previous.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "advance", "right", "next":
		return Advance, nil
	case "retreat", "left", "prev", "previous":
		return Retreat, nil
	default:
		return "", fmt.Errorf("unknown direction %q (valid: advance, retreat)", s)
	}
}

func (d Direction) step() int {
	switch d {
	case Advance:
		return 1
	case Retreat:
		return -1
	default:
		return 0
	}
}

// Transcript is the live message history navigation mirrors into.
type Transcript interface {
	Len() int
	Text(turn int, role variant.Role) (variant.Pair, bool)
	SetText(turn int, role variant.Role, p variant.Pair) bool
}

// Outcome is the result of a navigation request.
type Outcome struct {
	variant.Position
	// Moved is set when the selection changed and was persisted.
	Moved bool
	// Mirrored is set when the transcript now shows the selected variant.
	Mirrored bool
}

// Engine is the only mutator of variant stores.
type Engine struct {
	sessions *session.Manager
	suppress atomic.Int32
}

// NewEngine returns an engine working on the stores of sessions.
func NewEngine(sessions *session.Manager) *Engine {
	return &Engine{sessions: sessions}
}

// Sessions returns the manager the engine works through.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Navigate moves the selection of (turn, role) one step in dir. Moves past
// either end, unknown directions and unknown messages leave everything
// unchanged.
func (e *Engine) Navigate(ctx context.Context, key session.Key, turn int, role variant.Role, dir Direction, tr Transcript) Outcome {
	var out Outcome
	if ctx.Err() != nil {
		return out
	}

	log := logging.WithRequestID(logging.CategoryNavigation, uuid.NewString()).
		WithField("turn", turn).
		WithField("role", role.String())

	e.sessions.Do(key, func(s *variant.Store) bool {
		out.Position = s.PositionsOf(turn, role)
		if out.Total == 0 {
			log.Debug("No variants for %s", key)
			return false
		}

		candidate := out.Selected + dir.step()
		if dir.step() == 0 || candidate < 0 || candidate >= out.Total {
			log.Debug("Navigation %q from %d/%d ignored", dir, out.Selected, out.Total)
			return false
		}

		s.EnsureLength(turn)
		s.EnsureEntry(turn)
		pair, ok := s.Select(turn, role, candidate)
		if !ok {
			log.Warn("Select %d failed for %s", candidate, key)
			return false
		}
		out.Position = variant.Position{Selected: candidate, Total: out.Total}
		out.Moved = true

		if !pair.Complete() {
			log.Warn("Variant %d of %s is incomplete; transcript left as is", candidate, key)
		} else if tr != nil {
			out.Mirrored = tr.SetText(turn, role, pair)
		}
		log.Debug("Selected %d/%d (mirrored=%v)", candidate, out.Total, out.Mirrored)
		return true
	})

	if out.Moved {
		logging.Audit().Log(logging.AuditEvent{
			Type:         logging.AuditVariantSelect,
			Participant:  key.Participant,
			Conversation: key.Conversation,
			Mode:         key.Mode,
			Turn:         turn,
			Role:         role.String(),
			Selected:     out.Selected,
			Total:        out.Total,
		})
	}
	return out
}

// Positions returns the selection of (turn, role).
func (e *Engine) Positions(ctx context.Context, key session.Key, turn int, role variant.Role) variant.Position {
	var pos variant.Position
	if ctx.Err() != nil {
		return pos
	}
	e.sessions.Do(key, func(s *variant.Store) bool {
		pos = s.PositionsOf(turn, role)
		return false
	})
	return pos
}

// PositionsAll returns the selections of both roles for the first turns
// turns in one locked pass.
func (e *Engine) PositionsAll(ctx context.Context, key session.Key, turns int) []variant.TurnPositions {
	if ctx.Err() != nil || turns <= 0 {
		return nil
	}
	var all []variant.TurnPositions
	e.sessions.Do(key, func(s *variant.Store) bool {
		all = s.Positions(turns)
		return false
	})
	return all
}

// Record appends the transcript's current text at (turn, role) as a new
// variant. Nothing is recorded while suppressed or when the visible text
// is empty.
func (e *Engine) Record(ctx context.Context, key session.Key, turn int, role variant.Role, tr Transcript) bool {
	if e.Suppressed() {
		logging.NavigationDebug("Record of %s turn %d suppressed", key, turn)
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	recorded := false
	saved := e.sessions.Do(key, func(s *variant.Store) bool {
		pair, ok := tr.Text(turn, role)
		if !ok || pair.Visible == "" {
			return false
		}
		s.EnsureLength(turn)
		s.EnsureEntry(turn)
		recorded = s.AppendVariant(turn, role, pair.Internal, pair.Visible)
		return recorded
	})
	if !recorded {
		return false
	}
	if !saved {
		logging.NavigationWarn("Recorded %s variant for %s turn %d but the cache was not saved", role, key, turn)
	}

	logging.NavigationDebug("Recorded %s variant for %s turn %d", role, key, turn)
	logging.Audit().Log(logging.AuditEvent{
		Type:         logging.AuditVariantRecord,
		Participant:  key.Participant,
		Conversation: key.Conversation,
		Mode:         key.Mode,
		Turn:         turn,
		Role:         role.String(),
	})
	return true
}

// Suppress disables recording until the returned release func is called.
// Calls nest; release is safe to call more than once.
func (e *Engine) Suppress() func() {
	e.suppress.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { e.suppress.Add(-1) })
	}
}

// Suppressed reports whether recording is currently disabled.
func (e *Engine) Suppressed() bool {
	return e.suppress.Load() > 0
}

// ReplaceLastReply runs replace with recording suppressed, then records
// the last reply once if replace changed it.
func (e *Engine) ReplaceLastReply(ctx context.Context, key session.Key, tr Transcript, replace func() error) (bool, error) {
	before, _ := tr.Text(tr.Len()-1, variant.RoleAssistant)

	if err := e.runSuppressed(replace); err != nil {
		return false, err
	}

	last := tr.Len() - 1
	after, ok := tr.Text(last, variant.RoleAssistant)
	if !ok || after == before {
		return false, nil
	}
	return e.Record(ctx, key, last, variant.RoleAssistant, tr), nil
}

func (e *Engine) runSuppressed(fn func() error) error {
	release := e.Suppress()
	defer release()
	return fn()
}

// TurnProduced records every turn the generation pipeline produces.
func (e *Engine) TurnProduced(ctx context.Context, c *transcript.Conversation, turn int, role variant.Role) {
	key := session.Key{Participant: c.Participant, Conversation: c.ID, Mode: c.Mode}
	e.Record(ctx, key, turn, role, c.History)
}
