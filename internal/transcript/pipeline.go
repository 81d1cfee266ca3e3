package transcript

import (
	"context"
	"errors"
	"sync"

	"variantcache/internal/variant"
)

// ErrEmptyHistory is returned by operations that need an existing turn.
var ErrEmptyHistory = errors.New("history has no turns")

// Conversation is a loaded history together with the identity it is
// stored under.
type Conversation struct {
	ID          string
	Participant string
	Mode        string
	History     *History
}

// TurnObserver is told about every turn text the pipeline produces.
type TurnObserver interface {
	TurnProduced(ctx context.Context, c *Conversation, turn int, role variant.Role)
}

// Pipeline applies generated text to a conversation's history and calls
// the registered observers after each change. Text generation itself
// happens upstream; the pipeline only places its output.
type Pipeline struct {
	mu        sync.RWMutex
	observers []TurnObserver
}

// NewPipeline returns a pipeline with no observers.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Subscribe registers o for produced turns.
func (p *Pipeline) Subscribe(o TurnObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

// SendUser appends a new turn holding the user's message.
func (p *Pipeline) SendUser(ctx context.Context, c *Conversation, text string) int {
	turn := c.History.appendRow(text, "")
	p.emit(ctx, c, turn, variant.RoleUser)
	return turn
}

// Reply stores a fresh assistant reply on the last turn. When the last
// turn already has a reply, or there is no turn, a new turn with an empty
// user message is opened.
func (p *Pipeline) Reply(ctx context.Context, c *Conversation, text string) int {
	h := c.History
	last := h.Last()
	if last < 0 || h.Internal[last][variant.RoleAssistant] != "" {
		last = h.appendRow("", "")
	}
	h.SetText(last, variant.RoleAssistant, variant.Pair{Internal: text, Visible: Escape(text)})
	p.emit(ctx, c, last, variant.RoleAssistant)
	return last
}

// Regenerate replaces the last reply with a newly generated one.
func (p *Pipeline) Regenerate(ctx context.Context, c *Conversation, text string) (int, error) {
	return p.setLastReply(ctx, c, text)
}

// Continue extends the last reply with more generated text.
func (p *Pipeline) Continue(ctx context.Context, c *Conversation, text string) (int, error) {
	last := c.History.Last()
	if last < 0 {
		return -1, ErrEmptyHistory
	}
	cur, _ := c.History.Text(last, variant.RoleAssistant)
	full := cur.Internal + text
	c.History.SetText(last, variant.RoleAssistant, variant.Pair{Internal: full, Visible: Escape(full)})
	p.emit(ctx, c, last, variant.RoleAssistant)
	return last, nil
}

// DummyMessage appends a user message without generating a reply.
func (p *Pipeline) DummyMessage(ctx context.Context, c *Conversation, text string) int {
	return p.SendUser(ctx, c, text)
}

// DummyReply injects an assistant reply without generation. It fills the
// last turn when its reply is empty, otherwise opens a new turn.
func (p *Pipeline) DummyReply(ctx context.Context, c *Conversation, text string) int {
	return p.Reply(ctx, c, text)
}

// ReplaceLastReply overwrites the last reply with user-supplied text.
func (p *Pipeline) ReplaceLastReply(ctx context.Context, c *Conversation, text string) (int, error) {
	return p.setLastReply(ctx, c, text)
}

func (p *Pipeline) setLastReply(ctx context.Context, c *Conversation, text string) (int, error) {
	last := c.History.Last()
	if last < 0 {
		return -1, ErrEmptyHistory
	}
	c.History.SetText(last, variant.RoleAssistant, variant.Pair{Internal: text, Visible: Escape(text)})
	p.emit(ctx, c, last, variant.RoleAssistant)
	return last, nil
}

func (p *Pipeline) emit(ctx context.Context, c *Conversation, turn int, role variant.Role) {
	p.mu.RLock()
	observers := append([]TurnObserver(nil), p.observers...)
	p.mu.RUnlock()

	for _, o := range observers {
		o.TurnProduced(ctx, c, turn, role)
	}
}
