package prompt

import (
	"fmt"

	"github.com/samcharles93/tokwrap/internal/tokenizer"
)

// Conversation tracks the running position of one context so that the BOS
// id is emitted exactly once, on its first turn. It is not safe for
// concurrent use.
type Conversation struct {
	tok    tokenizer.Tokenizer
	format Format
	pos    int
}

// NewConversation starts a fresh context.
func NewConversation(tok tokenizer.Tokenizer, format Format) *Conversation {
	return &Conversation{tok: tok, format: format}
}

// Position is the offset the next turn starts at.
func (c *Conversation) Position() int { return c.pos }

// Turn wraps and encodes one user turn at the current position and advances
// the position past it. On error the position is unchanged.
func (c *Conversation) Turn(prompt string) ([]int, error) {
	ids, err := WrapAndTokenize(c.tok, c.format, c.pos, prompt)
	if err != nil {
		return nil, err
	}
	c.pos += len(ids)
	return ids, nil
}

// Advance accounts for n tokens added to the context outside Turn, such as
// generated model output or spliced image blocks.
func (c *Conversation) Advance(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: cannot advance by %d", ErrInvalidArgument, n)
	}
	c.pos += n
	return nil
}

// Reset starts a fresh context; the next turn gets a BOS id again.
func (c *Conversation) Reset() { c.pos = 0 }
