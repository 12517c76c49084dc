package assistant

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in the dialogue history. The boundary between turns
// plays the part of an end-of-turn marker.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is the running dialogue consumed by the generator.
type History struct {
	Turns []Turn
}

func (h History) Len() int {
	return len(h.Turns)
}

func (h History) Empty() bool {
	return len(h.Turns) == 0
}

// Append returns a new history; h is left untouched.
func (h History) Append(role Role, content string) History {
	turns := make([]Turn, len(h.Turns), len(h.Turns)+1)
	copy(turns, h.Turns)
	return History{Turns: append(turns, Turn{Role: role, Content: content})}
}

func (h History) chars() int {
	n := 0
	for _, t := range h.Turns {
		n += len(t.Content)
	}
	return n
}

// HistoryWindow bounds how much dialogue is kept between turns.
type HistoryWindow struct {
	MaxTurns int
	MaxChars int
}

// Apply keeps the newest MaxTurns turns, then drops the oldest while the
// total content is longer than MaxChars. A window never starts with an
// assistant turn, and the newest turn is always kept.
func (w HistoryWindow) Apply(h History) History {
	turns := h.Turns
	if w.MaxTurns > 0 && len(turns) > w.MaxTurns {
		turns = turns[len(turns)-w.MaxTurns:]
	}

	if w.MaxChars > 0 {
		total := History{Turns: turns}.chars()
		for len(turns) > 1 && total > w.MaxChars {
			total -= len(turns[0].Content)
			turns = turns[1:]
		}
	}

	for len(turns) > 1 && turns[0].Role == RoleAssistant {
		turns = turns[1:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return History{Turns: out}
}

// DialogueFallback answers messages that no structured intent handled.
type DialogueFallback struct {
	generator DialogueGenerator
	maxTokens int
	window    HistoryWindow
}

func NewDialogueFallback(generator DialogueGenerator, maxTokens int, window HistoryWindow) *DialogueFallback {
	return &DialogueFallback{generator: generator, maxTokens: maxTokens, window: window}
}

// Respond generates a reply conditioned on history plus message and returns
// the history to persist. On error the caller keeps its previous history.
func (d *DialogueFallback) Respond(ctx context.Context, history History, message string) (string, History, error) {
	prompt := history.Append(RoleUser, message)

	reply, err := d.generator.Generate(ctx, prompt, d.maxTokens)
	if err != nil {
		return "", history, fmt.Errorf("%w: %v", ErrGenerator, err)
	}

	return reply, d.window.Apply(prompt.Append(RoleAssistant, reply)), nil
}
