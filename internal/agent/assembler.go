package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/assistente/internal/llm"
	"github.com/nugget/assistente/internal/prompts"
	"github.com/nugget/assistente/internal/store"
)

// ContextStore is what the assembler reads to build a request.
type ContextStore interface {
	RecentTurns(ctx context.Context, userID string, limit int) ([]*store.Turn, error)
	ListCollections(ctx context.Context, userID string) ([]*store.Collection, error)
	ListRules(ctx context.Context, userID string) ([]*store.Rule, error)
	GetSettings(ctx context.Context, userID string) (*store.Settings, error)
}

// Input is the current message as the assembler sees it.
type Input struct {
	UserID    string
	Content   string
	MediaURL  string
	MediaKind string
	MessageID string

	// Reference is the instant the message arrived.
	Reference time.Time
}

// Assembler builds the message list sent to the model: the rendered
// system prompt, the trailing window of persisted turns, then the
// current input.
type Assembler struct {
	store        ContextStore
	historyLimit int
	loc          *time.Location
	logger       *slog.Logger
}

// NewAssembler creates an assembler replaying at most historyLimit
// prior turns and rendering times in loc.
func NewAssembler(st ContextStore, historyLimit int, loc *time.Location, logger *slog.Logger) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{store: st, historyLimit: historyLimit, loc: loc, logger: logger}
}

// Build returns the messages for one request. The system message is
// always first and the current input always last.
//
// Store failures do not fail the request: the affected facts or the
// history are left out and the failure is logged. Build only returns
// an error when ctx is done.
func (a *Assembler) Build(ctx context.Context, in Input) ([]llm.Message, error) {
	system := a.systemPrompt(ctx, in)
	history := a.history(ctx, in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, currentTurn(in))

	a.logger.Debug("conversation assembled",
		"user", in.UserID,
		"history", len(history),
		"messages", len(msgs),
	)
	return msgs, nil
}

func (a *Assembler) systemPrompt(ctx context.Context, in Input) string {
	pc := prompts.Context{Now: in.Reference.In(a.loc)}

	if cols, err := a.store.ListCollections(ctx, in.UserID); err != nil {
		a.logger.Warn("collections left out of prompt", "user", in.UserID, "error", err)
	} else {
		for _, c := range cols {
			pc.Collections = append(pc.Collections, c.Name)
		}
	}
	if rules, err := a.store.ListRules(ctx, in.UserID); err != nil {
		a.logger.Warn("rules left out of prompt", "user", in.UserID, "error", err)
	} else {
		for _, r := range rules {
			pc.Rules = append(pc.Rules, prompts.Rule{Key: r.Key, Content: r.Content})
		}
	}
	if settings, err := a.store.GetSettings(ctx, in.UserID); err != nil {
		a.logger.Warn("settings left out of prompt", "user", in.UserID, "error", err)
	} else if settings != nil {
		pc.PreferredName = settings.PreferredName
	}
	return pc.Render()
}

// history loads the trailing window without the current input. The
// caller may already have persisted the input, so one extra turn is
// read and the matching turn dropped: by message ID when there is one,
// otherwise the newest turn if it is a user turn with the same text.
func (a *Assembler) history(ctx context.Context, in Input) []*store.Turn {
	if a.historyLimit <= 0 {
		return nil
	}
	turns, err := a.store.RecentTurns(ctx, in.UserID, a.historyLimit+1)
	if err != nil {
		a.logger.Warn("history left out", "user", in.UserID, "error", err)
		return nil
	}

	var out []*store.Turn
	if in.MessageID != "" {
		for _, t := range turns {
			if t.MessageID != in.MessageID {
				out = append(out, t)
			}
		}
	} else {
		out = turns
		if n := len(turns); n > 0 {
			last := turns[n-1]
			if last.Role == llm.RoleUser && strings.TrimSpace(last.Content) == strings.TrimSpace(in.Content) {
				out = turns[:n-1]
			}
		}
	}

	if len(out) > a.historyLimit {
		out = out[len(out)-a.historyLimit:]
	}
	return out
}

// currentTurn renders the input. Images ride along as image parts;
// other media are described in the text.
func currentTurn(in Input) llm.Message {
	msg := llm.Message{Role: llm.RoleUser, Content: in.Content}
	if in.MediaURL == "" {
		return msg
	}
	if in.MediaKind == prompts.MediaImage {
		msg.Images = []string{in.MediaURL}
		return msg
	}
	note := prompts.MediaNote(in.MediaKind, in.MediaURL)
	if msg.Content == "" {
		msg.Content = note
	} else {
		msg.Content += "\n\n" + note
	}
	return msg
}
