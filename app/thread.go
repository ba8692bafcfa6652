package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/ports"
)

// threadCommand labels thread follow-up turns in observer outcomes,
// keeping them distinguishable from the slash command that opened the
// thread. Ledger events still carry "talk" as the command.
const threadCommand = "talk_thread"

// ThreadTalk continues conversations inside threads opened by the talk
// command. Follow-up messages go through the same budget gate as slash
// commands, and each model call is ledgered keyed by the triggering
// message ID so redelivered gateway events stay at-most-once.
type ThreadTalk struct {
	generator  ports.TextGenerator
	usage      *UsageService
	dailyLimit int64
	logger     zerolog.Logger
	observer   DispatchObserver
}

// NewThreadTalk creates the thread conversation service.
func NewThreadTalk(generator ports.TextGenerator, usage *UsageService, dailyLimit int64, logger zerolog.Logger) *ThreadTalk {
	return &ThreadTalk{
		generator:  generator,
		usage:      usage,
		dailyLimit: dailyLimit,
		logger:     logger,
	}
}

// SetObserver wires an outcome observer. Must be called before Continue.
func (t *ThreadTalk) SetObserver(o DispatchObserver) { t.observer = o }

// Continue answers one follow-up message. history is the preceding
// turns of the thread, oldest first. The returned text is always safe
// to post: budget denials and guard failures come back as user-visible
// notices, not errors.
func (t *ThreadTalk) Continue(ctx context.Context, userID, messageID, content string, history []ports.ChatTurn) (string, error) {
	start := time.Now()

	remaining, err := t.usage.RemainingDailyTokens(ctx, userID, t.dailyLimit)
	if err != nil {
		// Fail closed, same as the dispatcher.
		t.logger.Error().Err(err).Str("user_id", userID).Msg("budget guard failed")
		t.observe("guard_error", start)
		return msgGuardFailure, nil
	}
	if remaining <= 0 {
		if t.observer != nil {
			t.observer.BudgetDenied(threadCommand)
		}
		t.observe("denied", start)
		return fmt.Sprintf(msgQuotaExceeded, t.dailyLimit), nil
	}

	res, err := t.generator.Generate(ctx, ports.GenerateRequest{
		Model:     talkModel,
		Prompt:    content,
		MaxTokens: replyMaxTokens,
		System:    talkPersona,
		History:   history,
	})
	if err != nil {
		t.observe("error", start)
		return "", err
	}

	totals, err := t.usage.RecordUsage(ctx, RecordParams{
		UserID:        userID,
		InteractionID: messageID,
		Command:       "talk",
		Model:         talkModel,
		Usage:         res.Usage,
	})
	if err != nil {
		t.logger.Error().Err(err).
			Str("user_id", userID).
			Str("interaction_id", messageID).
			Msg("usage recording failed")
		t.observe("record_error", start)
		return res.Text, nil
	}
	if t.observer != nil {
		t.observer.TokensRecorded(talkModel, totals.InputTokens, totals.OutputTokens)
	}

	t.observe("ok", start)
	return res.Text, nil
}

func (t *ThreadTalk) observe(outcome string, start time.Time) {
	if t.observer != nil {
		t.observer.CommandHandled(threadCommand, outcome, time.Since(start))
	}
}
