package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/ports"
)

// Handler is one registered slash command.
type Handler interface {
	// Name is the command name users invoke.
	Name() string
	// Description is the one-line help text.
	Description() string
	// Options describes the named options the command accepts, for
	// platform registration.
	Options() []ports.CommandOption
	// Budgeted reports whether the command is gated by the daily token
	// budget.
	Budgeted() bool
	// Execute runs the command. When the command billed a model call it
	// returns the usage to ledger; nil otherwise.
	Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error)
}

// DispatchObserver receives dispatch outcomes. Bootstrap wires the
// metrics collector to it.
type DispatchObserver interface {
	CommandHandled(command, outcome string, d time.Duration)
	BudgetDenied(command string)
	TokensRecorded(model string, input, output int64)
}

// User-visible notices. The bot speaks Japanese, as its users do.
const (
	msgUnknownCommand = "あれ？コマンド%sは登録されてないよ。"
	msgQuotaExceeded  = "トークン上限（%d tokens）に達しちゃったよ。明日までまってね。"
	msgGuardFailure   = "現在このコマンドは利用できません。しばらくしてからお試しください。"
	msgCommandFailed  = "コマンド `/%s` の実行に失敗しました。"
)

// Dispatcher routes interactions to a static command registry, gating
// budgeted commands and ledgering their usage. Every failure is
// contained here with a user-visible notice; nothing escapes to crash
// the process.
type Dispatcher struct {
	handlers   map[string]Handler
	usage      *UsageService
	dailyLimit int64
	logger     zerolog.Logger
	observer   DispatchObserver
}

// NewDispatcher creates a dispatcher with an empty registry.
func NewDispatcher(usage *UsageService, dailyLimit int64, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:   make(map[string]Handler),
		usage:      usage,
		dailyLimit: dailyLimit,
		logger:     logger,
	}
}

// SetObserver wires an outcome observer. Must be called before Dispatch.
func (d *Dispatcher) SetObserver(o DispatchObserver) { d.observer = o }

// Register adds a handler to the registry.
func (d *Dispatcher) Register(h Handler) error {
	if _, exists := d.handlers[h.Name()]; exists {
		return fmt.Errorf("command %q already registered", h.Name())
	}
	d.handlers[h.Name()] = h
	return nil
}

// Handlers returns the registered handlers sorted by name.
func (d *Dispatcher) Handlers() []Handler {
	out := make([]Handler, 0, len(d.handlers))
	for _, h := range d.handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Dispatch handles one interaction end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, in ports.Interaction) {
	start := time.Now()
	name := in.Command()

	h, ok := d.handlers[name]
	if !ok {
		d.notify(ctx, in, fmt.Sprintf(msgUnknownCommand, name))
		d.observe(name, "unknown", start)
		return
	}

	d.logger.Info().Str("user_id", in.UserID()).Str("command", name).Msg("command received")

	if h.Budgeted() {
		remaining, err := d.usage.RemainingDailyTokens(ctx, in.UserID(), d.dailyLimit)
		if err != nil {
			// Fail closed: an unreachable ledger denies the action.
			d.logger.Error().Err(err).Str("command", name).Msg("budget guard failed")
			d.notify(ctx, in, msgGuardFailure)
			d.observe(name, "guard_error", start)
			return
		}
		if remaining <= 0 {
			d.notify(ctx, in, fmt.Sprintf(msgQuotaExceeded, d.dailyLimit))
			if d.observer != nil {
				d.observer.BudgetDenied(name)
			}
			d.observe(name, "denied", start)
			return
		}
	}

	record, err := h.Execute(ctx, in)
	if err != nil {
		d.logger.Error().Err(err).Str("command", name).Msg("command failed")
		d.notify(ctx, in, fmt.Sprintf(msgCommandFailed, name))
		d.observe(name, "error", start)
		return
	}

	if record != nil {
		totals, err := d.usage.RecordUsage(ctx, *record)
		if err != nil {
			// The reply already went out; the turn still fails loudly in
			// the logs so lost accounting is visible.
			d.logger.Error().Err(err).
				Str("command", name).
				Str("interaction_id", record.InteractionID).
				Msg("usage recording failed")
			d.observe(name, "record_error", start)
			return
		}
		if d.observer != nil {
			d.observer.TokensRecorded(record.Model, totals.InputTokens, totals.OutputTokens)
		}
	}

	d.observe(name, "ok", start)
}

func (d *Dispatcher) notify(ctx context.Context, in ports.Interaction, text string) {
	if _, err := in.Reply(ctx, text); err != nil {
		d.logger.Error().Err(err).Msg("failed to send notice")
	}
}

func (d *Dispatcher) observe(command, outcome string, start time.Time) {
	if d.observer != nil {
		d.observer.CommandHandled(command, outcome, time.Since(start))
	}
}
