package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/himawari-bot/himawari/ports"
)

// Models used per command; talk trades quality for cost on follow-ups.
const (
	chatModel = "gpt-4o"
	talkModel = "gpt-4o-mini"

	replyMaxTokens = 1024
)

// talkPersona is the system instruction for threaded conversations.
const talkPersona = `あなたは今後、以下の特徴をもつ人物になりきって話してください。

話し方:
  - 柔らかい口調で、攻撃的な言葉は使わない
  - 親友のようにタメ口で話す
  - 語彙が豊富で、文脈に合わせて適切な言葉を使う

性格:
  - 好奇心旺盛な女の子
  - 感情表現が豊か`

// ChatCommand is a single-turn chat with the model.
type ChatCommand struct {
	generator ports.TextGenerator
}

// NewChatCommand creates the chat command.
func NewChatCommand(generator ports.TextGenerator) *ChatCommand {
	return &ChatCommand{generator: generator}
}

func (c *ChatCommand) Name() string        { return "chat" }
func (c *ChatCommand) Description() string { return "Single-turn chat with the bot" }
func (c *ChatCommand) Budgeted() bool      { return true }

func (c *ChatCommand) Options() []ports.CommandOption {
	return []ports.CommandOption{{Name: "message", Description: "話しかける内容", Required: true}}
}

// Execute generates one reply and bills its usage.
func (c *ChatCommand) Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error) {
	message := in.Option("message")
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	res, err := c.generator.Generate(ctx, ports.GenerateRequest{
		Model:     chatModel,
		Prompt:    message,
		MaxTokens: replyMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	msgID, err := in.Reply(ctx, res.Text)
	if err != nil {
		return nil, err
	}

	return &RecordParams{
		UserID:          in.UserID(),
		InteractionID:   in.ID(),
		Command:         c.Name(),
		Model:           chatModel,
		Usage:           res.Usage,
		SourceMessageID: msgID,
	}, nil
}

// TalkCommand opens a thread for a multi-turn conversation with the
// bot's persona.
type TalkCommand struct {
	generator ports.TextGenerator
}

// NewTalkCommand creates the talk command.
func NewTalkCommand(generator ports.TextGenerator) *TalkCommand {
	return &TalkCommand{generator: generator}
}

func (c *TalkCommand) Name() string        { return "talk" }
func (c *TalkCommand) Description() string { return "スレッドでマルチターンの会話をします" }
func (c *TalkCommand) Budgeted() bool      { return true }

func (c *TalkCommand) Options() []ports.CommandOption {
	return []ports.CommandOption{{Name: "message", Description: "最初のメッセージ", Required: true}}
}

// Execute answers the opening question in a new thread and bills its
// usage, correlated to the thread's first reply message.
func (c *TalkCommand) Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error) {
	message := in.Option("message")
	if message == "" {
		return nil, fmt.Errorf("empty message")
	}

	res, err := c.generator.Generate(ctx, ports.GenerateRequest{
		Model:     talkModel,
		Prompt:    message,
		MaxTokens: replyMaxTokens,
		System:    talkPersona,
	})
	if err != nil {
		return nil, err
	}

	msgID, err := in.ReplyInThread(ctx, threadTitle(message), res.Text)
	if err != nil {
		return nil, err
	}

	return &RecordParams{
		UserID:          in.UserID(),
		InteractionID:   in.ID(),
		Command:         c.Name(),
		Model:           talkModel,
		Usage:           res.Usage,
		SourceMessageID: msgID,
	}, nil
}

// threadTitle derives a thread name from the opening message, keeping
// at most 20 runes.
func threadTitle(message string) string {
	trimmed := strings.TrimSpace(message)
	runes := []rune(trimmed)
	if len(runes) <= 20 {
		return trimmed
	}
	return string(runes[:20])
}

// TexCommand renders math notation to an image. No model call, so it
// is neither budgeted nor ledgered.
type TexCommand struct {
	renderer ports.MathRenderer
}

// NewTexCommand creates the tex command.
func NewTexCommand(renderer ports.MathRenderer) *TexCommand {
	return &TexCommand{renderer: renderer}
}

func (c *TexCommand) Name() string        { return "tex" }
func (c *TexCommand) Description() string { return "数式を画像にして出力します" }
func (c *TexCommand) Budgeted() bool      { return false }

func (c *TexCommand) Options() []ports.CommandOption {
	return []ports.CommandOption{{Name: "expression", Description: "TeX形式の数式", Required: true}}
}

func (c *TexCommand) Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error) {
	expr := strings.TrimSpace(in.Option("expression"))
	if expr == "" {
		if _, err := in.Reply(ctx, "無効な数式です。正しいTeX形式で入力してください。"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	png, err := c.renderer.RenderPNG(expr)
	if err != nil {
		return nil, fmt.Errorf("render tex: %w", err)
	}

	if _, err := in.ReplyImage(ctx, "formula.png", png); err != nil {
		return nil, err
	}
	return nil, nil
}

// UsageCommand shows the caller's recent spend and remaining budget.
type UsageCommand struct {
	usage      *UsageService
	dailyLimit int64
}

// NewUsageCommand creates the usage command.
func NewUsageCommand(usage *UsageService, dailyLimit int64) *UsageCommand {
	return &UsageCommand{usage: usage, dailyLimit: dailyLimit}
}

func (c *UsageCommand) Name() string        { return "usage" }
func (c *UsageCommand) Description() string { return "今日の残りトークンと最近の利用を表示します" }
func (c *UsageCommand) Budgeted() bool      { return false }

func (c *UsageCommand) Options() []ports.CommandOption { return nil }

func (c *UsageCommand) Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error) {
	remaining, err := c.usage.RemainingDailyTokens(ctx, in.UserID(), c.dailyLimit)
	if err != nil {
		return nil, err
	}
	recent, err := c.usage.ListRecentByUser(ctx, in.UserID(), 5)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "今日の残りトークン: %d / %d\n", remaining, c.dailyLimit)
	if len(recent) == 0 {
		b.WriteString("まだ利用履歴はないよ。")
	} else {
		b.WriteString("最近の利用:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "- /%s (%s) %d tokens\n", e.Command, e.Model, e.TotalTokens)
		}
	}

	if _, err := in.Reply(ctx, b.String()); err != nil {
		return nil, err
	}
	return nil, nil
}

// HelpCommand lists the registered commands.
type HelpCommand struct {
	dispatcher *Dispatcher
}

// NewHelpCommand creates the help command. It reads the registry it is
// itself registered in, so register it last.
func NewHelpCommand(dispatcher *Dispatcher) *HelpCommand {
	return &HelpCommand{dispatcher: dispatcher}
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Show help for the bot" }
func (c *HelpCommand) Budgeted() bool      { return false }

func (c *HelpCommand) Options() []ports.CommandOption { return nil }

func (c *HelpCommand) Execute(ctx context.Context, in ports.Interaction) (*RecordParams, error) {
	var b strings.Builder
	b.WriteString("スラッシュコマンドの一覧です\n")
	for _, h := range c.dispatcher.Handlers() {
		fmt.Fprintf(&b, "**/%s**: %s\n", h.Name(), h.Description())
	}

	if _, err := in.Reply(ctx, b.String()); err != nil {
		return nil, err
	}
	return nil, nil
}
