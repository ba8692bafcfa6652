// Package discord connects the command dispatcher to the Discord
// gateway: slash command registration, interaction handling, and
// follow-up messages in talk threads.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/ports"
)

// dispatchTimeout bounds one interaction end to end, model call
// included.
const dispatchTimeout = 3 * time.Minute

// threadHistoryLimit caps how many prior thread messages feed the
// model as conversation context.
const threadHistoryLimit = 10

// Gateway owns the Discord session. It registers one slash command per
// dispatcher handler and routes interaction and thread message events
// into the app layer.
type Gateway struct {
	session    *discordgo.Session
	dispatcher *app.Dispatcher
	thread     *app.ThreadTalk
	guildID    string
	logger     zerolog.Logger

	mu      sync.Mutex
	threads map[string]struct{} // thread channels opened by /talk
}

// New creates a gateway for the given bot token. Start must be called
// to connect.
func New(token, guildID string, dispatcher *app.Dispatcher, thread *app.ThreadTalk, logger zerolog.Logger) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	return &Gateway{
		session:    session,
		dispatcher: dispatcher,
		thread:     thread,
		guildID:    guildID,
		logger:     logger,
		threads:    make(map[string]struct{}),
	}, nil
}

// Start opens the gateway connection and registers slash commands.
// Registration replaces the full command set so removed commands
// disappear from the client.
func (g *Gateway) Start() error {
	g.session.AddHandler(g.onReady)
	g.session.AddHandler(g.onInteractionCreate)
	g.session.AddHandler(g.onMessageCreate)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	appID := g.session.State.User.ID
	commands := buildCommands(g.dispatcher.Handlers())
	if _, err := g.session.ApplicationCommandBulkOverwrite(appID, g.guildID, commands); err != nil {
		g.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}

	g.logger.Info().
		Int("commands", len(commands)).
		Str("guild_id", g.guildID).
		Msg("discord gateway connected")
	return nil
}

// Stop closes the gateway connection.
func (g *Gateway) Stop() error {
	return g.session.Close()
}

// buildCommands translates handler metadata into Discord command
// registration payloads.
func buildCommands(handlers []app.Handler) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(handlers))
	for _, h := range handlers {
		cmd := &discordgo.ApplicationCommand{
			Name:        h.Name(),
			Description: h.Description(),
		}
		for _, opt := range h.Options() {
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        opt.Name,
				Description: opt.Description,
				Required:    opt.Required,
			})
		}
		out = append(out, cmd)
	}
	return out
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	g.logger.Info().Str("username", r.User.Username).Msg("logged in")
}

func (g *Gateway) onInteractionCreate(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic.Type != discordgo.InteractionApplicationCommand {
		return
	}

	// Ack immediately; Discord gives three seconds, model calls take
	// longer. Replies go out as follow-up messages.
	err := s.InteractionRespond(ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to ack interaction")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	g.dispatcher.Dispatch(ctx, &interaction{session: s, ic: ic, gateway: g})
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if !g.isTalkThread(s, m.ChannelID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	history, err := g.threadHistory(s, m.ChannelID, m.ID)
	if err != nil {
		g.logger.Error().Err(err).Str("channel_id", m.ChannelID).Msg("failed to read thread history")
		history = nil
	}

	reply, err := g.thread.Continue(ctx, m.Author.ID, m.ID, m.Content, history)
	if err != nil {
		g.logger.Error().Err(err).Str("channel_id", m.ChannelID).Msg("thread reply failed")
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		g.logger.Error().Err(err).Str("channel_id", m.ChannelID).Msg("failed to send thread reply")
	}
}

// isTalkThread reports whether the channel is a conversation thread the
// bot opened. The in-memory registry covers threads from this process;
// after a restart, ownership is recovered from the channel itself.
func (g *Gateway) isTalkThread(s *discordgo.Session, channelID string) bool {
	g.mu.Lock()
	_, known := g.threads[channelID]
	g.mu.Unlock()
	if known {
		return true
	}

	ch, err := s.State.Channel(channelID)
	if err != nil {
		ch, err = s.Channel(channelID)
		if err != nil {
			return false
		}
	}
	if !ch.IsThread() || ch.OwnerID != s.State.User.ID {
		return false
	}
	g.rememberThread(channelID)
	return true
}

func (g *Gateway) rememberThread(channelID string) {
	g.mu.Lock()
	g.threads[channelID] = struct{}{}
	g.mu.Unlock()
}

// threadHistory returns the messages preceding beforeID as chat turns,
// oldest first.
func (g *Gateway) threadHistory(s *discordgo.Session, channelID, beforeID string) ([]ports.ChatTurn, error) {
	msgs, err := s.ChannelMessages(channelID, threadHistoryLimit, beforeID, "", "")
	if err != nil {
		return nil, err
	}

	// ChannelMessages returns newest first.
	turns := make([]ports.ChatTurn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Author == nil || m.Content == "" {
			continue
		}
		turns = append(turns, ports.ChatTurn{
			FromBot: m.Author.ID == s.State.User.ID,
			Content: m.Content,
		})
	}
	return turns, nil
}

// interaction adapts one slash command invocation to ports.Interaction.
type interaction struct {
	session *discordgo.Session
	ic      *discordgo.InteractionCreate
	gateway *Gateway
}

func (i *interaction) ID() string { return i.ic.ID }

func (i *interaction) UserID() string {
	if i.ic.Member != nil && i.ic.Member.User != nil {
		return i.ic.Member.User.ID
	}
	if i.ic.User != nil {
		return i.ic.User.ID
	}
	return ""
}

func (i *interaction) Command() string {
	return i.ic.ApplicationCommandData().Name
}

func (i *interaction) Option(name string) string {
	for _, opt := range i.ic.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func (i *interaction) Reply(_ context.Context, text string) (string, error) {
	msg, err := i.session.FollowupMessageCreate(i.ic.Interaction, true, &discordgo.WebhookParams{
		Content: text,
	})
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	return msg.ID, nil
}

func (i *interaction) ReplyImage(_ context.Context, name string, png []byte) (string, error) {
	msg, err := i.session.FollowupMessageCreate(i.ic.Interaction, true, &discordgo.WebhookParams{
		Files: []*discordgo.File{{
			Name:        name,
			ContentType: "image/png",
			Reader:      bytes.NewReader(png),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("send image reply: %w", err)
	}
	return msg.ID, nil
}

func (i *interaction) ReplyInThread(ctx context.Context, title, text string) (string, error) {
	msg, err := i.Reply(ctx, text)
	if err != nil {
		return "", err
	}

	thread, err := i.session.MessageThreadStartComplex(i.ic.ChannelID, msg, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: 60,
	})
	if err != nil {
		return "", fmt.Errorf("start thread: %w", err)
	}
	i.gateway.rememberThread(thread.ID)
	return msg, nil
}

// Ensure interface compliance.
var _ ports.Interaction = (*interaction)(nil)
