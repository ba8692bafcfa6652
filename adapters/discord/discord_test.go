package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/ports"
)

type stubHandler struct {
	name string
	opts []ports.CommandOption
}

func (h *stubHandler) Name() string                    { return h.name }
func (h *stubHandler) Description() string             { return "stub" }
func (h *stubHandler) Options() []ports.CommandOption  { return h.opts }
func (h *stubHandler) Budgeted() bool                  { return false }
func (h *stubHandler) Execute(context.Context, ports.Interaction) (*app.RecordParams, error) {
	return nil, nil
}

func TestBuildCommands(t *testing.T) {
	handlers := []app.Handler{
		&stubHandler{name: "chat", opts: []ports.CommandOption{
			{Name: "message", Description: "text", Required: true},
		}},
		&stubHandler{name: "help"},
	}

	cmds := buildCommands(handlers)

	if len(cmds) != 2 {
		t.Fatalf("len(cmds) = %d, want 2", len(cmds))
	}
	if cmds[0].Name != "chat" {
		t.Errorf("cmds[0].Name = %s, want chat", cmds[0].Name)
	}
	if len(cmds[0].Options) != 1 {
		t.Fatalf("len(cmds[0].Options) = %d, want 1", len(cmds[0].Options))
	}
	opt := cmds[0].Options[0]
	if opt.Type != discordgo.ApplicationCommandOptionString {
		t.Errorf("option type = %v, want string", opt.Type)
	}
	if opt.Name != "message" || !opt.Required {
		t.Errorf("option = %+v, want required message", opt)
	}
	if len(cmds[1].Options) != 0 {
		t.Errorf("help should have no options, got %d", len(cmds[1].Options))
	}
}

func TestInteraction_Accessors(t *testing.T) {
	ic := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   "int-42",
			Type: discordgo.InteractionApplicationCommand,
			Member: &discordgo.Member{
				User: &discordgo.User{ID: "user-7"},
			},
			Data: discordgo.ApplicationCommandInteractionData{
				Name: "chat",
				Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{
						Name:  "message",
						Type:  discordgo.ApplicationCommandOptionString,
						Value: "こんにちは",
					},
				},
			},
		},
	}

	in := &interaction{ic: ic}

	if in.ID() != "int-42" {
		t.Errorf("ID = %s, want int-42", in.ID())
	}
	if in.UserID() != "user-7" {
		t.Errorf("UserID = %s, want user-7", in.UserID())
	}
	if in.Command() != "chat" {
		t.Errorf("Command = %s, want chat", in.Command())
	}
	if got := in.Option("message"); got != "こんにちは" {
		t.Errorf("Option(message) = %s, want こんにちは", got)
	}
	if got := in.Option("missing"); got != "" {
		t.Errorf("Option(missing) = %q, want empty", got)
	}
}

func TestInteraction_UserIDFallsBackToDM(t *testing.T) {
	ic := &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   "int-1",
			User: &discordgo.User{ID: "dm-user"},
			Data: discordgo.ApplicationCommandInteractionData{Name: "help"},
		},
	}

	in := &interaction{ic: ic}
	if in.UserID() != "dm-user" {
		t.Errorf("UserID = %s, want dm-user", in.UserID())
	}
}

func TestGateway_RememberThread(t *testing.T) {
	g := &Gateway{threads: make(map[string]struct{})}

	g.rememberThread("thread-1")

	g.mu.Lock()
	_, ok := g.threads["thread-1"]
	g.mu.Unlock()
	if !ok {
		t.Error("thread-1 not registered")
	}
}
