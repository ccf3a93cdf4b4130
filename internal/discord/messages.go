package discord

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/Akinara666/PeaceMusic/internal/observe"
	"github.com/Akinara666/PeaceMusic/internal/tools"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// onMessageCreate filters incoming messages and hands accepted ones to the
// chat cycle on a separate goroutine so the gateway event loop never
// blocks on model calls.
func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if b.cfg.ChatChannelID != "" && m.ChannelID != b.cfg.ChatChannelID {
		return
	}
	go b.runChatCycle(m)
}

// runChatCycle executes one full turn-processing cycle for a message:
// build the user turn (downloading an attachment when present), append and
// trim history, generate the reply with tool dispatch, deliver it, and
// persist. The per-channel lock serializes cycles within a channel.
func (b *Bot) runChatCycle(m *discordgo.MessageCreate) {
	lock := b.channelLock(m.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := observe.StartSpan(b.ctx, "chat.cycle")
	defer span.End()
	logger := observe.ChannelLogger(ctx, m.ChannelID)

	conv := b.store.Get(m.ChannelID)

	author := m.Author.Username
	base := strings.TrimSpace(m.Content)
	userText := author
	if base != "" {
		userText = author + ": " + base
	}

	parts := []model.Part{model.TextPart(userText)}
	if len(m.Attachments) > 0 {
		filePart, prompt, err := b.attach.Resolve(ctx, m.Attachments[0], author, userText, m.Content)
		if err != nil {
			logger.Error("attachment processing failed", "err", err)
			b.Notify(m.ChannelID, "Failed to process the attachment.")
			return
		}
		if filePart != nil {
			parts = []model.Part{*filePart, model.TextPart(prompt)}
		}
	}

	conv.Append(model.NewTurn(model.RoleUser, parts...))
	b.store.Trim(conv)

	toolCtx := tools.Context{
		GuildID:        m.GuildID,
		TextChannelID:  m.ChannelID,
		Requester:      author,
		VoiceChannelID: b.voiceChannelOf(m.GuildID, m.Author.ID),
	}

	reply, err := b.engine.GenerateReply(ctx, conv, func(ctx context.Context, call *model.FunctionCall) *model.Part {
		return b.dispatcher.Dispatch(ctx, call, toolCtx)
	})
	switch {
	case err != nil:
		logger.Error("reply generation failed", "err", err)
		b.Notify(m.ChannelID, "Failed to generate a response: "+err.Error())
		// Drop the dangling user turn so the next cycle starts clean.
		conv.Mutate(func(turns []*model.Turn) []*model.Turn {
			if n := len(turns); n > 0 && turns[n-1].Role == model.RoleUser {
				return turns[:n-1]
			}
			return turns
		})
	case reply != "":
		b.Notify(m.ChannelID, reply)
	}

	if perr := b.store.Persist(ctx); perr != nil {
		slog.Error("history persist failed", "err", perr)
	}
}

// voiceChannelOf returns the voice channel the user currently occupies in
// the guild, or empty when they are not connected.
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	if guildID == "" {
		return ""
	}
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}
