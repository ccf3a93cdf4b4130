// Package discord provides the Discord layer for PeaceMusic. It owns the
// discordgo.Session lifecycle, feeds chat messages into the conversation
// engine, resolves message attachments for the model, and adapts voice
// channels to the player's connection interface.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/Akinara666/PeaceMusic/internal/chat"
	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/internal/player"
	"github.com/Akinara666/PeaceMusic/internal/tools"
)

// Compile-time interface assertion.
var _ player.Notifier = (*Bot)(nil)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// ChatChannelID restricts the assistant to one text channel. Empty
	// means every visible channel is answered.
	ChatChannelID string `yaml:"chat_channel_id"`
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("discord: token must be set")
	}
	return nil
}

// Bot owns the Discord gateway connection. Incoming chat messages run
// through a per-channel lock so each channel processes one chat cycle at a
// time while channels stay independent.
type Bot struct {
	session *discordgo.Session
	cfg     Config

	store      *history.Store
	engine     *chat.Engine
	dispatcher *tools.Dispatcher
	attach     *AttachmentResolver

	ctx context.Context

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	closeOnce sync.Once
}

// New creates a Bot and connects its gateway session. Chat handling starts
// only after [Bot.AttachChat] wires the conversation dependencies.
func New(ctx context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	return &Bot{
		session: session,
		cfg:     cfg,
		ctx:     ctx,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Session returns the underlying gateway session, for subsystems that need
// direct Discord API access (voice joins, notifications).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// AttachChat wires the conversation dependencies and registers the message
// handler.
func (b *Bot) AttachChat(store *history.Store, engine *chat.Engine, dispatcher *tools.Dispatcher, attach *AttachmentResolver) {
	b.store = store
	b.engine = engine
	b.dispatcher = dispatcher
	b.attach = attach
	b.session.AddHandler(b.onMessageCreate)
}

// Notify sends a message to a text channel, splitting content that exceeds
// Discord's length limit into multiple messages.
func (b *Bot) Notify(channelID, message string) {
	for _, chunk := range splitMessage(message) {
		if _, err := b.session.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Warn("discord: notify failed", "channel", channelID, "err", err)
			return
		}
	}
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	slog.Info("discord bot running", "user", b.botUsername())
	<-ctx.Done()
	return ctx.Err()
}

func (b *Bot) botUsername() string {
	if b.session.State != nil && b.session.State.User != nil {
		return b.session.State.User.Username
	}
	return ""
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// channelLock returns the chat-cycle lock for a channel, creating it on
// first use.
func (b *Bot) channelLock(channelID string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	mu, ok := b.locks[channelID]
	if !ok {
		mu = &sync.Mutex{}
		b.locks[channelID] = mu
	}
	return mu
}
