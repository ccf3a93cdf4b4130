package discord

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/Akinara666/PeaceMusic/internal/player"
)

// Compile-time interface assertions.
var (
	_ player.Voice     = (*voiceChannel)(nil)
	_ player.Connector = (*GatewayConnector)(nil)
)

// GatewayConnector joins voice channels through the Discord gateway and
// adapts them to the [player.Connector] interface.
type GatewayConnector struct {
	session *discordgo.Session
}

// NewGatewayConnector builds a connector over an open gateway session.
func NewGatewayConnector(session *discordgo.Session) *GatewayConnector {
	return &GatewayConnector{session: session}
}

// Connect joins channelID in guildID, muted-incoming since playback is
// one-way.
func (c *GatewayConnector) Connect(_ context.Context, guildID, channelID string) (player.Voice, error) {
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel: %w", err)
	}
	v := &voiceChannel{
		session: c.session,
		vc:      vc,
		guildID: guildID,
	}
	v.gain.Store(math.Float64bits(1.0))
	return v, nil
}

// voiceChannel adapts a discordgo.VoiceConnection to the [player.Voice]
// interface: at most one ffmpeg-backed stream runs at a time, and volume
// is applied in software so it takes effect mid-stream.
type voiceChannel struct {
	session *discordgo.Session
	vc      *discordgo.VoiceConnection
	guildID string

	gain atomic.Uint64

	mu     sync.Mutex
	stream *streamer
}

// Play starts streaming req.Source, replacing any stream still running.
func (v *voiceChannel) Play(ctx context.Context, req player.PlayRequest) error {
	if req.Volume > 0 {
		v.gain.Store(math.Float64bits(req.Volume))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream != nil {
		v.stream.stop()
	}
	s, err := startStream(ctx, v.vc, req.Source, req.IsStream, req.Seek, &v.gain, req.OnProgress, req.OnDone)
	if err != nil {
		return err
	}
	v.stream = s
	return nil
}

// Stop cancels the current stream; its completion callback still fires.
func (v *voiceChannel) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stream != nil {
		v.stream.stop()
	}
}

// IsPlaying reports whether a stream is currently pumping frames.
func (v *voiceChannel) IsPlaying() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stream != nil && v.stream.running()
}

// SetVolume applies a gain level to the live stream.
func (v *voiceChannel) SetVolume(level float64) error {
	if level < 0 {
		return fmt.Errorf("discord: volume out of range: %v", level)
	}
	v.gain.Store(math.Float64bits(level))
	return nil
}

// ChannelID returns the joined voice channel ID.
func (v *voiceChannel) ChannelID() string {
	return v.vc.ChannelID
}

// Occupants counts the users sharing the voice channel, excluding the bot.
// A state-cache miss returns -1 rather than 0: a transient miss must not
// read as an empty channel.
func (v *voiceChannel) Occupants() int {
	guild, err := v.session.State.Guild(v.guildID)
	if err != nil {
		return -1
	}
	botID := ""
	if v.session.State.User != nil {
		botID = v.session.State.User.ID
	}
	n := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == v.vc.ChannelID && vs.UserID != botID {
			n++
		}
	}
	return n
}

// Disconnect stops any stream and leaves the voice channel.
func (v *voiceChannel) Disconnect() error {
	v.Stop()
	if err := v.vc.Disconnect(); err != nil {
		return fmt.Errorf("discord: leave voice channel: %w", err)
	}
	return nil
}
