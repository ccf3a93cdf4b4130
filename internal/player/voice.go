package player

import (
	"context"
	"time"
)

// PlayRequest describes one source handed to the voice layer.
type PlayRequest struct {
	// Source is the stream URL or local file path to play.
	Source string

	// IsStream marks remote sources so the transport can enable
	// reconnect-on-drop behaviour.
	IsStream bool

	// Seek starts playback at the given offset into the source.
	Seek time.Duration

	// Volume is the initial software gain in [0.0, 2.0].
	Volume float64

	// OnProgress is invoked as audio frames are delivered. Used as the
	// liveness heartbeat for stall detection. May be nil.
	OnProgress func()

	// OnDone is invoked exactly once when playback ends — naturally, on
	// error, or because Stop was called. May be nil. It is called from the
	// voice layer's own goroutine; implementations re-enter the session
	// through its mutex-guarded methods.
	OnDone func(err error)
}

// Voice is the session's exclusive handle on an active voice-channel
// connection. Only the playback engine touches it; tool handlers reach it
// through the session's public operations.
type Voice interface {
	// Play starts playing req. At most one source plays at a time; callers
	// must Stop any current source first.
	Play(ctx context.Context, req PlayRequest) error

	// Stop halts the current source, triggering its OnDone callback.
	// No-op when nothing is playing.
	Stop()

	// IsPlaying reports whether a source is currently playing.
	IsPlaying() bool

	// SetVolume adjusts the gain of the currently playing source.
	SetVolume(level float64) error

	// ChannelID returns the voice channel this connection is bound to.
	ChannelID() string

	// Occupants returns the number of connected users in the channel,
	// excluding the bot itself, or -1 when the count is momentarily
	// unknown.
	Occupants() int

	// Disconnect tears the connection down. Safe to call more than once.
	Disconnect() error
}

// Connector establishes (or moves) a guild's voice connection. Implemented
// by the Discord adapter; tests use a fake.
type Connector interface {
	// Connect joins channelID in the given guild. When the guild already
	// has a live connection elsewhere, the implementation moves it.
	Connect(ctx context.Context, guildID, channelID string) (Voice, error)
}

// Notifier delivers short user-facing playback notices ("now playing",
// resolution failures) to a text channel.
type Notifier interface {
	Notify(channelID, message string)
}
