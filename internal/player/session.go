// Package player implements the per-guild playback engine: a single-consumer
// FIFO track queue with lazy source resolution, stall detection and stream
// recovery, inactivity teardown, and the seek/volume/skip operations the
// tool dispatcher drives.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Akinara666/PeaceMusic/internal/observe"
	"github.com/Akinara666/PeaceMusic/pkg/media"
)

// State describes what a session is currently doing.
type State int

const (
	// StateIdle: no current track; the queue may hold entries waiting for
	// a voice connection.
	StateIdle State = iota

	// StateResolving: a dequeued track's playable source is being fetched.
	StateResolving

	// StatePlaying: a source has been handed to the voice connection.
	StatePlaying

	// StateStalled: playing, but no audio has progressed within the
	// liveness window.
	StateStalled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResolving:
		return "RESOLVING"
	case StatePlaying:
		return "PLAYING"
	case StateStalled:
		return "STALLED"
	default:
		return "UNKNOWN"
	}
}

// Tuning defaults, matching the housekeeping thresholds of the original
// deployment.
const (
	defaultStallThreshold = 15 * time.Second
	defaultRestartMargin  = 2 * time.Second
	defaultIdleThreshold  = 30 * time.Minute
	maxVolume             = 2.0
)

// SessionConfig holds the collaborators and thresholds shared by all
// sessions of a [Registry].
type SessionConfig struct {
	Resolver media.Resolver
	// Connector establishes voice connections. Must not be nil.
	Connector Connector
	// Notifier delivers playback notices. May be nil (notices dropped).
	Notifier Notifier
	// Metrics records playback counters. May be nil.
	Metrics *observe.Metrics

	StallThreshold time.Duration
	RestartMargin  time.Duration
	IdleThreshold  time.Duration
}

// PlayInput is one accepted play request.
type PlayInput struct {
	Query          string
	Requester      string
	TextChannelID  string
	VoiceChannelID string
}

// Session owns the playback state for one guild: the voice connection
// handle, the FIFO queue, and at most one current track. All mutation goes
// through the session mutex; the advance loop is additionally guarded so
// only one resolution/playback start is in flight at a time.
type Session struct {
	guildID string
	cfg     SessionConfig
	now     func() time.Time

	mu        sync.Mutex
	voice     Voice
	queue     []*Track
	current   *Track
	resolving bool
	advancing bool
	checking  bool
	volume    float64
	lastAudio time.Time

	// startedAt and seekBase track the current playback's position so a
	// stall restart can estimate where to resume.
	startedAt time.Time
	seekBase  time.Duration

	// suppressAdvance swallows exactly one completion callback after the
	// engine itself stops playback to swap sources (seek, stall recovery).
	suppressAdvance bool

	// stallRestarted marks that the current stall episode already got its
	// one restart attempt. Cleared whenever audio progresses.
	stallRestarted bool
}

func newSession(guildID string, cfg SessionConfig, now func() time.Time) *Session {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = defaultStallThreshold
	}
	if cfg.RestartMargin <= 0 {
		cfg.RestartMargin = defaultRestartMargin
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = defaultIdleThreshold
	}
	return &Session{
		guildID:   guildID,
		cfg:       cfg,
		now:       now,
		volume:    1.0,
		lastAudio: now(),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.resolving:
		return StateResolving
	case s.current == nil:
		return StateIdle
	case s.now().Sub(s.lastAudio) > s.cfg.StallThreshold:
		return StateStalled
	default:
		return StatePlaying
	}
}

// QueueLen returns the number of queued (not current) tracks.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// notify sends a playback notice, dropping it when no notifier is wired.
func (s *Session) notify(channelID, msg string) {
	if s.cfg.Notifier != nil && channelID != "" {
		s.cfg.Notifier.Notify(channelID, msg)
	}
}

// ── Voice connection ─────────────────────────────────────────────────────────

// EnsureVoice connects the session to voiceChannelID, moving an existing
// connection when it is bound to a different channel.
func (s *Session) EnsureVoice(ctx context.Context, voiceChannelID string) error {
	if voiceChannelID == "" {
		return fmt.Errorf("player: requester is not in a voice channel")
	}

	s.mu.Lock()
	cur := s.voice
	s.mu.Unlock()
	if cur != nil && cur.ChannelID() == voiceChannelID {
		return nil
	}

	voice, err := s.cfg.Connector.Connect(ctx, s.guildID, voiceChannelID)
	if err != nil {
		return fmt.Errorf("player: connect voice: %w", err)
	}
	s.mu.Lock()
	s.voice = voice
	s.mu.Unlock()
	return nil
}

// ── Queue operations ─────────────────────────────────────────────────────────

// Play accepts a play request: it ensures a voice connection, appends one
// track per resolved-later entry to the queue tail, and kicks the consumer
// when the session is idle. Returns a summary for the tool result.
func (s *Session) Play(ctx context.Context, in PlayInput) (string, error) {
	if err := s.EnsureVoice(ctx, in.VoiceChannelID); err != nil {
		return "", err
	}

	track := &Track{
		Query:         in.Query,
		Requester:     in.Requester,
		TextChannelID: in.TextChannelID,
	}

	s.mu.Lock()
	s.queue = append(s.queue, track)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.QueueDepth.Add(ctx, 1)
	}
	shouldAdvance := s.current == nil && !s.advancing && s.voice != nil
	s.mu.Unlock()

	s.notify(in.TextChannelID, "Queued: "+in.Query)

	if shouldAdvance {
		go s.advance(context.WithoutCancel(ctx))
	}
	return "Added to queue: " + in.Query, nil
}

// advance is the queue consumer: it pops the head, resolves its playable
// source, and hands it to the voice connection. Resolution failures notify
// the requesting channel and skip to the next track instead of stalling the
// queue. Only one advance loop runs at a time.
func (s *Session) advance(ctx context.Context) {
	s.mu.Lock()
	if s.advancing || s.current != nil {
		s.mu.Unlock()
		return
	}
	s.advancing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.advancing = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if s.voice == nil || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		track := s.queue[0]
		s.queue = s.queue[1:]
		s.resolving = true
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.QueueDepth.Add(ctx, -1)
		}
		s.mu.Unlock()

		info, err := s.resolveOne(ctx, track.Query)

		s.mu.Lock()
		s.resolving = false
		if s.voice == nil {
			// Torn down while resolving.
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.mu.Unlock()
			slog.Warn("track resolution failed, skipping", "guild", s.guildID, "query", track.Query, "err", err)
			s.notify(track.TextChannelID, "Could not find a playable track for: "+track.Query)
			continue
		}
		track.fill(info)
		s.current = track
		s.startedAt = s.now()
		s.seekBase = 0
		s.lastAudio = s.now()
		s.stallRestarted = false
		voice := s.voice
		vol := s.volume
		s.mu.Unlock()

		err = voice.Play(ctx, PlayRequest{
			Source:     track.Source(),
			IsStream:   !track.IsLocal(),
			Volume:     vol,
			OnProgress: s.markAudio,
			OnDone:     s.onPlaybackDone,
		})
		if err != nil {
			slog.Error("playback start failed, skipping", "guild", s.guildID, "title", track.DisplayTitle(), "err", err)
			s.notify(track.TextChannelID, "Could not play: "+track.DisplayTitle())
			s.mu.Lock()
			s.current = nil
			s.mu.Unlock()
			track.release()
			continue
		}

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TracksPlayed.Add(ctx, 1)
		}
		slog.Info("now playing", "guild", s.guildID, "title", track.DisplayTitle())
		s.notify(track.TextChannelID, "Now playing: "+track.DisplayTitle())
		return
	}
}

// resolveOne resolves a query to its first playable entry.
func (s *Session) resolveOne(ctx context.Context, query string) (*media.Info, error) {
	infos, err := s.cfg.Resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("player: no results for %q", query)
	}
	return infos[0], nil
}

// markAudio is the liveness heartbeat, invoked by the voice layer as frames
// are delivered.
func (s *Session) markAudio() {
	s.mu.Lock()
	s.lastAudio = s.now()
	s.stallRestarted = false
	s.mu.Unlock()
}

// onPlaybackDone is the completion callback: it clears the current track,
// releases its resources, and re-triggers the consumer — unless the engine
// itself stopped playback to swap sources, in which case exactly one
// callback is swallowed.
func (s *Session) onPlaybackDone(err error) {
	s.mu.Lock()
	if s.suppressAdvance {
		s.suppressAdvance = false
		s.mu.Unlock()
		return
	}
	track := s.current
	s.current = nil
	s.mu.Unlock()

	if err != nil {
		slog.Error("playback ended with error", "guild", s.guildID, "err", err)
	}
	if track != nil {
		track.release()
	}
	go s.advance(context.Background())
}

// skipFailedRestart recovers a session whose current stream was stopped for
// a source swap that then failed to start. The swallowed completion
// callback may or may not have fired yet, so the pending suppression is
// cleared together with the current track before the consumer is re-kicked.
func (s *Session) skipFailedRestart(track *Track) {
	s.mu.Lock()
	s.suppressAdvance = false
	if s.current == track {
		s.current = nil
	}
	s.mu.Unlock()
	track.release()
	go s.advance(context.Background())
}

// ── Tool-facing operations ───────────────────────────────────────────────────

// Skip stops the current track; the completion callback advances the queue.
func (s *Session) Skip() (string, error) {
	s.mu.Lock()
	voice, track := s.voice, s.current
	s.mu.Unlock()

	if voice == nil || track == nil {
		return "Nothing is playing right now.", nil
	}
	title := track.DisplayTitle()
	voice.Stop()
	return "Skipped: " + title, nil
}

// Stop clears the queue and halts playback.
func (s *Session) Stop() (string, error) {
	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	voice := s.voice
	s.mu.Unlock()

	for _, t := range dropped {
		t.release()
	}
	if voice != nil {
		voice.Stop()
	}
	return "Queue cleared and playback stopped.", nil
}

// RemoveByName removes at most one queued (not current) track whose title
// or query contains name, case-insensitively.
func (s *Session) RemoveByName(name string) (string, error) {
	needle := strings.ToLower(name)

	s.mu.Lock()
	idx := -1
	for i, t := range s.queue {
		if strings.Contains(strings.ToLower(t.DisplayTitle()), needle) {
			idx = i
			break
		}
	}
	var removed *Track
	if idx >= 0 {
		removed = s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	}
	s.mu.Unlock()

	if removed == nil {
		return "No such track in the queue.", nil
	}
	removed.release()
	return "Removed from queue: " + removed.DisplayTitle(), nil
}

// SetVolume applies a gain level to the currently playing source.
func (s *Session) SetVolume(level float64) (string, error) {
	s.mu.Lock()
	voice, playing := s.voice, s.current != nil
	s.mu.Unlock()

	if voice == nil || !playing {
		return "Nothing is playing right now.", nil
	}
	if level < 0 || level > maxVolume {
		return "Volume must be between 0.0 and 2.0.", nil
	}
	if err := voice.SetVolume(level); err != nil {
		return "", fmt.Errorf("player: set volume: %w", err)
	}
	s.mu.Lock()
	s.volume = level
	s.mu.Unlock()
	return fmt.Sprintf("Volume set to %d%%.", int(level*100)), nil
}

// SeekTo restarts the current track at the parsed offset, preserving its
// place as current.
func (s *Session) SeekTo(ctx context.Context, timestamp string) (string, error) {
	offset, err := ParseTimestamp(timestamp)
	if err != nil {
		return "Invalid time format. Use seconds, MM:SS, or HH:MM:SS.", nil
	}

	s.mu.Lock()
	voice, track := s.voice, s.current
	if voice == nil || track == nil {
		s.mu.Unlock()
		return "Nothing is playing right now.", nil
	}
	if track.Source() == "" {
		s.mu.Unlock()
		return "Seeking is not available for this track.", nil
	}
	s.suppressAdvance = true
	vol := s.volume
	s.mu.Unlock()

	voice.Stop()
	err = voice.Play(ctx, PlayRequest{
		Source:     track.Source(),
		IsStream:   !track.IsLocal(),
		Seek:       offset,
		Volume:     vol,
		OnProgress: s.markAudio,
		OnDone:     s.onPlaybackDone,
	})
	if err != nil {
		// The old stream is already stopped, so the track cannot keep
		// playing; drop it and let the queue move on.
		s.skipFailedRestart(track)
		return "", fmt.Errorf("player: seek: %w", err)
	}

	s.mu.Lock()
	s.seekBase = offset
	s.startedAt = s.now()
	s.lastAudio = s.now()
	s.mu.Unlock()
	return "Sought to " + FormatDuration(offset) + ".", nil
}

// Summon connects the bot to the requester's voice channel.
func (s *Session) Summon(ctx context.Context, voiceChannelID string) (string, error) {
	if err := s.EnsureVoice(ctx, voiceChannelID); err != nil {
		return "", err
	}
	return "Connected to the voice channel.", nil
}

// Disconnect tears the session down: playback stops, the queue is cleared,
// owned resources are released, and the voice connection is dropped.
func (s *Session) Disconnect() (string, error) {
	s.teardown()
	return "Disconnected and cleared the queue.", nil
}

func (s *Session) teardown() {
	s.mu.Lock()
	voice := s.voice
	s.voice = nil
	dropped := s.queue
	s.queue = nil
	track := s.current
	s.current = nil
	s.suppressAdvance = false
	s.mu.Unlock()

	for _, t := range dropped {
		t.release()
	}
	if track != nil {
		track.release()
	}
	if voice != nil {
		voice.Stop()
		if err := voice.Disconnect(); err != nil {
			slog.Warn("voice disconnect failed", "guild", s.guildID, "err", err)
		}
	}
}

// ── Housekeeping ─────────────────────────────────────────────────────────────

// CheckStall inspects liveness and, at most once per stall episode,
// restarts a stalled remote stream at roughly the position it stalled.
// Resolution failures leave the stalled playback alone; a failed restart
// after the old stream was stopped skips to the next track.
// Re-entrant calls while a previous check is still working are skipped.
func (s *Session) CheckStall(ctx context.Context) {
	s.mu.Lock()
	if s.checking {
		s.mu.Unlock()
		return
	}
	track := s.current
	if track == nil || s.resolving || track.IsLocal() || s.stallRestarted {
		s.mu.Unlock()
		return
	}
	gap := s.now().Sub(s.lastAudio)
	if gap <= s.cfg.StallThreshold {
		s.mu.Unlock()
		return
	}
	s.stallRestarted = true
	s.checking = true
	elapsed := s.seekBase + s.now().Sub(s.startedAt) - s.cfg.RestartMargin
	if elapsed < 0 {
		elapsed = 0
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.checking = false
		s.mu.Unlock()
	}()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.PlaybackStalls.Add(ctx, 1)
	}
	slog.Warn("playback stalled, restarting stream", "guild", s.guildID, "title", track.DisplayTitle(), "gap", gap, "resume_at", elapsed)

	// Re-resolve the same logical source: the old stream URL likely expired.
	info, err := s.resolveOne(ctx, track.Query)
	if err != nil {
		slog.Error("stall recovery resolution failed", "guild", s.guildID, "err", err)
		return
	}

	s.mu.Lock()
	if s.current != track || s.voice == nil {
		// Track changed or session torn down while re-resolving.
		s.mu.Unlock()
		return
	}
	track.StreamURL = info.StreamURL
	s.suppressAdvance = true
	voice := s.voice
	vol := s.volume
	s.mu.Unlock()

	voice.Stop()
	err = voice.Play(ctx, PlayRequest{
		Source:     track.Source(),
		IsStream:   true,
		Seek:       elapsed,
		Volume:     vol,
		OnProgress: s.markAudio,
		OnDone:     s.onPlaybackDone,
	})
	if err != nil {
		// The stalled stream is already stopped; keeping the track as
		// current would leave the session wedged with nothing playing.
		// Treat the failure as a skip.
		slog.Error("stall recovery restart failed, skipping track", "guild", s.guildID, "err", err)
		s.notify(track.TextChannelID, "Could not resume: "+track.DisplayTitle())
		s.skipFailedRestart(track)
		return
	}

	s.mu.Lock()
	s.seekBase = elapsed
	s.startedAt = s.now()
	s.lastAudio = s.now()
	s.mu.Unlock()
}

// CheckInactivity disconnects the voice connection when nothing has played
// for the idle threshold, or when the bot is alone in the channel. Teardown
// clears the queue and releases all owned resources.
func (s *Session) CheckInactivity() {
	s.mu.Lock()
	voice := s.voice
	if voice == nil {
		s.mu.Unlock()
		return
	}
	idle := s.current == nil && s.now().Sub(s.lastAudio) > s.cfg.IdleThreshold
	s.mu.Unlock()

	// A negative count means the occupant state is momentarily unknown;
	// only a confirmed empty channel counts as alone.
	alone := voice.Occupants() == 0

	if !idle && !alone {
		return
	}
	slog.Info("tearing down inactive voice session", "guild", s.guildID, "idle", idle, "alone", alone)
	s.teardown()
}
