package discord

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

// Discord voice uses 48 kHz stereo Opus at 20 ms frame size.
const (
	opusSampleRate = 48000
	opusChannels   = 2
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * 20 / 1000 // 960
	// pcmFrameBytes is the PCM input size for one Opus frame:
	// 960 samples/channel × 2 channels × 2 bytes/sample.
	pcmFrameBytes = opusFrameSize * opusChannels * 2
)

// loudnessFilter keeps perceived loudness consistent across sources.
const loudnessFilter = "loudnorm=I=-14:LRA=11:TP=-1.5"

// ffmpegArgs builds the decode pipeline arguments: remote streams get the
// reconnect flags so transient HTTP drops recover in place, and a seek
// offset is applied before the input so ffmpeg can skip without decoding.
func ffmpegArgs(source string, isStream bool, seek time.Duration) []string {
	args := []string{"-nostdin"}
	if isStream {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	if seek > 0 {
		args = append(args, "-ss", strconv.Itoa(int(seek.Seconds())))
	}
	args = append(args,
		"-i", source,
		"-vn", "-sn", "-dn",
		"-bufsize", "64k",
		"-probesize", "32k",
		"-analyzeduration", "0",
		"-flags", "low_delay",
		"-threads", "1",
		"-loglevel", "warning",
		"-af", loudnessFilter,
		"-f", "s16le",
		"-ar", strconv.Itoa(opusSampleRate),
		"-ac", strconv.Itoa(opusChannels),
		"pipe:1",
	)
	return args
}

// streamer decodes one source through ffmpeg and pushes 20 ms Opus frames
// to a Discord voice connection until the source ends or it is stopped.
// The completion callback fires exactly once.
type streamer struct {
	cancel context.CancelFunc

	// gain holds the playback volume as float64 bits, shared with the
	// owning connection so volume changes apply to the live stream.
	gain *atomic.Uint64

	onProgress func()
	onDone     func(error)
	doneOnce   sync.Once

	finished atomic.Bool
}

// startStream launches ffmpeg and the frame pump. The returned streamer is
// already running; stop it via [streamer.stop].
func startStream(ctx context.Context, vc *discordgo.VoiceConnection, source string, isStream bool, seek time.Duration, gain *atomic.Uint64, onProgress func(), onDone func(error)) (*streamer, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("discord: create opus encoder: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(source, isStream, seek)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("discord: ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("discord: start ffmpeg: %w", err)
	}

	s := &streamer{
		cancel:     cancel,
		gain:       gain,
		onProgress: onProgress,
		onDone:     onDone,
	}
	go s.pump(ctx, vc, cmd, bufio.NewReaderSize(stdout, pcmFrameBytes*4), enc)
	return s, nil
}

// stop cancels the stream. The completion callback still fires from the
// pump goroutine.
func (s *streamer) stop() {
	s.cancel()
}

func (s *streamer) running() bool {
	return !s.finished.Load()
}

// pump reads exact PCM frames from ffmpeg, applies the software gain,
// encodes to Opus, and writes to the voice connection's send channel.
func (s *streamer) pump(ctx context.Context, vc *discordgo.VoiceConnection, cmd *exec.Cmd, r io.Reader, enc *gopus.Encoder) {
	var pumpErr error
	defer func() {
		s.setSpeaking(vc, false)
		s.cancel()
		if werr := cmd.Wait(); werr != nil && pumpErr == nil && ctx.Err() == nil {
			pumpErr = fmt.Errorf("discord: ffmpeg: %w", werr)
		}
		s.finished.Store(true)
		s.doneOnce.Do(func() {
			if s.onDone != nil {
				s.onDone(pumpErr)
			}
		})
	}()

	s.setSpeaking(vc, true)

	buf := make([]byte, pcmFrameBytes)
	pcm := make([]int16, opusFrameSize*opusChannels)

	for {
		if ctx.Err() != nil {
			return
		}
		_, err := io.ReadFull(r, buf)
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF && ctx.Err() == nil {
				pumpErr = fmt.Errorf("discord: read pcm: %w", err)
			}
			return
		}

		vol := math.Float64frombits(s.gain.Load())
		for i := range pcm {
			sample := float64(int16(uint16(buf[i*2])|uint16(buf[i*2+1])<<8)) * vol
			switch {
			case sample > 32767:
				sample = 32767
			case sample < -32768:
				sample = -32768
			}
			pcm[i] = int16(sample)
		}

		opus, err := enc.Encode(pcm, opusFrameSize, pcmFrameBytes)
		if err != nil {
			pumpErr = fmt.Errorf("discord: opus encode: %w", err)
			return
		}

		select {
		case vc.OpusSend <- opus:
			if s.onProgress != nil {
				s.onProgress()
			}
		case <-ctx.Done():
			return
		}
	}
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (s *streamer) setSpeaking(vc *discordgo.VoiceConnection, b bool) {
	if err := vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
