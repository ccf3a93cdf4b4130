// Package ytdlp implements media.Resolver by shelling out to the yt-dlp
// command-line extractor. Queries default to a YouTube search; SoundCloud
// queries are downloaded to a local file (their stream URLs expire too
// quickly to be useful), everything else resolves to a direct stream URL.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Akinara666/PeaceMusic/pkg/media"
)

// Compile-time interface assertion.
var _ media.Resolver = (*Resolver)(nil)

// audioFormat is the yt-dlp format selector, preferring Opus-in-WebM since
// it transcodes cheapest for the voice pipeline.
const audioFormat = "bestaudio[acodec=opus][ext=webm]/bestaudio[ext=m4a]/bestaudio"

// cacheTTL bounds how long extraction results are reused for the same query.
const cacheTTL = 15 * time.Minute

// Resolver runs yt-dlp as a subprocess. Safe for concurrent use.
type Resolver struct {
	binary      string
	musicDir    string
	cookiesFile string

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	// run executes the prepared command and returns its stdout; replaced in
	// tests to avoid spawning processes.
	run func(cmd *exec.Cmd) ([]byte, error)

	now func() time.Time
}

type cacheEntry struct {
	at    time.Time
	infos []*media.Info
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithBinary overrides the yt-dlp executable path.
func WithBinary(path string) Option {
	return func(r *Resolver) { r.binary = path }
}

// WithCookiesFile points yt-dlp at a Netscape-format cookies file.
func WithCookiesFile(path string) Option {
	return func(r *Resolver) { r.cookiesFile = path }
}

// New creates a Resolver that downloads local files into musicDir.
func New(musicDir string, opts ...Option) (*Resolver, error) {
	if err := os.MkdirAll(musicDir, 0o755); err != nil {
		return nil, fmt.Errorf("ytdlp: create music dir: %w", err)
	}
	r := &Resolver{
		binary:   "yt-dlp",
		musicDir: musicDir,
		cache:    make(map[string]cacheEntry),
		run:      func(cmd *exec.Cmd) ([]byte, error) { return cmd.Output() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve implements media.Resolver. The query is normalized first;
// SoundCloud targets are downloaded, everything else is resolved to a
// stream URL. Results are cached per query for a short TTL.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]*media.Info, error) {
	normalized := media.NormalizeQuery(query)
	if normalized != query {
		slog.Debug("normalized audio query", "from", query, "to", normalized)
	}
	download := media.IsSoundCloudQuery(normalized)

	cacheKey := strconv.FormatBool(download) + ":" + normalized
	r.cacheMu.Lock()
	if entry, ok := r.cache[cacheKey]; ok && r.now().Sub(entry.at) < cacheTTL {
		r.cacheMu.Unlock()
		return entry.infos, nil
	}
	r.cacheMu.Unlock()

	args := []string{
		"-J",
		"--no-playlist",
		"--default-search", "ytsearch1",
		"-f", audioFormat,
		"--no-part",
		"--force-ipv4",
		"--retries", "5",
		"--fragment-retries", "5",
		"--socket-timeout", "15",
	}
	if r.cookiesFile != "" {
		args = append(args, "--cookies", r.cookiesFile)
	}
	if download {
		args = append(args,
			"--no-simulate",
			"-o", filepath.Join(r.musicDir, "%(extractor)s-%(id)s.%(ext)s"),
		)
	}
	args = append(args, "--", normalized)

	start := r.now()
	cmd := exec.CommandContext(ctx, r.binary, args...)
	out, err := r.run(cmd)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ytdlp: extract %q: %w: %s", normalized, err, firstLine(exitErr.Stderr))
		}
		return nil, fmt.Errorf("ytdlp: extract %q: %w", normalized, err)
	}
	slog.Debug("yt-dlp extraction finished", "query", normalized, "elapsed", r.now().Sub(start))

	infos, err := parseOutput(out, download)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[cacheKey] = cacheEntry{at: r.now(), infos: infos}
	r.cacheMu.Unlock()
	return infos, nil
}

// extractorInfo mirrors the subset of yt-dlp's JSON output consumed here.
type extractorInfo struct {
	Title              string          `json:"title"`
	URL                string          `json:"url"`
	WebpageURL         string          `json:"webpage_url"`
	Thumbnail          string          `json:"thumbnail"`
	Uploader           string          `json:"uploader"`
	Duration           float64         `json:"duration"`
	IsLive             bool            `json:"is_live"`
	Entries            []extractorInfo `json:"entries"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

func parseOutput(out []byte, download bool) ([]*media.Info, error) {
	var root extractorInfo
	if err := json.Unmarshal(bytes.TrimSpace(out), &root); err != nil {
		return nil, fmt.Errorf("ytdlp: parse output: %w", err)
	}

	entries := root.Entries
	if len(entries) == 0 {
		entries = []extractorInfo{root}
	}

	infos := make([]*media.Info, 0, len(entries))
	for _, e := range entries {
		if e.Title == "" && e.URL == "" {
			continue
		}
		info := &media.Info{
			Title:     e.Title,
			Uploader:  e.Uploader,
			Thumbnail: e.Thumbnail,
			PageURL:   e.WebpageURL,
			Duration:  time.Duration(e.Duration * float64(time.Second)),
			IsLive:    e.IsLive,
		}
		if info.Title == "" {
			info.Title = "Untitled"
		}
		if download {
			if len(e.RequestedDownloads) > 0 {
				info.LocalPath = e.RequestedDownloads[0].Filepath
			}
			if info.LocalPath == "" {
				return nil, fmt.Errorf("ytdlp: download succeeded but no file path reported for %q", info.Title)
			}
		} else {
			info.StreamURL = e.URL
			if info.StreamURL == "" {
				return nil, fmt.Errorf("ytdlp: no stream url for %q", info.Title)
			}
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("ytdlp: no playable entries in output")
	}
	return infos, nil
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}
