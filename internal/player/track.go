package player

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/Akinara666/PeaceMusic/pkg/media"
)

// Track is one playback request in a session's queue. It is created when a
// play request is accepted with only the query and requester filled in;
// metadata and the playable source are resolved lazily when the track is
// dequeued, so slow lookups never block the queue.
type Track struct {
	// Query is the user's original search text or URL.
	Query string

	// Requester is the display name of the user who asked for the track.
	Requester string

	// TextChannelID is where playback notices for this track go.
	TextChannelID string

	// Resolved metadata, populated at dequeue time.
	Title     string
	Uploader  string
	Thumbnail string
	PageURL   string
	Duration  time.Duration
	StreamURL string
	LocalPath string
	IsLive    bool
}

// fill copies resolved metadata into the track.
func (t *Track) fill(info *media.Info) {
	t.Title = info.Title
	t.Uploader = info.Uploader
	t.Thumbnail = info.Thumbnail
	t.PageURL = info.PageURL
	t.Duration = info.Duration
	t.StreamURL = info.StreamURL
	t.LocalPath = info.LocalPath
	t.IsLive = info.IsLive
}

// Source returns the playable locator, or "" when the track has not been
// resolved yet.
func (t *Track) Source() string {
	if t.StreamURL != "" {
		return t.StreamURL
	}
	return t.LocalPath
}

// IsLocal reports whether playback runs from a downloaded file the track
// owns exclusively.
func (t *Track) IsLocal() bool { return t.LocalPath != "" }

// DisplayTitle returns the resolved title, falling back to the query for
// tracks that have not been resolved yet.
func (t *Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.Query
}

// release frees the track's exclusively-owned resources. Deleting an
// already-deleted file is not an error.
func (t *Track) release() {
	if t.LocalPath == "" {
		return
	}
	if err := os.Remove(t.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to remove track file", "path", t.LocalPath, "err", err)
	}
	t.LocalPath = ""
}
