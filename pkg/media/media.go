// Package media defines the Resolver interface over an audio
// search/extraction backend. A resolver turns a free-text query or URL into
// playable source metadata — either a remote stream URL or a downloaded
// local file. The production implementation shells out to yt-dlp (package
// ytdlp); tests use the scripted double in mock.
package media

import (
	"context"
	"time"
)

// Info is the resolved metadata for one playable item.
type Info struct {
	Title     string
	Uploader  string
	Thumbnail string
	PageURL   string
	Duration  time.Duration

	// StreamURL is the direct audio stream location. Empty when the item
	// was downloaded instead.
	StreamURL string

	// LocalPath is the downloaded file location. Empty for streamed items.
	// The caller owns the file and is responsible for deleting it.
	LocalPath string

	// IsLive marks live broadcasts, which have no meaningful duration.
	IsLive bool
}

// Source returns the playable locator: the stream URL, or the local path
// when the item was downloaded.
func (i *Info) Source() string {
	if i.StreamURL != "" {
		return i.StreamURL
	}
	return i.LocalPath
}

// Resolver resolves a query into one or more playable items. A playlist
// query yields multiple entries; plain queries and URLs yield one.
// Implementations must be safe for concurrent use and are subject to
// transient network failure.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]*Info, error)
}
