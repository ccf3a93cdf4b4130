package media

import (
	"net/url"
	"strings"
)

// Query normalization: users may prefix a query with "sc " / "soundcloud "
// (or the colon forms) to force a SoundCloud search, or paste a bare
// soundcloud.com link without a scheme. Everything else passes through and
// defaults to a YouTube search on the extractor side.

var soundcloudDomains = []string{"soundcloud.com", "on.soundcloud.com"}

var soundcloudPrefixes = []string{"sc ", "soundcloud ", "sc:", "soundcloud:"}

func looksLikeURL(query string) bool {
	lowered := strings.ToLower(query)
	return strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://")
}

// NormalizeQuery rewrites user input to support explicit SoundCloud
// searches and schemeless SoundCloud URLs. The result is what gets handed
// to the extraction backend.
func NormalizeQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	lowered := strings.ToLower(query)

	for _, prefix := range soundcloudPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			rest := strings.TrimSpace(query[len(prefix):])
			if rest != "" {
				return "scsearch1:" + rest
			}
			return query
		}
	}

	if strings.HasPrefix(lowered, "scsearch") {
		return query
	}

	if !looksLikeURL(query) {
		stripped := strings.TrimPrefix(lowered, "www.")
		if !strings.Contains(stripped, " ") {
			for _, domain := range soundcloudDomains {
				if strings.Contains(stripped, domain) {
					return "https://" + query
				}
			}
		}
	}

	return query
}

// IsSoundCloudQuery reports whether the (normalized) query targets
// SoundCloud — either as an explicit scsearch or a soundcloud.com URL.
// SoundCloud sources are downloaded rather than streamed.
func IsSoundCloudQuery(query string) bool {
	if strings.HasPrefix(strings.ToLower(query), "scsearch") {
		return true
	}
	if !looksLikeURL(query) {
		return false
	}
	parsed, err := url.Parse(query)
	if err != nil {
		return false
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return false
	}
	for _, domain := range soundcloudDomains {
		if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
			return true
		}
	}
	return false
}
