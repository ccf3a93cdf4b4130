// Package model defines the Provider interface for generative-language
// backends together with the Turn/Part conversation data model shared by the
// history store and the response engine.
//
// A model provider wraps a remote generation API (e.g. Gemini) and exposes a
// uniform surface for content generation with tool calling plus the file
// attachment backend (upload + state polling) that conversation parts may
// reference. Implementations live in subpackages (gemini, mock) and must be
// safe for concurrent use.
package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Provider is the abstraction over a generative-language backend.
//
// All methods must propagate context cancellation promptly. Generate returns
// (nil, nil) when the backend produced no usable candidate; callers must
// treat that as "no reply", not as success with empty content.
type Provider interface {
	// Generate sends the full conversation history to the model and returns
	// the model's next turn. The returned turn may contain any mix of text
	// and function-call parts.
	Generate(ctx context.Context, history []*Turn, cfg GenerateConfig) (*Turn, error)

	// UploadFile stores the given content with the provider's attachment
	// backend and returns its descriptor. The file may still be in the
	// PROCESSING state on return; poll with GetFile until ACTIVE.
	UploadFile(ctx context.Context, r io.Reader, mimeType string) (*FileInfo, error)

	// GetFile fetches the current descriptor of a previously uploaded file
	// by its resource name.
	GetFile(ctx context.Context, name string) (*FileInfo, error)
}

// APIError is a classified error returned by provider implementations.
// StatusCode follows HTTP semantics regardless of the underlying transport.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model: api error %d: %s", e.StatusCode, e.Message)
}

// IsOverloaded reports whether err is a transient server-side failure that
// warrants a backoff retry (503, 429, or an explicit overload message).
func IsOverloaded(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.StatusCode == 503 || ae.StatusCode == 429 {
		return true
	}
	return strings.Contains(strings.ToLower(ae.Message), "overloaded")
}

// IsRejection reports whether err is a client-side rejection (4xx), e.g. a
// request referencing an expired file.
func IsRejection(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode >= 400 && ae.StatusCode < 500 && ae.StatusCode != 429
}

// IsGone reports whether err indicates a resource the backend no longer
// serves (404) or refuses to serve (403). Used by the history sanitizer to
// decide that a file reference is stale.
func IsGone(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.StatusCode == 403 || ae.StatusCode == 404
}
