package chat

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// expiredPlaceholder replaces file-reference parts whose backing file the
// provider no longer serves.
const expiredPlaceholder = "[Expired Attachment]"

// sanitizeConcurrency bounds parallel file-state checks against the
// attachment backend.
const sanitizeConcurrency = 10

// sanitize validates every file reference still embedded in conv against
// the attachment backend and replaces gone/forbidden references in place
// with a neutral text placeholder. It reports whether anything changed.
// References that fail with unknown errors (network trouble, rate limits)
// are left untouched.
func (e *Engine) sanitize(ctx context.Context, conv *history.Conversation) (bool, error) {
	uris := make(map[string]struct{})
	for _, turn := range conv.Turns {
		for _, p := range turn.Parts {
			if p.FileData != nil && p.FileData.URI != "" {
				uris[p.FileData.URI] = struct{}{}
			}
		}
	}
	if len(uris) == 0 {
		return false, nil
	}

	var mu sync.Mutex
	invalid := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sanitizeConcurrency)
	for uri := range uris {
		name, ok := fileNameFromURI(uri)
		if !ok {
			continue
		}
		g.Go(func() error {
			_, err := e.provider.GetFile(gctx, name)
			if model.IsGone(err) {
				mu.Lock()
				invalid[uri] = true
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	if len(invalid) == 0 {
		return false, nil
	}

	conv.Mutate(func(turns []*model.Turn) []*model.Turn {
		for _, turn := range turns {
			for i, p := range turn.Parts {
				if p.FileData != nil && invalid[p.FileData.URI] {
					turn.Parts[i] = model.TextPart(expiredPlaceholder)
				}
			}
		}
		return turns
	})
	return true, nil
}

// fileNameFromURI extracts the provider resource name ("files/<id>") from a
// file URI. Returns ok=false for URIs that do not reference the files API.
func fileNameFromURI(uri string) (string, bool) {
	const marker = "/files/"
	idx := strings.LastIndex(uri, marker)
	if idx < 0 {
		return "", false
	}
	return "files/" + uri[idx+len(marker):], true
}
