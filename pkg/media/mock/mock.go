// Package mock provides a scripted test double for the media.Resolver
// interface.
package mock

import (
	"context"
	"sync"

	"github.com/Akinara666/PeaceMusic/pkg/media"
)

// Result is one scripted outcome keyed by query.
type Result struct {
	Infos []*media.Info
	Err   error
}

// Resolver is a mock media.Resolver. Results maps queries to outcomes;
// unmatched queries fall back to Default. The zero value resolves every
// query to a single stream titled after the query itself.
type Resolver struct {
	mu sync.Mutex

	Results map[string]Result
	Default *Result

	// Calls records every resolved query in order.
	Calls []string
}

var _ media.Resolver = (*Resolver)(nil)

func (r *Resolver) Resolve(_ context.Context, query string) ([]*media.Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, query)

	if res, ok := r.Results[query]; ok {
		return res.Infos, res.Err
	}
	if r.Default != nil {
		return r.Default.Infos, r.Default.Err
	}
	return []*media.Info{{Title: query, StreamURL: "https://stream.test/" + query}}, nil
}
