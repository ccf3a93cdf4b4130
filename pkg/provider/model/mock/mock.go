// Package mock provides a test double for the model.Provider interface.
//
// Use Provider in unit tests to feed controlled turns and errors without a
// live backend. Responses are consumed in order: the first Generate call
// returns GenerateResults[0], the second GenerateResults[1], and so on; when
// the list is exhausted the last entry repeats.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// GenerateResult is one scripted outcome for a Generate call.
type GenerateResult struct {
	Turn *model.Turn
	Err  error
}

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	History []*model.Turn
	Config  model.GenerateConfig
}

// Provider is a mock implementation of model.Provider.
// The zero value returns (nil, nil) from every method.
type Provider struct {
	mu sync.Mutex

	// GenerateResults is the scripted sequence of Generate outcomes.
	GenerateResults []GenerateResult

	// UploadResult and UploadErr configure UploadFile.
	UploadResult *model.FileInfo
	UploadErr    error

	// Files maps resource names to descriptors returned by GetFile.
	// GetFileErr, when set, takes precedence for every name; GetFileErrs
	// overrides it per name.
	Files       map[string]*model.FileInfo
	GetFileErr  error
	GetFileErrs map[string]error

	// --- Recorded calls ---

	GenerateCalls []GenerateCall
	GetFileCalls  []string
	UploadCalls   int
}

var _ model.Provider = (*Provider)(nil)

func (p *Provider) Generate(_ context.Context, history []*model.Turn, cfg model.GenerateConfig) (*model.Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Snapshot the history so later mutations by the caller do not alter the record.
	snap := make([]*model.Turn, len(history))
	copy(snap, history)
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{History: snap, Config: cfg})

	if len(p.GenerateResults) == 0 {
		return nil, nil
	}
	i := len(p.GenerateCalls) - 1
	if i >= len(p.GenerateResults) {
		i = len(p.GenerateResults) - 1
	}
	r := p.GenerateResults[i]
	return r.Turn, r.Err
}

func (p *Provider) UploadFile(_ context.Context, _ io.Reader, _ string) (*model.FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UploadCalls++
	return p.UploadResult, p.UploadErr
}

func (p *Provider) GetFile(_ context.Context, name string) (*model.FileInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GetFileCalls = append(p.GetFileCalls, name)
	if err, ok := p.GetFileErrs[name]; ok {
		return nil, err
	}
	if p.GetFileErr != nil {
		return nil, p.GetFileErr
	}
	if f, ok := p.Files[name]; ok {
		return f, nil
	}
	return nil, &model.APIError{StatusCode: 404, Message: "file not found"}
}
