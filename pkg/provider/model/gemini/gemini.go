// Package gemini implements model.Provider on top of the Google Gemini API
// via the google.golang.org/genai SDK. It translates between the neutral
// Turn/Part data model and the SDK's Content/Part types and classifies SDK
// errors into model.APIError values for the response engine's retry logic.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/genai"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Compile-time interface assertion.
var _ model.Provider = (*Provider)(nil)

// defaultThinkingBudget is the token budget granted to the model's internal
// reasoning phase on every request.
const defaultThinkingBudget = 2048

// Provider is a Gemini-backed model.Provider.
// It is safe for concurrent use.
type Provider struct {
	client *genai.Client
	model  string
}

// Option customises a Provider.
type Option func(*Provider)

// WithModel overrides the generation model name.
func WithModel(name string) Option {
	return func(p *Provider) { p.model = name }
}

// New creates a Gemini provider authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p := &Provider{client: client, model: "gemini-2.5-flash"}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Generate implements model.Provider.
func (p *Provider) Generate(ctx context.Context, history []*model.Turn, cfg model.GenerateConfig) (*model.Turn, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		contents = append(contents, toContent(turn))
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature)),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(defaultThinkingBudget)),
		},
	}
	if cfg.SystemInstruction != "" {
		genCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if len(cfg.Tools) > 0 {
		genCfg.Tools = toTools(cfg.Tools)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, nil
	}
	return fromContent(resp.Candidates[0].Content), nil
}

// UploadFile implements model.Provider.
func (p *Provider) UploadFile(ctx context.Context, r io.Reader, mimeType string) (*model.FileInfo, error) {
	f, err := p.client.Files.Upload(ctx, r, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, classify(err)
	}
	return fromFile(f), nil
}

// GetFile implements model.Provider.
func (p *Provider) GetFile(ctx context.Context, name string) (*model.FileInfo, error) {
	f, err := p.client.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, classify(err)
	}
	return fromFile(f), nil
}

// ── Conversions ──────────────────────────────────────────────────────────────

func toContent(t *model.Turn) *genai.Content {
	c := &genai.Content{Role: string(t.Role)}
	for _, part := range t.Parts {
		switch {
		case part.FunctionCall != nil:
			c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
		case part.FunctionResponse != nil:
			c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				Name:     part.FunctionResponse.Name,
				Response: part.FunctionResponse.Response,
			}})
		case part.FileData != nil:
			c.Parts = append(c.Parts, &genai.Part{FileData: &genai.FileData{
				FileURI:  part.FileData.URI,
				MIMEType: part.FileData.MIMEType,
			}})
		case part.Text != "":
			c.Parts = append(c.Parts, &genai.Part{Text: part.Text})
		}
	}
	return c
}

func fromContent(c *genai.Content) *model.Turn {
	role := model.RoleModel
	if c.Role == string(model.RoleUser) {
		role = model.RoleUser
	}
	t := &model.Turn{Role: role}
	for _, part := range c.Parts {
		switch {
		case part.FunctionCall != nil:
			t.Parts = append(t.Parts, model.Part{FunctionCall: &model.FunctionCall{
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
		case part.FunctionResponse != nil:
			t.Parts = append(t.Parts, model.Part{FunctionResponse: &model.FunctionResponse{
				Name:     part.FunctionResponse.Name,
				Response: part.FunctionResponse.Response,
			}})
		case part.FileData != nil:
			t.Parts = append(t.Parts, model.Part{FileData: &model.FileData{
				URI:      part.FileData.FileURI,
				MIMEType: part.FileData.MIMEType,
			}})
		case part.Text != "":
			t.Parts = append(t.Parts, model.TextPart(part.Text))
		}
	}
	return t
}

func toTools(decls []model.ToolDeclaration) []*genai.Tool {
	tools := make([]*genai.Tool, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
		}
		if len(d.Parameters) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(d.Parameters)),
			}
			for _, param := range d.Parameters {
				schema.Properties[param.Name] = &genai.Schema{
					Type:        toSchemaType(param.Type),
					Description: param.Description,
				}
				if param.Required {
					schema.Required = append(schema.Required, param.Name)
				}
			}
			fd.Parameters = schema
		}
		tools = append(tools, &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{fd}})
	}
	return tools
}

func toSchemaType(t model.ParamType) genai.Type {
	if t == model.ParamNumber {
		return genai.TypeNumber
	}
	return genai.TypeString
}

func fromFile(f *genai.File) *model.FileInfo {
	info := &model.FileInfo{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
	}
	switch f.State {
	case genai.FileStateActive:
		info.State = model.FileActive
	case genai.FileStateProcessing:
		info.State = model.FileProcessing
	default:
		info.State = model.FileFailed
	}
	return info
}

// classify converts an SDK error into a model.APIError when possible so the
// response engine can distinguish retryable overloads from client rejections.
func classify(err error) error {
	var ae genai.APIError
	if errors.As(err, &ae) {
		return &model.APIError{StatusCode: ae.Code, Message: ae.Message}
	}
	return err
}
