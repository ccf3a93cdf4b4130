package discord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

const (
	attachDownloadTimeout = 30 * time.Second
	attachPollInterval    = time.Second
	// attachPollDeadline bounds how long we wait for the provider to finish
	// processing an uploaded file. Video processing can take a while.
	attachPollDeadline = 2 * time.Minute
)

// AttachmentResolver turns a message's first image or video attachment into
// a model file-reference part: it downloads the attachment, uploads it to
// the provider's file store, and waits until the file becomes usable.
type AttachmentResolver struct {
	provider model.Provider
	client   *http.Client

	// sleep is replaced in tests to avoid real poll waits.
	sleep func(time.Duration)
}

// NewAttachmentResolver builds a resolver uploading through provider.
func NewAttachmentResolver(provider model.Provider) *AttachmentResolver {
	return &AttachmentResolver{
		provider: provider,
		client:   &http.Client{Timeout: attachDownloadTimeout},
		sleep:    time.Sleep,
	}
}

// Resolve inspects the attachment and, for images and videos, returns the
// uploaded file part plus the prompt text to pair with it. The prompt is
// the user's caption, or a placeholder naming the author when the message
// carried no text. Unsupported attachment types return a nil part and the
// unchanged user text.
func (r *AttachmentResolver) Resolve(ctx context.Context, att *discordgo.MessageAttachment, author, userText, caption string) (*model.Part, string, error) {
	contentType := att.ContentType

	var fallback string
	switch {
	case strings.Contains(contentType, "image"):
		fallback = fmt.Sprintf("[Image posted by %q. No caption provided.]", author)
	case strings.Contains(contentType, "video"):
		fallback = fmt.Sprintf("[Video posted by %q. No caption provided.]", author)
	default:
		return nil, userText, nil
	}

	prompt := caption
	if prompt == "" {
		prompt = fallback
	}

	resp, err := r.client.Get(att.URL)
	if err != nil {
		return nil, "", fmt.Errorf("discord: download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("discord: download attachment: status %d", resp.StatusCode)
	}

	uploaded, err := r.provider.UploadFile(ctx, resp.Body, contentType)
	if err != nil {
		return nil, "", fmt.Errorf("discord: upload attachment: %w", err)
	}

	ready, err := r.waitActive(ctx, uploaded.Name)
	if err != nil {
		return nil, "", err
	}

	part := &model.Part{FileData: &model.FileData{
		URI:      ready.URI,
		MIMEType: ready.MIMEType,
	}}
	return part, prompt, nil
}

// waitActive polls the uploaded file until the provider reports it usable.
func (r *AttachmentResolver) waitActive(ctx context.Context, name string) (*model.FileInfo, error) {
	deadline := time.Now().Add(attachPollDeadline)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := r.provider.GetFile(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("discord: poll uploaded file: %w", err)
		}
		switch info.State {
		case model.FileActive:
			return info, nil
		case model.FileProcessing:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("discord: file %s still processing after %s", name, attachPollDeadline)
			}
			r.sleep(attachPollInterval)
		default:
			return nil, fmt.Errorf("discord: file %s failed with state %s", name, info.State)
		}
	}
}
