package tools

import (
	"context"
	"log/slog"

	"github.com/Akinara666/PeaceMusic/internal/observe"
	"github.com/Akinara666/PeaceMusic/internal/player"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// Context carries the invocation scope of one tool call: who asked, where,
// and which voice channel they occupy. VoiceChannelID is empty when the
// requester is not in a voice channel.
type Context struct {
	GuildID        string
	TextChannelID  string
	Requester      string
	VoiceChannelID string
}

// Dispatcher routes decoded tool calls to the requester's guild session.
// Every call produces a function-response part; failures are reported back
// to the model as an "error" payload rather than surfaced as Go errors, so
// the conversation can continue.
type Dispatcher struct {
	registry *player.Registry
	notifier player.Notifier
	metrics  *observe.Metrics
}

// NewDispatcher builds a dispatcher over the given session registry.
// notifier delivers a generic failure notice when a handler errors; it and
// metrics may be nil.
func NewDispatcher(registry *player.Registry, notifier player.Notifier, metrics *observe.Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, notifier: notifier, metrics: metrics}
}

// Dispatch executes one model-issued function call and returns the
// function-response part to feed back into the conversation.
func (d *Dispatcher) Dispatch(ctx context.Context, call *model.FunctionCall, tc Context) *model.Part {
	kind, ok := ParseKind(call.Name)
	if !ok {
		slog.Warn("model called undeclared tool", "tool", call.Name, "guild", tc.GuildID)
		return d.fail(ctx, call.Name, "unknown tool: "+call.Name)
	}

	args, err := DecodeArgs(kind, call.Args)
	if err != nil {
		slog.Warn("tool call with bad arguments", "tool", call.Name, "guild", tc.GuildID, "err", err)
		return d.fail(ctx, call.Name, err.Error())
	}

	result, err := d.run(ctx, kind, args, tc)
	if err != nil {
		slog.Error("tool execution failed", "tool", call.Name, "guild", tc.GuildID, "err", err)
		if d.notifier != nil && tc.TextChannelID != "" {
			d.notifier.Notify(tc.TextChannelID, "Failed to run the requested music command.")
		}
		return d.fail(ctx, call.Name, err.Error())
	}

	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, call.Name, "ok")
	}
	slog.Info("tool executed", "tool", call.Name, "guild", tc.GuildID, "result", result)
	return &model.Part{FunctionResponse: &model.FunctionResponse{
		Name:     call.Name,
		Response: map[string]any{"result": result},
	}}
}

func (d *Dispatcher) run(ctx context.Context, kind Kind, args Args, tc Context) (string, error) {
	s := d.registry.Session(tc.GuildID)
	switch a := args.(type) {
	case PlayArgs:
		if kind == KindSkipByName {
			return s.RemoveByName(a.SongName)
		}
		return s.Play(ctx, player.PlayInput{
			Query:          a.SongName,
			Requester:      tc.Requester,
			TextChannelID:  tc.TextChannelID,
			VoiceChannelID: tc.VoiceChannelID,
		})
	case SeekArgs:
		return s.SeekTo(ctx, a.Time)
	case VolumeArgs:
		return s.SetVolume(a.Level)
	case NoArgs:
		switch kind {
		case KindStop:
			return s.Stop()
		case KindSkip:
			return s.Skip()
		case KindSummon:
			return s.Summon(ctx, tc.VoiceChannelID)
		case KindDisconnect:
			return s.Disconnect()
		}
	}
	return "", errUnhandled(kind)
}

func (d *Dispatcher) fail(ctx context.Context, name, msg string) *model.Part {
	if d.metrics != nil {
		d.metrics.RecordToolCall(ctx, name, "error")
	}
	return &model.Part{FunctionResponse: &model.FunctionResponse{
		Name:     name,
		Response: map[string]any{"error": msg},
	}}
}

type errUnhandled Kind

func (e errUnhandled) Error() string {
	return "tools: no handler for " + Kind(e).String()
}
