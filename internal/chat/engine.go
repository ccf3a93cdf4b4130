// Package chat implements the conversation-and-tool-call orchestration
// engine: it builds per-request generation configuration, calls the model
// provider with retry and backoff, repairs histories holding expired file
// references, and drives the tool-call loop until the model settles on a
// plain-text reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Akinara666/PeaceMusic/internal/history"
	"github.com/Akinara666/PeaceMusic/internal/observe"
	"github.com/Akinara666/PeaceMusic/pkg/provider/model"
)

// ToolCallback executes one model-issued tool call and returns the
// function-response part to feed back into the conversation. Callbacks must
// never return nil; handler failures are expected to surface as an "error"
// key inside the response payload.
type ToolCallback func(ctx context.Context, call *model.FunctionCall) *model.Part

// Defaults for the retry and tool-call budgets.
const (
	defaultMaxAttempts  = 3
	defaultBaseDelay    = 2 * time.Second
	defaultMaxDelay     = 10 * time.Second
	defaultMaxToolCalls = 2
)

// EngineConfig holds the dependencies and tuning knobs for an [Engine].
type EngineConfig struct {
	// Provider is the model backend. Must not be nil.
	Provider model.Provider

	// SystemInstruction is the fixed persona prompt.
	SystemInstruction string

	// Styles is an optional set of style modifiers; one is appended to the
	// system instruction per request, never the same one twice in a row.
	Styles []string

	// Tools is the set of declarations offered to the model on every call.
	Tools []model.ToolDeclaration

	// Temperature is the base sampling temperature.
	Temperature float64

	// MaxTemperature caps the escalated temperature. When it exceeds
	// Temperature, the effective value ramps linearly from Temperature to
	// MaxTemperature as the conversation grows past RampStart over
	// RampWindow turns.
	MaxTemperature float64
	RampStart      int
	RampWindow     int

	// MaxAttempts bounds provider calls per cycle (default 3).
	MaxAttempts int

	// BaseDelay and MaxDelay shape the retry backoff (default 2s / 10s;
	// the delay grows 1.5× per attempt).
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// MaxToolCalls bounds how many tool calls are honored per cycle
	// (default 2); additional calls in the same cycle are ignored.
	MaxToolCalls int

	// Metrics records model call counters and latency. May be nil.
	Metrics *observe.Metrics
}

// Engine generates model replies for a conversation. It is safe for
// concurrent use across conversations; per-conversation serialization is
// the caller's responsibility (the chat-cycle lock).
type Engine struct {
	provider     model.Provider
	tools        []model.ToolDeclaration
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxToolCalls int
	metrics      *observe.Metrics

	// tuneMu guards the hot-reloadable prompt and temperature settings,
	// see [Engine.UpdateTuning].
	tuneMu      sync.Mutex
	instruction string
	temperature float64
	maxTemp     float64
	rampStart   int
	rampWindow  int
	styles      *stylePicker

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// NewEngine creates an Engine from cfg, applying defaults for zero-valued
// tuning fields.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		provider:     cfg.Provider,
		instruction:  cfg.SystemInstruction,
		tools:        cfg.Tools,
		temperature:  cfg.Temperature,
		maxTemp:      cfg.MaxTemperature,
		rampStart:    cfg.RampStart,
		rampWindow:   cfg.RampWindow,
		maxAttempts:  cfg.MaxAttempts,
		baseDelay:    cfg.BaseDelay,
		maxDelay:     cfg.MaxDelay,
		maxToolCalls: cfg.MaxToolCalls,
		metrics:      cfg.Metrics,
		styles:       newStylePicker(cfg.Styles),
		sleep:        time.Sleep,
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = defaultMaxAttempts
	}
	if e.baseDelay <= 0 {
		e.baseDelay = defaultBaseDelay
	}
	if e.maxDelay <= 0 {
		e.maxDelay = defaultMaxDelay
	}
	if e.maxToolCalls <= 0 {
		e.maxToolCalls = defaultMaxToolCalls
	}
	return e
}

// GenerateReply runs one turn-processing cycle against conv: it sends the
// full history to the provider, retries transient failures with backoff,
// self-heals stale file references once, dispatches up to the configured
// number of tool calls through onTool (appending each result as a
// user-role turn and re-sending), and returns the final text.
//
// An empty string with a nil error means the model produced no usable
// reply; callers must stay silent rather than report a failure. The engine
// only ever appends to conv — prior turns are never reordered or replaced,
// except that the sanitization pass may swap expired file-reference parts
// for placeholder text in place.
func (e *Engine) GenerateReply(ctx context.Context, conv *history.Conversation, onTool ToolCallback) (string, error) {
	cfg := e.buildConfig(conv.Len())

	attempts := e.maxAttempts
	delay := e.baseDelay
	toolBudget := e.maxToolCalls
	sanitized := false
	var finalText string

	for {
		start := time.Now()
		turn, err := e.provider.Generate(ctx, conv.Turns, cfg)
		e.record(ctx, time.Since(start), err)
		if err != nil {
			switch {
			case model.IsOverloaded(err):
				attempts--
				if attempts <= 0 {
					return "", fmt.Errorf("chat: generate: %w", err)
				}
				slog.Warn("model overloaded, retrying", "channel", conv.ChannelID, "delay", delay)
				e.retryRecorded(ctx)
				e.sleep(delay)
				delay = nextDelay(delay, e.maxDelay)
				continue
			case model.IsRejection(err) && !sanitized:
				changed, serr := e.sanitize(ctx, conv)
				if serr != nil {
					slog.Warn("history sanitization failed", "channel", conv.ChannelID, "err", serr)
				}
				if changed {
					sanitized = true
					attempts--
					if attempts <= 0 {
						return "", fmt.Errorf("chat: generate after sanitize: %w", err)
					}
					slog.Info("sanitized stale file references, retrying", "channel", conv.ChannelID)
					e.retryRecorded(ctx)
					continue
				}
				return "", fmt.Errorf("chat: generate: %w", err)
			default:
				return "", fmt.Errorf("chat: generate: %w", err)
			}
		}

		if turn == nil {
			// No usable candidate. Retry within budget, then give up silently.
			attempts--
			if attempts <= 0 {
				return "", nil
			}
			e.sleep(delay)
			delay = nextDelay(delay, e.maxDelay)
			continue
		}

		conv.Append(turn)

		dispatched := 0
		for _, p := range turn.Parts {
			switch {
			case p.FunctionCall != nil:
				if toolBudget <= 0 {
					slog.Debug("ignoring tool call over budget", "tool", p.FunctionCall.Name)
					continue
				}
				toolBudget--
				dispatched++
				result := onTool(ctx, p.FunctionCall)
				conv.Append(model.NewTurn(model.RoleUser, *result))
			case p.Text != "":
				finalText = p.Text
			}
		}

		if dispatched == 0 {
			break
		}
		// Tool results were appended; go another round so the model can
		// fold them into its answer.
	}

	return strings.TrimSpace(finalText), nil
}

// buildConfig assembles the per-request generation parameters: the system
// instruction composed with a style modifier, and the (possibly escalated)
// temperature.
func (e *Engine) buildConfig(turnCount int) model.GenerateConfig {
	e.tuneMu.Lock()
	instruction := e.instruction
	if style := e.styles.pick(); style != "" {
		instruction = instruction + "\n\n" + style
	}
	temperature := e.effectiveTemperature(turnCount)
	e.tuneMu.Unlock()

	return model.GenerateConfig{
		SystemInstruction: instruction,
		Temperature:       temperature,
		Tools:             e.tools,
	}
}

// Tuning is the hot-reloadable subset of [EngineConfig].
type Tuning struct {
	SystemInstruction string
	Styles            []string
	Temperature       float64
	MaxTemperature    float64
	RampStart         int
	RampWindow        int
}

// UpdateTuning replaces the engine's prompt and temperature settings.
// In-flight cycles keep the configuration they started with; the next
// cycle picks up the new values.
func (e *Engine) UpdateTuning(t Tuning) {
	e.tuneMu.Lock()
	defer e.tuneMu.Unlock()
	e.instruction = t.SystemInstruction
	e.temperature = t.Temperature
	e.maxTemp = t.MaxTemperature
	e.rampStart = t.RampStart
	e.rampWindow = t.RampWindow
	e.styles = newStylePicker(t.Styles)
}

// effectiveTemperature ramps linearly from the base to the cap as the
// conversation grows past the ramp threshold. Called with tuneMu held.
func (e *Engine) effectiveTemperature(turnCount int) float64 {
	if e.maxTemp <= e.temperature || e.rampWindow <= 0 {
		return e.temperature
	}
	past := turnCount - e.rampStart
	if past <= 0 {
		return e.temperature
	}
	frac := float64(past) / float64(e.rampWindow)
	if frac > 1 {
		frac = 1
	}
	return e.temperature + frac*(e.maxTemp-e.temperature)
}

// record notes one provider call's latency and outcome.
func (e *Engine) record(ctx context.Context, elapsed time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.ModelDuration.Record(ctx, elapsed.Seconds())
	status := "ok"
	switch {
	case model.IsOverloaded(err):
		status = "overloaded"
	case model.IsRejection(err):
		status = "rejected"
	case err != nil:
		status = "error"
	}
	e.metrics.RecordModelRequest(ctx, status)
}

func (e *Engine) retryRecorded(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.ModelRetries.Add(ctx, 1)
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	d = d * 3 / 2
	if d > max {
		d = max
	}
	return d
}
