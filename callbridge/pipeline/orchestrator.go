package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// State is the position of a turn in the pipeline.
type State string

const (
	StateReceived   State = "Received"
	StateInferring  State = "Inferring"
	StateParsing    State = "Parsing"
	StateValidating State = "Validating"
	StateExecuting  State = "Executing"
	StateComposing  State = "Composing"
	StateCompleted  State = "Completed"
	StateFailed     State = "Failed"
)

// ErrTurnCancelled is returned alongside a Failed result when the caller's
// context ended before the turn completed.
var ErrTurnCancelled = errors.New("turn cancelled")

// TurnRequest is one inbound user message.
type TurnRequest struct {
	Message   string
	UserID    string
	SessionID string // optional; generated when empty
}

// Result is the outcome of one turn.
type Result struct {
	SessionID   string
	ReplyText   string
	ToolCalls   []*ToolCall
	Confidence  float64
	State       State
	FailureKind FailureKind
	Diagnostics []Diagnostic
	Attempts    int
}

// Inferer produces raw model text for a prompt.
type Inferer interface {
	Infer(ctx context.Context, prompt ports.Prompt) (inference.Inference, error)
}

// Policy controls per-turn limits.
type Policy struct {
	ToolTimeout      time.Duration // per-call backend timeout
	MaxMessageLength int           // in runes, after trimming
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() Policy {
	return Policy{
		ToolTimeout:      10 * time.Second,
		MaxMessageLength: 1000,
	}
}

// Orchestrator drives a turn from the user message to the composed reply.
type Orchestrator struct {
	registry   *Registry
	inferer    Inferer
	sessions   ports.SessionStore
	builder    *PromptBuilder
	composer   *Composer
	guard      *Guardrails
	confidence ConfidencePolicy
	policy     Policy
	tracer     ports.Tracer
	metrics    ports.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewOrchestrator creates a new orchestrator with dependencies. Nil
// tracer, metrics or guardrails fall back to no-op implementations.
func NewOrchestrator(
	registry *Registry,
	inferer Inferer,
	sessions ports.SessionStore,
	builder *PromptBuilder,
	guard *Guardrails,
	confidence ConfidencePolicy,
	policy Policy,
	tracer ports.Tracer,
	metrics ports.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	if guard == nil {
		guard = NewGuardrails()
	}
	if tracer == nil {
		tracer = noOpTracer{}
	}
	if metrics == nil {
		metrics = noOpMetrics{}
	}
	if policy.ToolTimeout <= 0 {
		policy.ToolTimeout = DefaultPolicy().ToolTimeout
	}
	if policy.MaxMessageLength <= 0 {
		policy.MaxMessageLength = DefaultPolicy().MaxMessageLength
	}
	return &Orchestrator{
		registry:   registry,
		inferer:    inferer,
		sessions:   sessions,
		builder:    builder,
		composer:   NewComposer(guard),
		guard:      guard,
		confidence: confidence,
		policy:     policy,
		tracer:     tracer,
		metrics:    metrics,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		now:        time.Now,
	}
}

// Registry exposes the read-only tool registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// NewSessionID returns an id of the form SESSION_xxxxxxxx.
func NewSessionID() string {
	return "SESSION_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// HandleTurn runs one turn under the session lock. Errors are returned only
// for invalid requests, session lock or load failures and cancellation;
// inference and per-call failures are reported in the Result.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*Result, error) {
	start := time.Now()

	msg := strings.TrimSpace(req.Message)
	if n := utf8.RuneCountInString(msg); n == 0 || n > o.policy.MaxMessageLength {
		return nil, fmt.Errorf("%w: message must be 1-%d characters, got %d", ErrInvalidRequest, o.policy.MaxMessageLength, n)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	ctx, finish := o.tracer.StartSpan(ctx, "turn", map[string]any{
		"session_id": sessionID,
		"user_id":    userID,
	})

	var res *Result
	err := o.sessions.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		res, err = o.run(ctx, sessionID, userID, msg)
		return err
	})
	finish(err)

	if res != nil {
		o.metrics.ObserveTurn(string(res.State), time.Since(start))
		o.logger.Info().
			Str("session_id", sessionID).
			Str("state", string(res.State)).
			Str("failure", string(res.FailureKind)).
			Int("tool_calls", len(res.ToolCalls)).
			Float64("confidence", res.Confidence).
			Dur("duration", time.Since(start)).
			Msg("turn finished")
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, sessionID, userID, msg string) (*Result, error) {
	res := &Result{SessionID: sessionID, State: StateReceived, ToolCalls: []*ToolCall{}}

	conv, err := o.sessions.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	// Inferring
	res.State = StateInferring
	prompt := o.builder.Build(conv, msg, o.registry.All(), map[string]string{
		"user_id":    userID,
		"session_id": sessionID,
	})
	inf, err := o.inferer.Infer(ctx, prompt)
	res.Attempts = inf.Attempts
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, res)
		}
		o.tracer.Event(ctx, "inference_unavailable", map[string]any{"error": err.Error(), "attempts": inf.Attempts})
		res.State = StateFailed
		res.FailureKind = FailureInferenceUnavailable
		res.ReplyText = o.composer.Apology()
		res.Confidence = o.confidence.FailureScore
		return res, nil
	}

	// Parsing
	res.State = StateParsing
	parsed := Parse(inf.Text)
	res.Diagnostics = append(res.Diagnostics, parsed.Diagnostics...)
	for _, d := range parsed.Diagnostics {
		o.tracer.Event(ctx, "parse_diagnostic", map[string]any{"message": d.Message, "offset": d.Offset})
	}

	// Validating
	res.State = StateValidating
	for _, frag := range parsed.Fragments() {
		call := NewToolCall(frag)
		res.Diagnostics = append(res.Diagnostics, o.validate(call)...)
		res.ToolCalls = append(res.ToolCalls, call)
	}

	// Executing
	res.State = StateExecuting
	for _, call := range res.ToolCalls {
		if call.Status != StatusValidated {
			continue
		}
		if ctx.Err() != nil {
			return o.cancelled(ctx, res)
		}
		o.execute(ctx, call)
		if ctx.Err() != nil {
			return o.cancelled(ctx, res)
		}
	}

	// Composing
	res.State = StateComposing
	res.ReplyText = o.composer.Compose(parsed.Prose(), res.ToolCalls)
	res.Confidence = o.confidence.Score(res.ToolCalls, max(inf.Attempts-1, 0), len(parsed.Diagnostics))

	if ctx.Err() != nil {
		return o.cancelled(ctx, res)
	}
	records := make([]ports.ToolCallRecord, len(res.ToolCalls))
	for i, c := range res.ToolCalls {
		records[i] = c.Record()
	}
	turn := ports.Turn{
		ID:               uuid.NewString(),
		UserMessage:      msg,
		AssistantMessage: res.ReplyText,
		ToolCalls:        records,
		Confidence:       res.Confidence,
		CreatedAt:        o.now().UTC(),
	}
	if err := o.sessions.Append(ctx, sessionID, turn); err != nil {
		o.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to append turn")
		res.State = StateFailed
		res.FailureKind = FailureSession
		return res, nil
	}

	res.State = StateCompleted
	return res, nil
}

// validate resolves a pending call against the registry, the allowlist and
// the parameter schema. Failures mark only this call.
func (o *Orchestrator) validate(call *ToolCall) []Diagnostic {
	def, err := o.registry.Lookup(call.ToolName)
	if err != nil {
		_ = call.Fail(&CallError{Kind: KindUnknownTool, Message: fmt.Sprintf("unknown tool %q", call.ToolName)})
		return nil
	}
	if cerr := o.guard.AllowTool(def.Name); cerr != nil {
		_ = call.Fail(cerr)
		return nil
	}

	args, diags, err := Validate(def, call.Arguments)
	if err != nil {
		var cerr *CallError
		if !errors.As(err, &cerr) {
			cerr = &CallError{Kind: KindTypeMismatch, Message: err.Error()}
		}
		_ = call.Fail(cerr)
		return diags
	}
	if err := call.Validate(def, args); err != nil {
		_ = call.Fail(&CallError{Kind: KindUnknownTool, Message: err.Error()})
	}
	return diags
}

type outcome struct {
	value any
	err   error
}

// execute runs one validated call on a context detached from the caller so
// that an in-flight backend call is never interrupted by client disconnect.
// Only the per-call timeout bounds it. Panics become BackendExecutionError.
func (o *Orchestrator) execute(ctx context.Context, call *ToolCall) {
	if err := call.Start(); err != nil {
		return
	}
	def := call.Definition()
	args := call.Arguments
	start := time.Now()

	spanCtx, finish := o.tracer.StartSpan(ctx, "tool_call", map[string]any{"tool": def.Name})
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(spanCtx), o.policy.ToolTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		var out outcome
		var pc panics.Catcher
		pc.Try(func() { out.value, out.err = def.Invoke(runCtx, args) })
		if r := pc.Recovered(); r != nil {
			out.err = r.AsError()
		}
		done <- out
	}()

	var out outcome
	select {
	case out = <-done:
	case <-runCtx.Done():
		out.err = fmt.Errorf("timed out after %s: %w", o.policy.ToolTimeout, runCtx.Err())
	}
	finish(out.err)

	if out.err != nil {
		_ = call.Fail(&CallError{Kind: KindBackendExecutionError, Message: out.err.Error()})
	} else {
		_ = call.Succeed(out.value)
	}
	o.metrics.ObserveToolCall(def.Name, string(call.Status), time.Since(start))
}

// cancelled ends the turn without touching the session.
func (o *Orchestrator) cancelled(ctx context.Context, res *Result) (*Result, error) {
	res.State = StateFailed
	res.FailureKind = FailureCancelled
	res.ReplyText = o.composer.Apology()
	res.Confidence = o.confidence.FailureScore
	return res, fmt.Errorf("%w: %w", ErrTurnCancelled, ctx.Err())
}
