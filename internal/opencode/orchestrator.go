// orchestrator.go drives one prompt/response run end to end.
package opencode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultOperationTimeout bounds a whole run when none is configured.
const DefaultOperationTimeout = 5 * time.Minute

// Resolver yields a backend handle. Gateway implements it.
type Resolver interface {
	Resolve(ctx context.Context) (*Handle, error)
}

// Request is one orchestration call.
type Request struct {
	Title       string
	Prompt      string
	Model       string // "provider/model"
	Agent       string
	Directory   string
	Attachments []Attachment
}

// Orchestrator is the façade the generation layer uses.
type Orchestrator struct {
	backendFor func(ctx context.Context, dir string) (Backend, error)
	negotiator Negotiator
	timeout    time.Duration
	tempRoot   string
	logger     *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTimeout sets the overall operation deadline of a run.
func WithTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithNegotiator sets how permission requests are decided.
func WithNegotiator(n Negotiator) OrchestratorOption {
	return func(o *Orchestrator) {
		if n != nil {
			o.negotiator = n
		}
	}
}

// WithTempRoot sets where attachment directories are created.
func WithTempRoot(dir string) OrchestratorOption {
	return func(o *Orchestrator) { o.tempRoot = dir }
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator that reaches the backend through r.
func NewOrchestrator(r Resolver, opts ...OrchestratorOption) *Orchestrator {
	o := newOrchestrator(func(ctx context.Context, dir string) (Backend, error) {
		h, err := r.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		return h.Backend(dir), nil
	}, opts...)
	return o
}

func newOrchestrator(backendFor func(context.Context, string) (Backend, error), opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		backendFor: backendFor,
		negotiator: AutoNegotiator{Decision: DecisionReject},
		timeout:    DefaultOperationTimeout,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run opens a session, submits the prompt, consumes the response and always
// closes the session before returning. The returned text has surrounding code
// fences removed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (string, error) {
	model, err := ParseModel(req.Model)
	if err != nil {
		return "", err
	}

	backend, err := o.backendFor(ctx, req.Directory)
	if err != nil {
		return "", err
	}

	attachments, err := writeAttachments(o.tempRoot, req.Attachments)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := attachments.remove(); err != nil {
			o.logger.Warn("removing attachments failed", zap.Error(err))
		}
	}()

	title := req.Title
	if title == "" {
		title = "ocmt"
	}
	title = fmt.Sprintf("%s [%s]", title, uuid.NewString()[:8])

	sessions := NewSessionManager(backend, o.logger)
	sess, err := sessions.Open(ctx, title)
	if err != nil {
		return "", &RunError{Model: req.Model, Err: err}
	}
	defer sessions.Close(ctx, sess.ID)

	logger := o.logger.With(zap.String("session", sess.ID), zap.String("model", req.Model))
	logger.Debug("run started", zap.Int("attachments", len(req.Attachments)))
	started := time.Now()

	prompt := PromptRequest{
		Model: model,
		Agent: req.Agent,
		Text:  req.Prompt + attachments.promptSection(),
	}
	submit := func(ctx context.Context) error {
		return backend.PromptAsync(ctx, sess.ID, prompt)
	}

	consumer := NewConsumer(backend, o.timeout, logger)
	res, err := consumer.Consume(ctx, sess.ID, o.negotiator.Negotiate, submit)
	if err != nil {
		logger.Debug("run failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return "", &RunError{Model: req.Model, Err: err}
	}

	text := StripCodeFences(res.Text)
	if strings.TrimSpace(text) == "" {
		return "", &RunError{Model: req.Model, Err: ErrEmptyResponse}
	}
	logger.Debug("run finished", zap.String("message", res.MessageID), zap.Duration("elapsed", time.Since(started)))
	return text, nil
}

// ParseModel splits "provider/model". A bare model id is passed through with
// no provider so the backend's default provider applies.
func ParseModel(s string) (Model, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Model{}, nil
	}
	provider, model, ok := strings.Cut(s, "/")
	if !ok {
		return Model{ModelID: s}, nil
	}
	if provider == "" || model == "" {
		return Model{}, fmt.Errorf("invalid model %q: want provider/model", s)
	}
	return Model{ProviderID: provider, ModelID: model}, nil
}

// StripCodeFences removes a leading ```lang line and a trailing ``` line.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
