// stream.go consumes the event feed for one session until a terminal state,
// with an operation deadline and a single reconnection attempt.
package opencode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// idleGrace is how long a session.idle without a completed message waits for
// the completion event that may still be in flight.
const idleGrace = 2 * time.Second

// PermissionFunc decides a permission request. It is called synchronously from
// the consumption loop; no further events are processed until it returns.
type PermissionFunc func(ctx context.Context, p Permission) Decision

// Result is the outcome of a successful consumption.
type Result struct {
	Text      string
	MessageID string
}

// streamState is the consumer's connection state. The only permitted
// non-terminal transition is Streaming -> Reconnecting.
type streamState int

const (
	stateStreaming streamState = iota
	stateReconnecting
	stateDone
	stateFailed
)

func (s streamState) String() string {
	switch s {
	case stateStreaming:
		return "streaming"
	case stateReconnecting:
		return "reconnecting"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Consumer reads the event feed of a Backend for one session at a time.
type Consumer struct {
	backend Backend
	timeout time.Duration
	logger  *zap.Logger
}

// NewConsumer creates a Consumer. A timeout <= 0 disables the operation deadline
// (ctx still bounds the call).
func NewConsumer(backend Backend, timeout time.Duration, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{backend: backend, timeout: timeout, logger: logger}
}

// Consume subscribes to the feed, runs submit (if non-nil) once the
// subscription is live, and returns the text of the first completed assistant
// message of sessionID.
func (c *Consumer) Consume(ctx context.Context, sessionID string, onPermission PermissionFunc, submit func(context.Context) error) (Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	stream, err := c.backend.Subscribe(ctx)
	if err != nil {
		if errors.Is(err, ErrSubscribe) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrSubscribe, err)
	}
	f := startFeed(stream)
	defer f.stop()

	if submit != nil {
		if err := submit(ctx); err != nil {
			if ctx.Err() != nil {
				return Result{}, c.deadlineErr(ctx)
			}
			return Result{}, fmt.Errorf("%w: %v", ErrPromptSubmit, err)
		}
	}

	r := &consumption{
		consumer:     c,
		sessionID:    sessionID,
		onPermission: onPermission,
		parts:        newPartSet(),
		answered:     make(map[string]bool),
		state:        stateStreaming,
	}

	var grace <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			r.enter(stateFailed)
			return Result{}, c.deadlineErr(ctx)

		case <-grace:
			r.enter(stateFailed)
			return Result{}, ErrIdleWithoutCompletion

		case item := <-f.items:
			if item.err != nil {
				if ctx.Err() != nil {
					r.enter(stateFailed)
					return Result{}, c.deadlineErr(ctx)
				}
				f.stop()
				return r.reconnect(ctx, item.err)
			}

			out := r.handle(ctx, item.event)
			switch {
			case out.err != nil:
				r.enter(stateFailed)
				return Result{}, out.err
			case out.done:
				r.enter(stateDone)
				return out.result, nil
			case out.idlePending && grace == nil:
				timer := time.NewTimer(idleGrace)
				defer timer.Stop()
				grace = timer.C
			}
		}
	}
}

// deadlineErr maps a finished context to the consumer's error taxonomy.
func (c *Consumer) deadlineErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if c.timeout <= 0 {
			return ErrTimeout
		}
		return fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
	}
	return ctx.Err()
}

// abort stops generation for a session, best-effort.
func (c *Consumer) abort(ctx context.Context, sessionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := c.backend.AbortSession(ctx, sessionID); err != nil {
		c.logger.Warn("aborting session failed", zap.String("session", sessionID), zap.Error(err))
	}
}

// consumption is the per-call state of one Consume. It is touched only by the
// consumption loop.
type consumption struct {
	consumer     *Consumer
	sessionID    string
	onPermission PermissionFunc

	parts    *partSet
	message  *MessageInfo
	answered map[string]bool
	state    streamState
}

// outcome is what handling one event decided.
type outcome struct {
	result      Result
	done        bool
	idlePending bool
	err         error
}

func (r *consumption) enter(s streamState) {
	if r.state == s {
		return
	}
	r.consumer.logger.Debug("stream state",
		zap.String("session", r.sessionID),
		zap.Stringer("from", r.state),
		zap.Stringer("to", s))
	r.state = s
}

// handle applies one event. Events for other sessions are discarded.
func (r *consumption) handle(ctx context.Context, ev Event) outcome {
	if ev.SessionID() != r.sessionID {
		return outcome{}
	}

	switch e := ev.(type) {
	case PartUpdated:
		r.parts.upsert(e.Part)

	case MessageUpdated:
		if e.Info.Role != RoleAssistant {
			return outcome{}
		}
		info := e.Info
		r.message = &info
		if !info.Complete() {
			return outcome{}
		}
		if info.Error != nil {
			return outcome{err: messageError(info.Error)}
		}
		if info.Finish == finishToolCalls {
			// An intermediate agent step; the response continues in a new message.
			return outcome{}
		}
		return outcome{result: r.result(), done: true}

	case SessionIdle:
		if r.message != nil && r.message.Complete() {
			if r.message.Error != nil {
				return outcome{err: messageError(r.message.Error)}
			}
			return outcome{result: r.result(), done: true}
		}
		return outcome{idlePending: true}

	case SessionErrorEvent:
		if e.Err == nil {
			return outcome{err: &SessionError{}}
		}
		return outcome{err: e.Err}

	case PermissionUpdated:
		r.negotiate(ctx, e.Permission)
	}
	return outcome{}
}

// negotiate resolves a permission request and relays the decision once per id.
// Delivery failures are logged; the backend owns the consequence.
func (r *consumption) negotiate(ctx context.Context, p Permission) {
	if r.answered[p.ID] {
		return
	}
	r.answered[p.ID] = true

	decision := DecisionReject
	if r.onPermission != nil {
		decision = r.onPermission(ctx, p)
	}

	logger := r.consumer.logger.With(
		zap.String("session", r.sessionID),
		zap.String("permission", p.ID),
		zap.String("type", p.Type),
		zap.String("decision", string(decision)))
	if err := r.consumer.backend.RespondPermission(ctx, r.sessionID, p.ID, decision); err != nil {
		logger.Warn("delivering permission decision failed", zap.Error(err))
		return
	}
	logger.Debug("permission answered")
}

// result returns the text of the tracked message.
func (r *consumption) result() Result {
	if r.message == nil {
		return Result{}
	}
	return Result{Text: r.parts.text(r.message.ID), MessageID: r.message.ID}
}

// reconnect performs the single reconnection attempt: re-subscribe, then read
// the session's stored history. Only a complete trailing assistant message
// counts as success; otherwise the session is aborted.
func (r *consumption) reconnect(ctx context.Context, cause error) (Result, error) {
	r.enter(stateReconnecting)
	c := r.consumer
	c.logger.Warn("event stream disconnected; reconnecting",
		zap.String("session", r.sessionID), zap.Error(cause))

	fail := func(detail error) (Result, error) {
		r.enter(stateFailed)
		c.abort(ctx, r.sessionID)
		return Result{}, fmt.Errorf("%w: %v: %v", ErrStreamDisconnected, cause, detail)
	}

	stream, err := c.backend.Subscribe(ctx)
	if err != nil {
		return fail(fmt.Errorf("resubscribe: %w", err))
	}
	defer stream.Close()

	history, err := c.backend.Messages(ctx, r.sessionID)
	if err != nil {
		return fail(fmt.Errorf("reading history: %w", err))
	}
	if len(history) == 0 {
		return fail(errors.New("history is empty"))
	}

	last := history[len(history)-1]
	if last.Info.Role != RoleAssistant || !last.Info.Complete() {
		return fail(errors.New("no completed assistant message in history"))
	}
	if last.Info.Error != nil {
		r.enter(stateFailed)
		return Result{}, messageError(last.Info.Error)
	}
	if last.Info.Finish == finishToolCalls {
		return fail(errors.New("history ends in an intermediate tool-calls step"))
	}

	r.enter(stateDone)
	return Result{Text: textOf(last.Parts), MessageID: last.Info.ID}, nil
}

func messageError(info *ErrorInfo) *SessionError {
	return &SessionError{Name: info.Name, Message: info.Data.Message}
}

// partSet stores parts by id and remembers first-observed order.
type partSet struct {
	byID  map[string]Part
	order []string
}

func newPartSet() *partSet {
	return &partSet{byID: make(map[string]Part)}
}

// upsert stores p, overwriting an earlier snapshot with the same id.
func (s *partSet) upsert(p Part) {
	if _, seen := s.byID[p.ID]; !seen {
		s.order = append(s.order, p.ID)
	}
	s.byID[p.ID] = p
}

// text concatenates the text parts of messageID in first-observed order.
func (s *partSet) text(messageID string) string {
	parts := make([]Part, 0, len(s.order))
	for _, id := range s.order {
		if p := s.byID[id]; p.MessageID == messageID {
			parts = append(parts, p)
		}
	}
	return textOf(parts)
}

// feedItem is one result of EventStream.Next.
type feedItem struct {
	event Event
	err   error
}

// feed pumps an EventStream into a channel so the consumption loop can select
// on it alongside its deadlines.
type feed struct {
	stream EventStream
	items  chan feedItem
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func startFeed(stream EventStream) *feed {
	f := &feed{
		stream: stream,
		items:  make(chan feedItem),
		done:   make(chan struct{}),
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			ev, err := stream.Next()
			select {
			case f.items <- feedItem{event: ev, err: err}:
			case <-f.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return f
}

// stop closes the stream and waits for the pump to exit. Safe to call twice.
func (f *feed) stop() {
	f.once.Do(func() {
		close(f.done)
		_ = f.stream.Close()
		f.wg.Wait()
	})
}
