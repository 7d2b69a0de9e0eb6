package opencode

import (
	"context"
	"errors"
	"io"
	"sync"
)

var errStreamClosed = errors.New("stream closed")

// scriptedStream replays a fixed list of events. A held stream blocks after the
// last event until Close; otherwise it reports a transport failure.
type scriptedStream struct {
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newStream(hold bool, events ...Event) *scriptedStream {
	s := &scriptedStream{
		events: make(chan Event, len(events)),
		closed: make(chan struct{}),
	}
	for _, ev := range events {
		s.events <- ev
	}
	if !hold {
		close(s.events)
	}
	return s
}

// heldStream stays open after its events.
func heldStream(events ...Event) *scriptedStream { return newStream(true, events...) }

// droppingStream disconnects after its events.
func droppingStream(events ...Event) *scriptedStream { return newStream(false, events...) }

func (s *scriptedStream) Next() (Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.ErrUnexpectedEOF
		}
		return ev, nil
	case <-s.closed:
		return nil, errStreamClosed
	}
}

func (s *scriptedStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type permissionResponse struct {
	SessionID    string
	PermissionID string
	Decision     Decision
}

// fakeBackend is an in-memory Backend whose feed is scripted per Subscribe call.
type fakeBackend struct {
	mu sync.Mutex

	sessionID    string
	createErr    error
	deleteErr    error
	promptErr    error
	respondErr   error
	historyErr   error
	history      []MessageWithParts
	streams      []*scriptedStream
	subscribeErr []error
	onPrompt     func(req PromptRequest)

	subscribeCalls int
	created        []string
	deleted        []string
	aborted        []string
	prompts        []PromptRequest
	responses      []permissionResponse
}

var _ Backend = (*fakeBackend)(nil)

func (b *fakeBackend) CreateSession(_ context.Context, title string) (Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return Session{}, b.createErr
	}
	b.created = append(b.created, title)
	id := b.sessionID
	if id == "" {
		id = "ses_1"
	}
	return Session{ID: id, Title: title}, nil
}

func (b *fakeBackend) DeleteSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, sessionID)
	return b.deleteErr
}

func (b *fakeBackend) AbortSession(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = append(b.aborted, sessionID)
	return nil
}

func (b *fakeBackend) PromptAsync(_ context.Context, _ string, req PromptRequest) error {
	b.mu.Lock()
	b.prompts = append(b.prompts, req)
	hook := b.onPrompt
	err := b.promptErr
	b.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	return err
}

func (b *fakeBackend) Subscribe(context.Context) (EventStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.subscribeCalls
	b.subscribeCalls++
	if i < len(b.subscribeErr) && b.subscribeErr[i] != nil {
		return nil, b.subscribeErr[i]
	}
	if i < len(b.streams) {
		return b.streams[i], nil
	}
	return heldStream(), nil
}

func (b *fakeBackend) Messages(context.Context, string) ([]MessageWithParts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history, b.historyErr
}

func (b *fakeBackend) RespondPermission(_ context.Context, sessionID, permissionID string, decision Decision) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, permissionResponse{sessionID, permissionID, decision})
	return b.respondErr
}

func (b *fakeBackend) subscribes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeCalls
}

// Event builders.

func textPart(session, message, id, text string) PartUpdated {
	return PartUpdated{Part: Part{ID: id, SessionID: session, MessageID: message, Type: PartTypeText, Text: text}}
}

func assistantMessage(session, id string, completed bool) MessageUpdated {
	info := MessageInfo{ID: id, SessionID: session, Role: RoleAssistant, Time: MessageTime{Created: 1}}
	if completed {
		info.Time.Completed = 2
	}
	return MessageUpdated{Info: info}
}

func toolStep(session, id string) MessageUpdated {
	ev := assistantMessage(session, id, true)
	ev.Info.Finish = "tool-calls"
	return ev
}

func failedMessage(session, id, name, message string) MessageUpdated {
	ev := assistantMessage(session, id, true)
	ev.Info.Error = &ErrorInfo{Name: name}
	ev.Info.Error.Data.Message = message
	return ev
}

func permissionRequest(session, id, typ string) PermissionUpdated {
	return PermissionUpdated{Permission: Permission{ID: id, SessionID: session, Type: typ, Title: typ}}
}
