// Package opencode is the client side of the AI inference session protocol:
// resolving a backend, opening ephemeral sessions, consuming the event feed,
// negotiating permission escalations and orchestrating one prompt/response run.
package opencode

import (
	"context"
	"time"
)

// Session is a short-lived server-side context for one prompt/response exchange.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// Model identifies a provider/model pair.
type Model struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// String returns the "provider/model" form.
func (m Model) String() string {
	if m.ProviderID == "" {
		return m.ModelID
	}
	return m.ProviderID + "/" + m.ModelID
}

// PromptRequest is the payload of an asynchronous prompt submission.
type PromptRequest struct {
	Model Model
	Agent string
	Text  string
}

// Decision is the reply to a permission request.
type Decision string

// The three permission replies the backend understands.
const (
	DecisionOnce   Decision = "once"
	DecisionAlways Decision = "always"
	DecisionReject Decision = "reject"
)

// EventStream is one subscription to the backend's global event feed.
// Next blocks until an event arrives or the stream fails. Close unblocks Next.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// Backend is the black-box surface of the AI backend for one working directory.
type Backend interface {
	CreateSession(ctx context.Context, title string) (Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	AbortSession(ctx context.Context, sessionID string) error
	PromptAsync(ctx context.Context, sessionID string, req PromptRequest) error
	Subscribe(ctx context.Context) (EventStream, error)
	Messages(ctx context.Context, sessionID string) ([]MessageWithParts, error)
	RespondPermission(ctx context.Context, sessionID, permissionID string, decision Decision) error
}
