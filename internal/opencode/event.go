// event.go decodes the backend's global event feed into typed events.
package opencode

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event type names on the wire.
const (
	TypeMessageUpdated     = "message.updated"
	TypeMessagePartUpdated = "message.part.updated"
	TypePermissionUpdated  = "permission.updated"
	TypeSessionError       = "session.error"
	TypeSessionIdle        = "session.idle"
)

// Message roles and part types the consumer cares about.
const (
	RoleAssistant = "assistant"
	RoleUser      = "user"

	PartTypeText = "text"

	finishToolCalls = "tool-calls"
)

// ErrUnknownEvent is returned by DecodeEvent for event types the client does
// not handle. Callers drop these.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is one decoded notification from the feed. The concrete type is one of
// MessageUpdated, PartUpdated, PermissionUpdated, SessionError or SessionIdle.
type Event interface {
	// SessionID returns the id of the session the event belongs to, or "".
	SessionID() string
	eventType() string
}

// MessageTime holds message timestamps in milliseconds since the epoch.
type MessageTime struct {
	Created   int64 `json:"created"`
	Completed int64 `json:"completed,omitempty"`
}

// ErrorInfo is the backend's error envelope.
type ErrorInfo struct {
	Name string `json:"name"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// MessageInfo is a message envelope, possibly partial while it streams.
type MessageInfo struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionID"`
	Role       string      `json:"role"`
	Time       MessageTime `json:"time"`
	Error      *ErrorInfo  `json:"error,omitempty"`
	Finish     string      `json:"finish,omitempty"`
	ModelID    string      `json:"modelID,omitempty"`
	ProviderID string      `json:"providerID,omitempty"`
}

// Complete reports whether the message carries a completion timestamp.
func (m MessageInfo) Complete() bool {
	return m.Time.Completed > 0
}

// Part is an incrementally updated fragment of a message.
type Part struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Synthetic bool   `json:"synthetic,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
}

// Patterns accepts either a single string or a list of strings.
type Patterns []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *Patterns) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*p = nil
		} else {
			*p = Patterns{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}
	*p = many
	return nil
}

// Permission is a pending escalation request from the backend.
type Permission struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Pattern   Patterns       `json:"pattern,omitempty"`
	SessionID string         `json:"sessionID"`
	MessageID string         `json:"messageID,omitempty"`
	CallID    string         `json:"callID,omitempty"`
	Title     string         `json:"title"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessageUpdated carries a (possibly partial) message envelope.
type MessageUpdated struct {
	Info MessageInfo
}

// PartUpdated carries one part snapshot.
type PartUpdated struct {
	Part Part
}

// PermissionUpdated carries a pending permission request.
type PermissionUpdated struct {
	Permission Permission
}

// SessionErrorEvent is a terminal failure for a session.
type SessionErrorEvent struct {
	Session string
	Err     *SessionError
}

// SessionIdle signals the session has no pending work.
type SessionIdle struct {
	Session string
}

func (e MessageUpdated) SessionID() string    { return e.Info.SessionID }
func (e PartUpdated) SessionID() string       { return e.Part.SessionID }
func (e PermissionUpdated) SessionID() string { return e.Permission.SessionID }
func (e SessionErrorEvent) SessionID() string { return e.Session }
func (e SessionIdle) SessionID() string       { return e.Session }

func (MessageUpdated) eventType() string    { return TypeMessageUpdated }
func (PartUpdated) eventType() string       { return TypeMessagePartUpdated }
func (PermissionUpdated) eventType() string { return TypePermissionUpdated }
func (SessionErrorEvent) eventType() string { return TypeSessionError }
func (SessionIdle) eventType() string       { return TypeSessionIdle }

// envelope is the raw shape of every feed payload.
type envelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

// DecodeEvent decodes one feed payload. It returns ErrUnknownEvent (wrapped) for
// types the client does not consume, and a decode error for malformed payloads.
func DecodeEvent(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if len(env.Properties) == 0 {
		env.Properties = json.RawMessage("{}")
	}

	switch env.Type {
	case TypeMessageUpdated:
		var props struct {
			Info MessageInfo `json:"info"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if props.Info.ID == "" {
			return nil, fmt.Errorf("decode %s: missing message id", env.Type)
		}
		return MessageUpdated{Info: props.Info}, nil

	case TypeMessagePartUpdated:
		var props struct {
			Part Part `json:"part"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if props.Part.ID == "" {
			return nil, fmt.Errorf("decode %s: missing part id", env.Type)
		}
		return PartUpdated{Part: props.Part}, nil

	case TypePermissionUpdated:
		var perm Permission
		if err := json.Unmarshal(env.Properties, &perm); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if perm.ID == "" {
			return nil, fmt.Errorf("decode %s: missing permission id", env.Type)
		}
		return PermissionUpdated{Permission: perm}, nil

	case TypeSessionError:
		var props struct {
			SessionID string     `json:"sessionID"`
			Error     *ErrorInfo `json:"error"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		sessErr := &SessionError{}
		if props.Error != nil {
			sessErr.Name = props.Error.Name
			sessErr.Message = props.Error.Data.Message
		}
		return SessionErrorEvent{Session: props.SessionID, Err: sessErr}, nil

	case TypeSessionIdle:
		var props struct {
			SessionID string `json:"sessionID"`
		}
		if err := json.Unmarshal(env.Properties, &props); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return SessionIdle{Session: props.SessionID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// MessageWithParts is one entry of a session's stored message history.
type MessageWithParts struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// textOf concatenates the visible text parts in order.
func textOf(parts []Part) string {
	var out []byte
	for _, p := range parts {
		if p.Type != PartTypeText || p.Ignored {
			continue
		}
		out = append(out, p.Text...)
	}
	return string(out)
}
