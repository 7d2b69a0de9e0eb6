// client.go implements Backend over the OpenCode server API using the
// OpenCode Go SDK.
package opencode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	sdk "github.com/sst/opencode-sdk-go"
	"github.com/sst/opencode-sdk-go/option"
	"go.uber.org/zap"
)

// requestTimeout bounds every non-streaming API call.
const requestTimeout = 30 * time.Second

// Client talks to one backend instance, optionally scoped to a directory.
type Client struct {
	baseURL   string
	directory string
	api       *sdk.Client
	logger    *zap.Logger
}

var _ Backend = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for dropped events.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		api:     newAPI(baseURL),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newAPI builds an SDK client. Retries are disabled: a retried prompt
// submission would run the prompt twice.
func newAPI(baseURL string) *sdk.Client {
	return sdk.NewClient(
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Directory returns the directory scope, empty when unscoped.
func (c *Client) Directory() string {
	return c.directory
}

// WithDirectory returns a copy of the client whose calls are scoped to dir.
func (c *Client) WithDirectory(dir string) *Client {
	cp := *c
	cp.directory = dir
	return &cp
}

// requestOptions returns the per-call options carrying the directory scope.
func (c *Client) requestOptions(extra ...option.RequestOption) []option.RequestOption {
	var opts []option.RequestOption
	if c.directory != "" {
		opts = append(opts, option.WithQuery("directory", c.directory))
	}
	return append(opts, extra...)
}

// HTTPError is a non-2xx response from the backend.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("opencode %s %s: status %d", e.Method, e.Path, e.Status)
}

// Unwrap returns the SDK error.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

func wrapAPIError(method, path string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &HTTPError{Method: method, Path: "/" + path, Status: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("opencode %s /%s: %w", method, path, err)
}

func sessionPath(sessionID string, rest ...string) string {
	p := "session/" + url.PathEscape(sessionID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// jsonBody marshals v for the SDK's generic calls.
func jsonBody(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("opencode: marshalling request: %w", err)
	}
	return data, nil
}

// CreateSession creates a session with the given title.
func (c *Client) CreateSession(ctx context.Context, title string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	s, err := c.api.Session.New(ctx, sdk.SessionNewParams{}, c.requestOptions(option.WithJSONSet("title", title))...)
	if err != nil {
		return Session{}, wrapAPIError("POST", "session", err)
	}
	if s == nil || s.ID == "" {
		return Session{}, fmt.Errorf("opencode POST /session: response has no session id")
	}
	created := time.Now()
	if s.Time.Created > 0 {
		created = time.UnixMilli(int64(s.Time.Created))
	}
	return Session{ID: s.ID, Title: s.Title, CreatedAt: created}, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	path := sessionPath(sessionID)
	if err := c.api.Delete(ctx, path, nil, nil, c.requestOptions()...); err != nil {
		return wrapAPIError("DELETE", path, err)
	}
	return nil
}

// AbortSession stops any in-flight generation for a session.
func (c *Client) AbortSession(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	path := sessionPath(sessionID, "abort")
	if err := c.api.Post(ctx, path, nil, nil, c.requestOptions()...); err != nil {
		return wrapAPIError("POST", path, err)
	}
	return nil
}

// promptBody is the wire shape of a prompt submission.
type promptBody struct {
	Model *Model       `json:"model,omitempty"`
	Agent string       `json:"agent,omitempty"`
	Parts []promptPart `json:"parts"`
}

type promptPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptAsync submits a prompt without waiting for the response. The response
// is observed only through the event feed.
func (c *Client) PromptAsync(ctx context.Context, sessionID string, req PromptRequest) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	prompt := promptBody{
		Agent: req.Agent,
		Parts: []promptPart{{Type: PartTypeText, Text: req.Text}},
	}
	if req.Model.ModelID != "" {
		m := req.Model
		prompt.Model = &m
	}
	body, err := jsonBody(prompt)
	if err != nil {
		return err
	}
	path := sessionPath(sessionID, "prompt_async")
	if err := c.api.Post(ctx, path, body, nil, c.requestOptions()...); err != nil {
		return wrapAPIError("POST", path, err)
	}
	return nil
}

// Subscribe opens the global event feed. The subscription lives until Close
// is called or ctx is done.
func (c *Client) Subscribe(ctx context.Context) (EventStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := c.api.Event.ListStreaming(streamCtx, sdk.EventListParams{}, c.requestOptions()...)
	if err := stream.Err(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrSubscribe, err)
	}
	return newEventStream(stream, cancel, c.logger), nil
}

// Messages returns the stored message history of a session, oldest first.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]MessageWithParts, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msgs, err := c.api.Session.Messages(ctx, sessionID, sdk.SessionMessagesParams{}, c.requestOptions()...)
	if err != nil {
		return nil, wrapAPIError("GET", sessionPath(sessionID, "message"), err)
	}
	if msgs == nil {
		return nil, nil
	}
	out := make([]MessageWithParts, 0, len(*msgs))
	for _, m := range *msgs {
		var mp MessageWithParts
		if err := json.Unmarshal([]byte(m.JSON.RawJSON()), &mp); err != nil {
			return nil, fmt.Errorf("opencode: decoding message %s: %w", m.Info.ID, err)
		}
		out = append(out, mp)
	}
	return out, nil
}

// RespondPermission relays a permission decision to the backend.
func (c *Client) RespondPermission(ctx context.Context, sessionID, permissionID string, decision Decision) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	body, err := jsonBody(map[string]string{"response": string(decision)})
	if err != nil {
		return err
	}
	path := sessionPath(sessionID, "permissions", url.PathEscape(permissionID))
	if err := c.api.Post(ctx, path, body, nil, c.requestOptions()...); err != nil {
		return wrapAPIError("POST", path, err)
	}
	return nil
}

// eventSource is the SDK's typed event stream.
type eventSource interface {
	Next() bool
	Current() sdk.EventListResponse
	Err() error
	Close() error
}

// eventStream implements EventStream over the SDK stream, mapping the SDK's
// event union into Event.
type eventStream struct {
	src       eventSource
	cancel    context.CancelFunc
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

func newEventStream(src eventSource, cancel context.CancelFunc, logger *zap.Logger) *eventStream {
	return &eventStream{src: src, cancel: cancel, logger: logger}
}

// Next returns the next event the consumer handles. Other event types and
// payloads missing required fields are dropped with a debug log.
func (s *eventStream) Next() (Event, error) {
	for s.src.Next() {
		ev, err := fromSDKEvent(s.src.Current())
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				s.logger.Debug("dropping unhandled event", zap.Error(err))
			} else {
				s.logger.Debug("dropping malformed event", zap.Error(err))
			}
			continue
		}
		return ev, nil
	}
	if err := s.src.Err(); err != nil {
		return nil, fmt.Errorf("reading event stream: %w", err)
	}
	return nil, fmt.Errorf("event stream closed: %w", io.EOF)
}

// Close releases the underlying connection. Safe to call more than once.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}

// fromSDKEvent maps one SDK event into Event. The SDK types dispatch on the
// event name; properties are read from the raw payload because the SDK models
// leave out finish, ignored and error details the consumer relies on.
func fromSDKEvent(evt sdk.EventListResponse) (Event, error) {
	switch evt.Type {
	case sdk.EventListResponseTypeMessageUpdated,
		sdk.EventListResponseTypeMessagePartUpdated,
		sdk.EventListResponseType(TypePermissionUpdated),
		sdk.EventListResponseType(TypeSessionError),
		sdk.EventListResponseType(TypeSessionIdle):
		return DecodeEvent([]byte(evt.JSON.RawJSON()))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Type)
	}
}

// Probe performs a short liveness check against baseURL. Any response below
// 500 counts as alive; the check is advisory.
func Probe(ctx context.Context, baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp *http.Response
	err := newAPI(baseURL).Get(ctx, "global/health", nil, nil, option.WithResponseInto(&resp))
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	switch {
	case status >= 500:
		return fmt.Errorf("%w: %s: status %d", ErrBackendUnreachable, baseURL, status)
	case status > 0:
		return nil
	case err != nil:
		return fmt.Errorf("%w: %s: %v", ErrBackendUnreachable, baseURL, err)
	}
	return nil
}
