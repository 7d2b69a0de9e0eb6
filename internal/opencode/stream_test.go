package opencode

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iHildy/ocmt/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

const sess = "ses_1"

func consume(t *testing.T, b *fakeBackend, onPermission PermissionFunc) (Result, error) {
	t.Helper()
	c := NewConsumer(b, 5*time.Second, zaptest.NewLogger(t))
	return c.Consume(context.Background(), sess, onPermission, nil)
}

func TestConsumeReturnsTextOfCompletedMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		assistantMessage(sess, "msg_1", false),
		textPart(sess, "msg_1", "prt_1", "Hello, "),
		textPart(sess, "msg_1", "prt_2", "world"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", res.Text)
	assert.Equal(t, "msg_1", res.MessageID)
}

func TestConsumePartRevisionsKeepFirstSeenOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "prt_1", "fix"),
		textPart(sess, "msg_1", "prt_2", " parser"),
		textPart(sess, "msg_1", "prt_1", "feat: add"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "feat: add parser", res.Text)
}

func TestConsumeIgnoresOtherSessionsAndNonTextParts(t *testing.T) {
	defer goleak.VerifyNone(t)

	reasoning := textPart(sess, "msg_1", "prt_r", "thinking...")
	reasoning.Part.Type = "reasoning"
	ignored := textPart(sess, "msg_1", "prt_i", "hidden")
	ignored.Part.Ignored = true

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart("ses_other", "msg_x", "prt_x", "not mine"),
		assistantMessage("ses_other", "msg_x", true),
		SessionErrorEvent{Session: "ses_other", Err: &SessionError{Name: "Boom"}},
		textPart(sess, "msg_user", "prt_u", "the prompt"),
		reasoning,
		ignored,
		textPart(sess, "msg_1", "prt_1", "mine"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", res.Text)
}

func TestConsumeUserMessagesAreNotTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	user := assistantMessage(sess, "msg_u", true)
	user.Info.Role = RoleUser

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		user,
		textPart(sess, "msg_1", "prt_1", "answer"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Text)
}

func TestConsumeToolCallStepContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "prt_1", "let me look at the diff"),
		toolStep(sess, "msg_1"),
		textPart(sess, "msg_2", "prt_2", "refactor: split loader"),
		assistantMessage(sess, "msg_2", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "refactor: split loader", res.Text)
	assert.Equal(t, "msg_2", res.MessageID)
}

func TestConsumeSessionError(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "prt_1", "partial"),
		SessionErrorEvent{Session: sess, Err: &SessionError{Name: "ProviderAuthError", Message: "bad key"}},
	)}}

	_, err := consume(t, b, nil)
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "ProviderAuthError", sessErr.Name)
	assert.Equal(t, "bad key", sessErr.Message)
}

func TestConsumeCompletedMessageWithError(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		failedMessage(sess, "msg_1", "APIError", "rate limited"),
	)}}

	_, err := consume(t, b, nil)
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "rate limited", sessErr.Message)
}

func TestConsumeIdleBeforeCompletionWaitsForMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "prt_1", "done"),
		SessionIdle{Session: sess},
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
}

func TestConsumeIdleWithoutCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		assistantMessage(sess, "msg_1", false),
		SessionIdle{Session: sess},
	)}}

	started := time.Now()
	_, err := consume(t, b, nil)
	require.ErrorIs(t, err, ErrIdleWithoutCompletion)
	assert.GreaterOrEqual(t, time.Since(started), idleGrace)
}

func TestConsumeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "prt_1", "never finishes"),
	)}}

	c := NewConsumer(b, 50*time.Millisecond, zaptest.NewLogger(t))
	_, err := c.Consume(context.Background(), sess, nil, nil)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "50ms")
	assert.Equal(t, 1, b.subscribes())
}

func TestConsumeCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream()}}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	c := NewConsumer(b, time.Minute, zaptest.NewLogger(t))
	_, err := c.Consume(ctx, sess, nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestConsumePermissionAnsweredOncePerID(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		permissionRequest(sess, "per_1", PermissionBash),
		permissionRequest(sess, "per_1", PermissionBash),
		permissionRequest("ses_other", "per_x", PermissionBash),
		permissionRequest(sess, "per_2", PermissionEdit),
		textPart(sess, "msg_1", "prt_1", "ok"),
		assistantMessage(sess, "msg_1", true),
	)}}

	var asked atomic.Int32
	onPermission := func(_ context.Context, p Permission) Decision {
		asked.Add(1)
		if p.Type == PermissionBash {
			return DecisionAlways
		}
		return DecisionReject
	}

	res, err := consume(t, b, onPermission)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, int32(2), asked.Load())
	assert.Equal(t, []permissionResponse{
		{sess, "per_1", DecisionAlways},
		{sess, "per_2", DecisionReject},
	}, b.responses)
}

func TestConsumeConcatenatesPartsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		textPart(sess, "msg_1", "a", "Fix "),
		textPart(sess, "msg_1", "b", "auth "),
		textPart(sess, "msg_1", "c", "bug"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "Fix auth bug", res.Text)
}

func TestConsumeBashPermissionAllowedOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		permissionRequest(sess, "per_1", PermissionBash),
		permissionRequest(sess, "per_1", PermissionBash),
		textPart(sess, "msg_1", "prt_1", "Done"),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, func(context.Context, Permission) Decision { return DecisionOnce })
	require.NoError(t, err)
	assert.Equal(t, "Done", res.Text)
	assert.Equal(t, []permissionResponse{{sess, "per_1", DecisionOnce}}, b.responses)
}

func TestConsumeTerminalPermissionTimeoutRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, w := io.Pipe()
	defer w.Close()
	negotiator := NewTerminalNegotiator(ui.NewInput(r), io.Discard, 30*time.Millisecond, nil, zaptest.NewLogger(t))

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		permissionRequest(sess, "per_1", PermissionBash),
		textPart(sess, "msg_1", "prt_1", "Could not run the command."),
		assistantMessage(sess, "msg_1", true),
	)}}

	res, err := consume(t, b, negotiator.Negotiate)
	require.NoError(t, err)
	assert.Equal(t, "Could not run the command.", res.Text)
	assert.Equal(t, []permissionResponse{{sess, "per_1", DecisionReject}}, b.responses)
}

func TestConsumePermissionWithoutHandlerRejects(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		permissionRequest(sess, "per_1", PermissionWebFetch),
		assistantMessage(sess, "msg_1", true),
	)}}

	_, err := consume(t, b, nil)
	require.NoError(t, err)
	require.Len(t, b.responses, 1)
	assert.Equal(t, DecisionReject, b.responses[0].Decision)
}

func TestConsumePermissionDeliveryFailureIsNotFatal(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{
		respondErr: errors.New("connection reset"),
		streams: []*scriptedStream{heldStream(
			permissionRequest(sess, "per_1", PermissionBash),
			textPart(sess, "msg_1", "prt_1", "still fine"),
			assistantMessage(sess, "msg_1", true),
		)},
	}

	res, err := consume(t, b, func(context.Context, Permission) Decision { return DecisionOnce })
	require.NoError(t, err)
	assert.Equal(t, "still fine", res.Text)
}

func TestConsumeReconnectRecoversFromHistory(t *testing.T) {
	defer goleak.VerifyNone(t)

	done := assistantMessage(sess, "msg_1", true).Info
	b := &fakeBackend{
		streams: []*scriptedStream{droppingStream(
			textPart(sess, "msg_1", "prt_1", "par"),
		)},
		history: []MessageWithParts{
			{Info: MessageInfo{ID: "msg_0", SessionID: sess, Role: RoleUser}},
			{Info: done, Parts: []Part{
				{ID: "prt_1", MessageID: "msg_1", Type: PartTypeText, Text: "partial then "},
				{ID: "prt_2", MessageID: "msg_1", Type: "tool"},
				{ID: "prt_3", MessageID: "msg_1", Type: PartTypeText, Text: "complete"},
			}},
		},
	}

	res, err := consume(t, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial then complete", res.Text)
	assert.Equal(t, 2, b.subscribes())
	assert.Empty(t, b.aborted)
}

func TestConsumeReconnectWithIncompleteHistoryAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{
		streams: []*scriptedStream{droppingStream()},
		history: []MessageWithParts{
			{Info: assistantMessage(sess, "msg_1", false).Info},
		},
	}

	_, err := consume(t, b, nil)
	require.ErrorIs(t, err, ErrStreamDisconnected)
	assert.Equal(t, 2, b.subscribes(), "exactly one reconnection attempt")
	assert.Equal(t, []string{sess}, b.aborted)
}

func TestConsumeReconnectEndingInToolStepAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	step := toolStep(sess, "msg_1")
	b := &fakeBackend{
		streams: []*scriptedStream{droppingStream(
			textPart(sess, "msg_1", "prt_1", "Let me look at the files."),
			step,
		)},
		history: []MessageWithParts{
			{Info: MessageInfo{ID: "msg_0", SessionID: sess, Role: RoleUser}},
			{Info: step.Info, Parts: []Part{
				{ID: "prt_1", MessageID: "msg_1", Type: PartTypeText, Text: "Let me look at the files."},
			}},
		},
	}

	res, err := consume(t, b, nil)
	require.ErrorIs(t, err, ErrStreamDisconnected)
	assert.Empty(t, res.Text)
	assert.Equal(t, 2, b.subscribes())
	assert.Equal(t, []string{sess}, b.aborted)
}

func TestConsumeReconnectWithEmptyHistoryAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{droppingStream()}}

	_, err := consume(t, b, nil)
	require.ErrorIs(t, err, ErrStreamDisconnected)
	assert.Equal(t, []string{sess}, b.aborted)
}

func TestConsumeResubscribeFailureAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{
		streams:      []*scriptedStream{droppingStream()},
		subscribeErr: []error{nil, errors.New("connection refused")},
	}

	_, err := consume(t, b, nil)
	require.ErrorIs(t, err, ErrStreamDisconnected)
	assert.Equal(t, 2, b.subscribes())
	assert.Equal(t, []string{sess}, b.aborted)
}

func TestConsumeReconnectHistoryWithError(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{
		streams: []*scriptedStream{droppingStream()},
		history: []MessageWithParts{
			{Info: failedMessage(sess, "msg_1", "APIError", "overloaded").Info},
		},
	}

	_, err := consume(t, b, nil)
	var sessErr *SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, "overloaded", sessErr.Message)
}

func TestConsumeSubscribeFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{subscribeErr: []error{errors.New("dial tcp: refused")}}
	submitted := false

	c := NewConsumer(b, time.Second, zaptest.NewLogger(t))
	_, err := c.Consume(context.Background(), sess, nil, func(context.Context) error {
		submitted = true
		return nil
	})
	require.ErrorIs(t, err, ErrSubscribe)
	assert.False(t, submitted)
}

func TestConsumeSubscribesBeforeSubmitting(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream(
		assistantMessage(sess, "msg_1", true),
	)}}

	var subscribedFirst bool
	c := NewConsumer(b, time.Second, zaptest.NewLogger(t))
	_, err := c.Consume(context.Background(), sess, nil, func(context.Context) error {
		subscribedFirst = b.subscribes() == 1
		return nil
	})
	require.NoError(t, err)
	assert.True(t, subscribedFirst)
}

func TestConsumeSubmitFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := &fakeBackend{streams: []*scriptedStream{heldStream()}}

	c := NewConsumer(b, time.Second, zaptest.NewLogger(t))
	_, err := c.Consume(context.Background(), sess, nil, func(context.Context) error {
		return errors.New("status 400")
	})
	require.ErrorIs(t, err, ErrPromptSubmit)
}

func TestStreamStateString(t *testing.T) {
	assert.Equal(t, "streaming", stateStreaming.String())
	assert.Equal(t, "reconnecting", stateReconnecting.String())
	assert.Equal(t, "done", stateDone.String())
	assert.Equal(t, "failed", stateFailed.String())
}
