package opencode

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSessionCloseIsIdempotent(t *testing.T) {
	b := &fakeBackend{}
	m := NewSessionManager(b, zaptest.NewLogger(t))

	s, err := m.Open(context.Background(), "title")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Close(context.Background(), s.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{s.ID}, b.deleted)
}

func TestSessionCloseRunsAfterCancellation(t *testing.T) {
	b := &fakeBackend{}
	m := NewSessionManager(b, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Close(ctx, "ses_9")
	assert.Equal(t, []string{"ses_9"}, b.deleted)
}

func TestSessionCloseSwallowsErrors(t *testing.T) {
	b := &fakeBackend{deleteErr: errors.New("status 404")}
	m := NewSessionManager(b, zaptest.NewLogger(t))

	m.Close(context.Background(), "ses_1")
	m.Close(context.Background(), "ses_1")
	assert.Equal(t, []string{"ses_1"}, b.deleted, "a failed delete is not retried")
}

func TestSessionCloseEmptyID(t *testing.T) {
	b := &fakeBackend{}
	NewSessionManager(b, nil).Close(context.Background(), "")
	assert.Empty(t, b.deleted)
}

func TestSessionOpenFailure(t *testing.T) {
	cause := errors.New("status 500")
	m := NewSessionManager(&fakeBackend{createErr: cause}, nil)

	_, err := m.Open(context.Background(), "title")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "creating session")
}
