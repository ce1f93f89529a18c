package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/agentflow/llm/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeadline_CapsAtAdapterTimeout(t *testing.T) {
	ctx, cancel := Deadline(context.Background(), 2*time.Second)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(2*time.Second), deadline, 200*time.Millisecond)
}

func TestDeadline_CapsAtHardCapWhenNoAdapterTimeout(t *testing.T) {
	ctx, cancel := Deadline(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(HardCap), deadline, time.Second)
}

func TestDeadline_NeverExceedsHardCapEvenWithLargerAdapterTimeout(t *testing.T) {
	ctx, cancel := Deadline(context.Background(), 10*time.Hour)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(HardCap), deadline, time.Second)
}

func TestDeadline_RespectsCallerContextDeadlineWhenTighter(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer parentCancel()

	ctx, cancel := Deadline(parent, time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(500*time.Millisecond), deadline, 100*time.Millisecond)
}

func TestClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(0)
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_DoWithRetry_NoRetryerIsSingleAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(0)
	resp, err := c.DoWithRetry(context.Background(), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 1, calls, "without WithRetry, DoWithRetry must not retry on its own")
}

func TestClient_DoWithRetry_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	c := New(0).WithRetry(&retry.RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var attempts int
	resp, err := c.DoWithRetry(context.Background(), func() (*http.Request, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("simulated transient dial failure")
		}
		req, reqErr := http.NewRequest(http.MethodGet, srv.URL, nil)
		return req, reqErr
	})

	require.NoError(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, 3, attempts)
}

func TestClient_Raw(t *testing.T) {
	c := New(5)
	require.NotNil(t, c.Raw())
	transport, ok := c.Raw().Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 5, transport.MaxConnsPerHost)
}
