package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatOK(content string) string {
	body, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(body)
}

func newTestClient(url string) Client {
	return NewClient(url, "test-key", "test-model",
		WithRetry(2, 0),
		WithRequestDelay(0),
	)
}

func TestCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		w.Write([]byte(chatOK(`{"pong":true}`)))
	}))
	defer srv.Close()

	content, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "ping"}}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, `{"pong":true}`, content)
}

func TestCompleteRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(chatOK("ok")))
	}))
	defer srv.Close()

	content, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "ping"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "ping"}}, 0)
	assert.Error(t, err)
	// maxRetries=2 means three attempts total
	assert.Equal(t, int32(3), calls.Load())
}

func TestCompleteNonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "ping"}}, 0)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	content, err := newTestClient(srv.URL).Complete(context.Background(),
		[]Message{{Role: "user", Content: "ping"}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestCompleteCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatOK("ok")))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL, "k", "m", WithRetry(0, 0))
	_, err := c.Complete(ctx, []Message{{Role: "user", Content: "ping"}}, 0)
	assert.Error(t, err)
}
