package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/config"
)

func newTestClient(t *testing.T, apiKey string, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewClient(config.OpenRouterConfig{
		APIKey:  apiKey,
		BaseURL: srv.URL + "/",
		Model:   "test/model",
		Timeout: 5 * time.Second,
	}, logger)
	c.http.SetRetryWaitTime(time.Millisecond)
	return c
}

func TestTestConnection(t *testing.T) {
	c := newTestClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test/model", req.Model)
		assert.Equal(t, 10, req.MaxTokens)
		require.Len(t, req.Messages, 1)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test/model","choices":[{"message":{"role":"assistant","content":" works \n"}}],"usage":{"total_tokens":17}}`))
	})

	reply, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "works", reply.Content)
	assert.Equal(t, "test/model", reply.Model)
	assert.Equal(t, 17, reply.TotalTokens)
}

func TestTestConnection_NoKey(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.TestConnection(context.Background())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestTestConnection_APIError(t *testing.T) {
	c := newTestClient(t, "sk-bad", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"No auth credentials found","code":401}}`))
	})
	_, err := c.TestConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "No auth credentials found")
}

func TestTestConnection_RetriesServerErrors(t *testing.T) {
	calls := 0
	c := newTestClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test/model","choices":[{"message":{"content":"works"}}]}`))
	})
	reply, err := c.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "works", reply.Content)
	assert.Equal(t, 2, calls)
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, "sk-test", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"deepseek/deepseek-chat"},{"id":"google/gemma-2-9b-it:free"}]}`))
	})
	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek/deepseek-chat", "google/gemma-2-9b-it:free"}, models)
}
