package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return client, srv
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"}, nil)
	assert.Error(t, err, "base URL required")

	_, err = NewClient(Config{BaseURL: "http://localhost:11434/v1"}, nil)
	assert.Error(t, err, "model required")

	t.Setenv("RAGD_TEST_LLM_KEY", "")
	_, err = NewClient(Config{
		BaseURL:   "https://api.example.com/v1",
		Model:     "m",
		APIKeyEnv: "RAGD_TEST_LLM_KEY",
	}, nil)
	assert.Error(t, err, "remote endpoint needs a key")

	_, err = NewClient(Config{
		BaseURL:   "http://localhost:11434/v1",
		Model:     "m",
		APIKeyEnv: "RAGD_TEST_LLM_KEY",
	}, nil)
	assert.NoError(t, err, "local endpoint tolerates a missing key")
}

func TestGenerateText(t *testing.T) {
	var captured chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"forty-two"}}]}`)
	})

	answer, err := client.GenerateText(context.Background(), "meaning of life?", domain.GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   64,
	})
	require.NoError(t, err)

	assert.Equal(t, "forty-two", answer)
	assert.Equal(t, "test-model", captured.Model)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
	assert.Equal(t, "meaning of life?", captured.Messages[0].Content)
	assert.InDelta(t, 0.2, captured.Temperature, 1e-9)
	assert.Equal(t, 64, captured.MaxTokens)
	assert.False(t, captured.Stream)
}

func TestGenerateWithHistory(t *testing.T) {
	var captured chatRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"choices":[{"message":{"content":"sure"}}]}`)
	})

	turns := []domain.ConversationTurn{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "continue"},
	}
	answer, err := client.GenerateWithHistory(context.Background(), turns, domain.GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, "sure", answer)
	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "continue", captured.Messages[3].Content)
}

func TestGenerateText_ErrorStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusServiceUnavailable)
	})

	_, err := client.GenerateText(context.Background(), "q", domain.GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestGenerateText_NoChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.GenerateText(context.Background(), "q", domain.GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestGenerateStream(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, token := range []string{"Hello", ", ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", token)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	tokens, errs := client.GenerateStream(context.Background(), "greet", domain.GenerateOptions{})

	var got strings.Builder
	for token := range tokens {
		got.WriteString(token)
	}
	assert.Equal(t, "Hello, world", got.String())
	assert.NoError(t, <-errs)
}

func TestGenerateStream_RequestErrorOnChannel(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	tokens, errs := client.GenerateStream(context.Background(), "q", domain.GenerateOptions{})

	for range tokens {
		t.Fatal("no tokens expected")
	}
	assert.Error(t, <-errs)
}

func TestGenerateStream_SkipsEmptyDeltas(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"only\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	tokens, errs := client.GenerateStream(context.Background(), "q", domain.GenerateOptions{})

	var got []string
	for token := range tokens {
		got = append(got, token)
	}
	assert.Equal(t, []string{"only"}, got)
	assert.NoError(t, <-errs)
}
