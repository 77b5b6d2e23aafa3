package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, reply string) (*httptest.Server, *[]string) {
	t.Helper()

	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			for _, m := range req.Messages {
				if m.Role == "user" {
					prompts = append(prompts, m.Content)
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func TestComplete(t *testing.T) {
	srv, prompts := completionServer(t, http.StatusOK, "Hi there")

	c, err := New(Config{APIKey: "test", Model: "gpt-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	reply, err := c.Complete(t.Context(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)
	assert.Equal(t, []string{"Hello"}, *prompts)
}

func TestCompleteEmptyContent(t *testing.T) {
	srv, _ := completionServer(t, http.StatusOK, "")

	c, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = c.Complete(t.Context(), "Hello")
	assert.EqualError(t, err, "empty message content")
}

func TestCompleteServerError(t *testing.T) {
	srv, prompts := completionServer(t, http.StatusInternalServerError, "")

	c, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	_, err = c.Complete(t.Context(), "Hello")
	require.Error(t, err)
	assert.Len(t, *prompts, 1, "no retries")
}

func TestNewNeedsKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
