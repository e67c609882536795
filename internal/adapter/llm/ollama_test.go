package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, fragments []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)

		enc := json.NewEncoder(w)
		for _, f := range fragments {
			enc.Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: f}})
		}
		enc.Encode(chatResponse{Done: true})
	}))
}

func TestGenerateJoinsFragments(t *testing.T) {
	srv := chatServer(t, []string{"The answer ", "is ", "4."})
	defer srv.Close()

	g := NewOllamaGenerator("llama3.2", srv.URL)
	text, err := g.Generate(context.Background(), "system", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "The answer is 4.", text)
}

func TestGenerateStreamDeliversDeltas(t *testing.T) {
	srv := chatServer(t, []string{"a", "b", "c"})
	defer srv.Close()

	g := NewOllamaGenerator("llama3.2", srv.URL)
	var deltas []string
	err := g.GenerateStream(context.Background(), "system", "prompt", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, deltas)
}

func TestGenerateStreamOnDeltaErrorStops(t *testing.T) {
	srv := chatServer(t, []string{"a", "b", "c"})
	defer srv.Close()

	stop := errors.New("enough")
	g := NewOllamaGenerator("llama3.2", srv.URL)
	calls := 0
	err := g.GenerateStream(context.Background(), "system", "prompt", func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestGenerateStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewOllamaGenerator("llama3.2", srv.URL)
	err := g.GenerateStream(context.Background(), "s", "p", func(string) error { return nil })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGenerateStreamMalformedFragment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "this is not json")
	}))
	defer srv.Close()

	g := NewOllamaGenerator("llama3.2", srv.URL)
	err := g.GenerateStream(context.Background(), "s", "p", func(string) error { return nil })
	assert.Error(t, err)
}

func TestGeneratorDefaults(t *testing.T) {
	g := NewOllamaGenerator("", "")
	assert.Equal(t, DefaultOllamaModel, g.ModelName())
	assert.Equal(t, DefaultOllamaURL, g.baseURL)
}
