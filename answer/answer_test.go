package answer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omni/question-oracle/answer"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, req *openai.ChatCompletionRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, &req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, contents ...string) {
	res := openai.ChatCompletionResponse{ID: "chatcmpl-1", Object: "chat.completion"}
	for i, content := range contents {
		res.Choices = append(res.Choices, openai.ChatCompletionChoice{
			Index:   i,
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func newProvider(srv *httptest.Server, timeout time.Duration) *answer.OpenAIProvider {
	logger, _ := test.NewNullLogger()
	return answer.NewOpenAIProvider(logger, answer.Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: timeout,
	})
}

func TestOpenAIProvider_Answer(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, req *openai.ChatCompletionRequest) {
		if len(req.Messages) != 1 || req.Messages[0].Role != openai.ChatMessageRoleUser ||
			req.Messages[0].Content != "What is 2+2?" || req.Model != answer.DefaultModel {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeCompletion(w, "  4\n", "ignored")
	})

	res, err := newProvider(srv, time.Second).Answer(t.Context(), "What is 2+2?")
	require.NoError(t, err)
	require.Equal(t, "4", res)
}

func TestOpenAIProvider_Answer_Errors(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		handler func(w http.ResponseWriter, req *openai.ChatCompletionRequest)
	}{
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *openai.ChatCompletionRequest) {
				writeCompletion(w)
			},
		},
		{
			name: "blank content",
			handler: func(w http.ResponseWriter, _ *openai.ChatCompletionRequest) {
				writeCompletion(w, " \n\t")
			},
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *openai.ChatCompletionRequest) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, _ *openai.ChatCompletionRequest) {
				time.Sleep(300 * time.Millisecond)
				writeCompletion(w, "late")
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, tc.handler)
			_, err := newProvider(srv, 100*time.Millisecond).Answer(t.Context(), "What is 2+2?")
			require.ErrorIs(t, err, answer.ErrGeneration)
		})
	}
}
