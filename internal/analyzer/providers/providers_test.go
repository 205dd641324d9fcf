package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/retry"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHashtags(t *testing.T) {
	assert.Equal(t, []string{"周杰伦演唱会", "travel"}, Hashtags("看了 #周杰伦演唱会# 太好了 #travel# #周杰伦演唱会#"))
	assert.Nil(t, Hashtags("no tags # here #"))
}

func TestHeuristicScore(t *testing.T) {
	assert.Zero(t, HeuristicScore(types.Post{}))

	full := types.Post{
		Attitudes: 100000,
		Comments:  10000,
		Reposts:   10000,
		HasImages: true,
		Content:   strings.Repeat("字", 200),
	}
	assert.InDelta(t, 100, HeuristicScore(full), 1e-9)

	mediaOnly := types.Post{HasVideos: true}
	assert.InDelta(t, 10, HeuristicScore(mediaOnly), 1e-9)

	low := HeuristicScore(types.Post{Attitudes: 10, HasImages: true})
	high := HeuristicScore(types.Post{Attitudes: 1000, HasImages: true})
	assert.Greater(t, high, low)
}

func TestLocalProviderScore(t *testing.T) {
	p := NewLocalProvider()
	analyses, err := p.Score(context.Background(), []types.Post{
		{ID: "1", Content: "#猫# cute", Attitudes: 500},
		{ID: "2"},
	})
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "1", analyses[0].PostID)
	assert.Equal(t, []string{"猫"}, analyses[0].Topics)
	assert.Equal(t, "local", p.Name())
}

func TestLocalProviderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalProvider().Score(ctx, []types.Post{{ID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAnalysisResponseClamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	got, err := ParseAnalysisResponse([]byte(`[{"post_id":"1","quality_score":140,"topics":["a"]},{"post_id":"2","quality_score":-3}]`), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 100, got[0].QualityScore, 1e-9)
	assert.InDelta(t, 0, got[1].QualityScore, 1e-9)
	assert.Equal(t, now, got[0].AnalyzedAt)

	_, err = ParseAnalysisResponse([]byte(`not json`), now)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `[{"a":1}]`, extractJSON("```json\n[{\"a\":1}]\n```"))
	assert.Equal(t, `[1,2]`, extractJSON("sure: [1,2] done"))
	assert.Equal(t, "nothing", extractJSON("nothing"))
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt([]types.Post{{ID: "42", Keyword: "cats", UserName: "alice", Content: "hello\n\n world", Attitudes: 7}})
	assert.Contains(t, prompt, "(ID: 42)")
	assert.Contains(t, prompt, "Content: hello world")
	assert.Contains(t, prompt, "7 likes")
}

func TestClaudeProviderScore(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req claudeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "assistant", req.Messages[1].Role)
			assert.Equal(t, "[", req.Messages[1].Content)
		}

		_ = json.NewEncoder(w).Encode(claudeResponse{Content: []claudeContent{{
			Type: "text",
			Text: `{"post_id":"1","quality_score":88,"topics":["猫"]}]`,
		}}})
	}))
	defer srv.Close()

	cache := store.NewStepCache(t.TempDir())
	p := NewClaudeProvider(ClaudeOptions{
		APIKey: "secret",
		Model:  "test-model",
		URL:    srv.URL,
		Retry:  retry.Config{MaxRetries: 2},
		Cache:  cache,
		Logger: quietLogger(),
	})

	analyses, err := p.Score(context.Background(), []types.Post{{ID: "1", Content: "cat"}})
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "1", analyses[0].PostID)
	assert.InDelta(t, 88, analyses[0].QualityScore, 1e-9)
	assert.Equal(t, []string{"猫"}, analyses[0].Topics)
	assert.EqualValues(t, 2, hits.Load())

	ex, _, err := store.LoadLatestStepOutput[store.LLMExchange](cache, store.StepScorer)
	require.NoError(t, err)
	assert.Equal(t, "claude", ex.Provider)
	assert.Contains(t, ex.Prompt, "(ID: 1)")
	assert.Empty(t, ex.Error)
}

func TestClaudeProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeOptions{APIKey: "k", URL: srv.URL, Logger: quietLogger()})
	_, err := p.Score(context.Background(), []types.Post{{ID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_request_error")
}

func TestClaudeProviderNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewClaudeProvider(ClaudeOptions{APIKey: "k", URL: srv.URL, Retry: retry.Config{MaxRetries: 3}, Logger: quietLogger()})
	_, err := p.Score(context.Background(), []types.Post{{ID: "1"}})
	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.EqualValues(t, 1, hits.Load())
}

func TestNew(t *testing.T) {
	p, err := New(config.ScoringConfig{Provider: config.ProviderLocal}, Deps{})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	p, err = New(config.ScoringConfig{Provider: config.ProviderClaude, APIKey: "k"}, Deps{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, "claude", p.Name())

	_, err = New(config.ScoringConfig{Provider: config.ProviderClaude}, Deps{})
	assert.Error(t, err)

	p, err = New(config.ScoringConfig{Provider: config.ProviderAnthropic, APIKey: "k"}, Deps{Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.IsType(t, &AnthropicProvider{}, p)

	_, err = New(config.ScoringConfig{Provider: config.ProviderAnthropic}, Deps{})
	assert.Error(t, err)

	_, err = New(config.ScoringConfig{Provider: "gpt"}, Deps{})
	assert.Error(t, err)
}

// messagesReply is a Messages API response carrying text as its only block.
func messagesReply(text string) map[string]any {
	return map[string]any{
		"id":            "msg_test",
		"type":          "message",
		"role":          "assistant",
		"model":         "test-model",
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"content":       []map[string]any{{"type": "text", "text": text}},
		"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
	}
}

func TestAnthropicProviderScore(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("retry-after-ms", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "assistant", req.Messages[1].Role)
			if assert.Len(t, req.Messages[1].Content, 1) {
				assert.Equal(t, "[", req.Messages[1].Content[0].Text)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(messagesReply(`{"post_id":"1","quality_score":77,"topics":["狗"]}]`))
	}))
	defer srv.Close()

	cache := store.NewStepCache(t.TempDir())
	p := NewAnthropicProvider(AnthropicOptions{
		APIKey:     "secret",
		Model:      "test-model",
		BaseURL:    srv.URL,
		HTTP:       srv.Client(),
		MaxRetries: 2,
		Cache:      cache,
		Logger:     quietLogger(),
	})

	analyses, err := p.Score(context.Background(), []types.Post{{ID: "1", Content: "dog"}})
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.Equal(t, "1", analyses[0].PostID)
	assert.InDelta(t, 77, analyses[0].QualityScore, 1e-9)
	assert.Equal(t, []string{"狗"}, analyses[0].Topics)
	assert.EqualValues(t, 2, hits.Load())

	ex, _, err := store.LoadLatestStepOutput[store.LLMExchange](cache, store.StepScorer)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", ex.Provider)
	assert.Equal(t, "test-model", ex.Model)
	assert.Contains(t, ex.Prompt, "(ID: 1)")
}

func TestAnthropicProviderAPIError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`)
	}))
	defer srv.Close()

	cache := store.NewStepCache(t.TempDir())
	p := NewAnthropicProvider(AnthropicOptions{
		APIKey:     "k",
		BaseURL:    srv.URL,
		HTTP:       srv.Client(),
		MaxRetries: 3,
		Cache:      cache,
		Logger:     quietLogger(),
	})
	_, err := p.Score(context.Background(), []types.Post{{ID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to call Claude API")
	assert.EqualValues(t, 1, hits.Load(), "client errors are not retried")

	ex, _, err := store.LoadLatestStepOutput[store.LLMExchange](cache, store.StepScorer)
	require.NoError(t, err)
	assert.NotEmpty(t, ex.Error)
}

func TestAnthropicProviderEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reply := messagesReply("")
		reply["content"] = []map[string]any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(AnthropicOptions{APIKey: "k", BaseURL: srv.URL, HTTP: srv.Client(), Logger: quietLogger()})
	_, err := p.Score(context.Background(), []types.Post{{ID: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}
