package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/retry"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

const (
	claudeAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// ClaudeProvider implements the Provider interface using the Claude messages API
type ClaudeProvider struct {
	apiKey string
	model  string
	url    string
	client *retry.Client
	cache  *store.StepCache
	log    logrus.FieldLogger
	now    func() time.Time
}

// ClaudeOptions configures NewClaudeProvider. Zero values pick defaults.
type ClaudeOptions struct {
	APIKey string
	Model  string
	// URL overrides the messages endpoint.
	URL    string
	HTTP   *http.Client
	Retry  retry.Config
	Cache  *store.StepCache
	Logger logrus.FieldLogger
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(opts ClaudeOptions) *ClaudeProvider {
	if opts.URL == "" {
		opts.URL = claudeAPIURL
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{
			Timeout: 120 * time.Second, // LLM calls can be slow
		}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &ClaudeProvider{
		apiKey: opts.APIKey,
		model:  opts.Model,
		url:    opts.URL,
		client: retry.NewClient(opts.HTTP, opts.Retry, opts.Logger),
		cache:  opts.Cache,
		log:    opts.Logger,
		now:    time.Now,
	}
}

func (c *ClaudeProvider) Name() string { return "claude" }

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Error   *claudeError    `json:"error,omitempty"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Score sends posts to Claude for quality rating
func (c *ClaudeProvider) Score(ctx context.Context, posts []types.Post) ([]types.Analysis, error) {
	prompt := buildPrompt(posts)

	text, err := c.complete(ctx, prompt)
	c.saveExchange(prompt, text, err)
	if err != nil {
		return nil, err
	}

	// The assistant turn was prefilled with "[" so the reply continues the array.
	return ParseAnalysisResponse([]byte(extractJSON("["+text)), c.now())
}

func (c *ClaudeProvider) complete(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(claudeRequest{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
			{Role: "assistant", Content: "["},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var claudeResp claudeResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", fmt.Errorf("failed to parse Claude response: %w", err)
	}
	if claudeResp.Error != nil {
		return "", fmt.Errorf("Claude API error: %s - %s", claudeResp.Error.Type, claudeResp.Error.Message)
	}
	if len(claudeResp.Content) == 0 {
		return "", errors.New("Claude returned empty response")
	}
	return claudeResp.Content[0].Text, nil
}

func (c *ClaudeProvider) saveExchange(prompt, response string, callErr error) {
	if c.cache == nil {
		return
	}
	ex := store.LLMExchange{
		Timestamp: c.now(),
		Provider:  c.Name(),
		Model:     c.model,
		Prompt:    prompt,
		Response:  response,
	}
	if callErr != nil {
		ex.Error = callErr.Error()
	}
	if _, err := store.SaveLLMExchange(c.cache, ex); err != nil {
		c.log.WithError(err).Warn("failed to cache LLM exchange")
	}
}

var (
	codeBlockJSON = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*\n?(\[.*?\])\s*\n?` + "```")
	rawJSONArray  = regexp.MustCompile(`(?s)(\[.*\])`)
)

// extractJSON pulls the JSON array out of a reply, handling markdown code blocks
func extractJSON(text string) string {
	if m := codeBlockJSON.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	if m := rawJSONArray.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}
