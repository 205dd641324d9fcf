package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/store"
	"github.com/ibeckermayer/trendscout/internal/types"
)

// AnthropicProvider implements the Provider interface using the Anthropic Go SDK
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	cache  *store.StepCache
	log    logrus.FieldLogger
	now    func() time.Time
}

// AnthropicOptions configures NewAnthropicProvider. Zero values pick the SDK
// defaults.
type AnthropicOptions struct {
	APIKey string
	Model  string
	// BaseURL overrides the API host.
	BaseURL    string
	HTTP       *http.Client
	MaxRetries int
	Cache      *store.StepCache
	Logger     logrus.FieldLogger
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(opts AnthropicOptions) *AnthropicProvider {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(max(opts.MaxRetries, 0)),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.HTTP != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTP))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(reqOpts...),
		model:  opts.Model,
		cache:  opts.Cache,
		log:    opts.Logger,
		now:    time.Now,
	}
}

func (c *AnthropicProvider) Name() string { return config.ProviderAnthropic }

// Score sends posts to Claude for quality rating
func (c *AnthropicProvider) Score(ctx context.Context, posts []types.Post) ([]types.Analysis, error) {
	prompt := buildPrompt(posts)

	text, err := c.complete(ctx, prompt)
	c.saveExchange(prompt, text, err)
	if err != nil {
		return nil, err
	}

	// The assistant turn was prefilled with "[" so the reply continues the array.
	return ParseAnalysisResponse([]byte(extractJSON("["+text)), c.now())
}

func (c *AnthropicProvider) complete(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("[")),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("Claude returned empty response")
}

func (c *AnthropicProvider) saveExchange(prompt, response string, callErr error) {
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
