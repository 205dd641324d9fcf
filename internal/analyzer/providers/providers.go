// Package providers holds the scorer backends behind analyzer.Provider.
package providers

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/trendscout/internal/analyzer"
	"github.com/ibeckermayer/trendscout/internal/config"
	"github.com/ibeckermayer/trendscout/internal/retry"
	"github.com/ibeckermayer/trendscout/internal/store"
)

// Deps are the shared collaborators a provider may use.
type Deps struct {
	HTTP   *http.Client
	Retry  retry.Config
	Cache  *store.StepCache
	Logger logrus.FieldLogger
}

// New returns the provider named by cfg.Provider.
func New(cfg config.ScoringConfig, deps Deps) (analyzer.Provider, error) {
	switch cfg.Provider {
	case config.ProviderLocal, "":
		return NewLocalProvider(), nil
	case config.ProviderClaude:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an API key", cfg.Provider)
		}
		return NewClaudeProvider(ClaudeOptions{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			HTTP:   deps.HTTP,
			Retry:  deps.Retry,
			Cache:  deps.Cache,
			Logger: deps.Logger,
		}), nil
	case config.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q requires an API key", cfg.Provider)
		}
		return NewAnthropicProvider(AnthropicOptions{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			HTTP:       deps.HTTP,
			MaxRetries: deps.Retry.MaxRetries,
			Cache:      deps.Cache,
			Logger:     deps.Logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown scoring provider %q", cfg.Provider)
	}
}
