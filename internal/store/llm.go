package store

import "time"

// LLMExchange represents a prompt/response pair for caching
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "claude"
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// SaveLLMExchange writes exchange to the scorer step of the cache. It is a
// no-op on a nil cache.
func SaveLLMExchange(c *StepCache, exchange LLMExchange) (string, error) {
	return SaveStepOutput(c, StepScorer, exchange.Provider, exchange)
}
