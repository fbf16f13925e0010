package store

import (
	"time"
)

// LLMExchange is a prompt/response pair kept for debugging
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // "anthropic"
	Purpose   string    `json:"purpose"`  // "sentiment" or "insights"
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// SaveLLMExchange writes an exchange under the llm step dir
func SaveLLMExchange(exchange LLMExchange) (string, error) {
	if exchange.Timestamp.IsZero() {
		exchange.Timestamp = time.Now()
	}
	return SaveStepOutput(StepLLM, exchange)
}
