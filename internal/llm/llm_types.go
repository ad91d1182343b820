package llm

import (
	"context"
	"time"
)

// GenerationRequest is a single chat-completion request. Responses are always
// consumed whole; the core never relies on streaming.
type GenerationRequest struct {
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float32
	Timeout      time.Duration
}

// GenerationResponse is the provider's completed answer
type GenerationResponse struct {
	Text         string
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
	Timestamp    time.Time
}

// Provider is a black-box completion + embedding API
type Provider interface {
	Name() string
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	IsHealthy(ctx context.Context) bool
}

// ProviderStats tracks per-provider usage for the health surface
type ProviderStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalTokens        int64
	AverageLatency     time.Duration
	LastUsed           time.Time
	ErrorRate          float64
}

// CircuitBreakerState is the current state of a provider breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

// CircuitBreaker trips a provider out of rotation after repeated failures
type CircuitBreaker struct {
	State           CircuitBreakerState
	FailureCount    int
	Threshold       int
	LastFailureTime time.Time
	NextRetryTime   time.Time
}

// ManagerConfig holds manager-level behavior knobs
type ManagerConfig struct {
	DefaultTimeout          time.Duration
	RetryAttempts           int
	FallbackEnabled         bool
	CircuitBreakerThreshold int
}
