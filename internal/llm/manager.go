package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plumeline/plumeline/config"
)

// Manager manages multiple completion providers with fallback and per-provider
// circuit breakers. Every provider-dependent component in the core goes through
// it; components keep their own deterministic fallbacks for the case where all
// providers are down.
type Manager struct {
	providers       map[string]Provider
	primaryProvider string
	fallbackOrder   []string
	config          ManagerConfig
	stats           map[string]*ProviderStats
	circuitBreakers map[string]*CircuitBreaker
	log             *zap.Logger
	mu              sync.RWMutex
}

// NewManager creates a provider manager from the AI config
func NewManager(cfg config.AIConfig, log *zap.Logger) (*Manager, error) {
	m := &Manager{
		providers:       make(map[string]Provider),
		primaryProvider: cfg.Primary,
		fallbackOrder:   cfg.Fallbacks,
		stats:           make(map[string]*ProviderStats),
		circuitBreakers: make(map[string]*CircuitBreaker),
		log:             log,
		config: ManagerConfig{
			DefaultTimeout:          20 * time.Second,
			RetryAttempts:           3,
			FallbackEnabled:         true,
			CircuitBreakerThreshold: 5,
		},
	}

	if cfg.OpenAI.APIKey != "" {
		p, err := NewOpenAIProvider(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI provider: %w", err)
		}
		m.register(p)
	}

	if _, exists := m.providers[m.primaryProvider]; !exists {
		return nil, fmt.Errorf("primary provider '%s' not available", m.primaryProvider)
	}

	return m, nil
}

// NewManagerWithProviders wires explicit providers, mainly for tests
func NewManagerWithProviders(primary string, log *zap.Logger, providers ...Provider) *Manager {
	m := &Manager{
		providers:       make(map[string]Provider),
		primaryProvider: primary,
		stats:           make(map[string]*ProviderStats),
		circuitBreakers: make(map[string]*CircuitBreaker),
		log:             log,
		config: ManagerConfig{
			DefaultTimeout:          20 * time.Second,
			RetryAttempts:           3,
			FallbackEnabled:         true,
			CircuitBreakerThreshold: 5,
		},
	}
	for _, p := range providers {
		m.register(p)
		if len(m.fallbackOrder) == 0 || p.Name() != primary {
			m.fallbackOrder = append(m.fallbackOrder, p.Name())
		}
	}
	return m
}

func (m *Manager) register(p Provider) {
	m.providers[p.Name()] = p
	m.stats[p.Name()] = &ProviderStats{}
	m.circuitBreakers[p.Name()] = &CircuitBreaker{
		State:     CircuitBreakerClosed,
		Threshold: m.config.CircuitBreakerThreshold,
	}
}

// Generate runs a completion on the primary provider, falling back in order
func (m *Manager) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	resp, err := m.generateWithProvider(ctx, m.primaryProvider, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.recordFailure(m.primaryProvider)

	if m.config.FallbackEnabled {
		for _, name := range m.fallbackOrder {
			if name == m.primaryProvider || !m.isProviderAvailable(name) {
				continue
			}
			resp, fbErr := m.generateWithProvider(ctx, name, req)
			if fbErr == nil {
				return resp, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.recordFailure(name)
		}
	}

	return nil, fmt.Errorf("all providers failed, primary error: %w", err)
}

// Embed computes embeddings via the primary provider, falling back in order
func (m *Manager) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	names := append([]string{m.primaryProvider}, m.fallbackOrder...)
	var lastErr error
	for _, name := range names {
		if !m.isProviderAvailable(name) {
			continue
		}
		out, err := m.providers[name].Embed(ctx, inputs)
		if err == nil {
			m.updateCircuitBreaker(name, true)
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.updateCircuitBreaker(name, false)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no embedding provider available")
	}
	return nil, lastErr
}

func (m *Manager) generateWithProvider(ctx context.Context, name string, req *GenerationRequest) (*GenerationResponse, error) {
	if !m.isCircuitBreakerClosed(name) {
		return nil, fmt.Errorf("circuit breaker open for provider: %s", name)
	}
	provider, exists := m.providers[name]
	if !exists {
		return nil, fmt.Errorf("provider not found: %s", name)
	}

	if req.Timeout == 0 {
		req.Timeout = m.config.DefaultTimeout
	}

	resp, err := provider.Generate(ctx, req)
	if err != nil {
		m.updateCircuitBreaker(name, false)
		return nil, err
	}

	m.updateCircuitBreaker(name, true)
	m.recordSuccess(name, resp)
	return resp, nil
}

// IsHealthy reports whether the primary provider is reachable
func (m *Manager) IsHealthy(ctx context.Context) bool {
	m.mu.RLock()
	p, exists := m.providers[m.primaryProvider]
	m.mu.RUnlock()
	return exists && p.IsHealthy(ctx)
}

// Stats returns a snapshot of per-provider usage
func (m *Manager) Stats() map[string]ProviderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]ProviderStats, len(m.stats))
	for name, s := range m.stats {
		out[name] = *s
	}
	return out
}

func (m *Manager) recordSuccess(name string, resp *GenerationResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[name]
	s.TotalRequests++
	s.SuccessfulRequests++
	s.TotalTokens += int64(resp.PromptTokens + resp.OutputTokens)
	s.LastUsed = time.Now()
	if s.TotalRequests > 0 {
		s.ErrorRate = float64(s.FailedRequests) / float64(s.TotalRequests)
	}
	if s.TotalRequests == 1 {
		s.AverageLatency = resp.Latency
	} else {
		s.AverageLatency = (s.AverageLatency + resp.Latency) / 2
	}
}

func (m *Manager) recordFailure(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[name]
	if !ok {
		return
	}
	s.TotalRequests++
	s.FailedRequests++
	if s.TotalRequests > 0 {
		s.ErrorRate = float64(s.FailedRequests) / float64(s.TotalRequests)
	}
}

func (m *Manager) isProviderAvailable(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.providers[name]
	return exists && m.breakerClosedLocked(name)
}

func (m *Manager) isCircuitBreakerClosed(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakerClosedLocked(name)
}

func (m *Manager) breakerClosedLocked(name string) bool {
	cb, exists := m.circuitBreakers[name]
	if !exists {
		return true
	}
	switch cb.State {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerHalfOpen:
		return time.Now().After(cb.NextRetryTime)
	case CircuitBreakerOpen:
		if time.Now().After(cb.NextRetryTime) {
			cb.State = CircuitBreakerHalfOpen
			return true
		}
		return false
	}
	return false
}

func (m *Manager) updateCircuitBreaker(name string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cb, exists := m.circuitBreakers[name]
	if !exists {
		return
	}
	if success {
		cb.FailureCount = 0
		cb.State = CircuitBreakerClosed
		return
	}
	cb.FailureCount++
	cb.LastFailureTime = time.Now()
	if cb.FailureCount >= cb.Threshold {
		cb.State = CircuitBreakerOpen
		cb.NextRetryTime = time.Now().Add(30 * time.Second)
		if m.log != nil {
			m.log.Warn("provider circuit breaker opened", zap.String("provider", name))
		}
	}
}
