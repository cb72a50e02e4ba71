package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/config"
	"github.com/Nihar1310/SalesAgent-sub001/pkg/retry"
)

// NewFromConfig builds the guarded fallback client for the configured provider.
// It returns (nil, nil) when no model is configured; callers treat a nil client
// as "fallback disabled".
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	if !cfg.IsEnabled() {
		logger.Info("LLM fallback disabled (no api key or endpoint configured)")
		return nil, nil
	}

	clientCfg := &Config{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}

	var (
		inner LLMClient
		err   error
	)
	switch cfg.Provider {
	case "anthropic":
		inner, err = NewAnthropicClient(clientCfg, logger)
	case "openai", "":
		// JSON mode only against the hosted API; compatible servers vary.
		clientCfg.JSONMode = cfg.Endpoint == ""
		inner, err = NewClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	breaker := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:  cfg.CircuitThreshold,
		ResetAfter: cfg.CircuitReset,
	})
	return NewGuardedClient(inner, breaker, retry.ProviderConfig(), logger), nil
}

// PricingFromConfig returns the configured token prices.
func PricingFromConfig(cfg *config.LLMConfig) Pricing {
	return Pricing{
		InputPerMillion:  cfg.InputCostPerMillion,
		OutputPerMillion: cfg.OutputCostPerMillion,
	}
}
