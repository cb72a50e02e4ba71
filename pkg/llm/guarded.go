package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/retry"
)

// GuardedClient decorates an LLMClient with a circuit breaker and retries
// for transient failures. Canceled and permanent errors are not retried.
type GuardedClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
	retry   *retry.Config
	logger  *zap.Logger
}

// NewGuardedClient wraps inner. A nil retryCfg uses retry.ProviderConfig.
func NewGuardedClient(inner LLMClient, breaker *CircuitBreaker, retryCfg *retry.Config, logger *zap.Logger) *GuardedClient {
	if retryCfg == nil {
		retryCfg = retry.ProviderConfig()
	}
	return &GuardedClient{
		inner:   inner,
		breaker: breaker,
		retry:   retryCfg,
		logger:  logger.Named("llm-guard"),
	}
}

// GenerateResponse implements LLMClient.
func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	if ok, err := g.breaker.Allow(); !ok {
		return nil, err
	}

	res, err := retry.DoWithResult(ctx, g.retry, func() (*GenerateResponseResult, error) {
		r, err := g.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
		if err != nil {
			g.logger.Warn("LLM attempt failed",
				zap.String("model", g.inner.GetModel()),
				zap.String("error_type", string(GetErrorType(err))),
				zap.Bool("retryable", IsRetryable(err)))
		}
		return r, err
	})
	if err != nil {
		if GetErrorType(err) != ErrorTypeCanceled {
			g.breaker.RecordFailure()
		}
		return nil, err
	}

	g.breaker.RecordSuccess()
	return res, nil
}

// GetModel implements LLMClient.
func (g *GuardedClient) GetModel() string {
	return g.inner.GetModel()
}

// GetEndpoint implements LLMClient.
func (g *GuardedClient) GetEndpoint() string {
	return g.inner.GetEndpoint()
}

// CircuitState exposes the breaker state for health reporting.
func (g *GuardedClient) CircuitState() CircuitState {
	return g.breaker.State()
}
