package llm

import (
	"context"

	"go.uber.org/zap"
)

// Gateway fronts a provider with the response cache and the shared rate
// limiter. A cache hit returns without touching the network and without
// charging the limiter; a miss is admitted, completed, then written back.
type Gateway struct {
	provider Provider
	cache    *Cache
	limiter  *RateLimiter
	logger   *zap.Logger
}

func NewGateway(provider Provider, cache *Cache, limiter *RateLimiter, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{provider: provider, cache: cache, limiter: limiter, logger: logger}
}

// ProviderID names the underlying provider; it participates in cache keys.
func (g *Gateway) ProviderID() string { return g.provider.ID() }

// Complete resolves the request through cache → limiter → provider. The
// gateway performs no retries; provider failures surface as *Error.
func (g *Gateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Model.Provider == "" {
		req.Model.Provider = g.provider.ID()
	}

	var key string
	if g.cache != nil {
		key = g.cache.Key(req)
		if resp, ok := g.cache.Get(req.Model.Name, key); ok {
			g.logger.Debug("llm cache hit", zap.String("model", req.Model.Name), zap.String("key", key))
			return resp, nil
		}
	}

	cost := req.Options.MaxOutputTokens
	if cost == 0 {
		cost = req.Model.MaxOutputTokens
	}
	if cost == 0 {
		cost = DefaultTokenCost
	}
	if err := g.limiter.Admit(ctx, cost); err != nil {
		return nil, err
	}

	resp, err := g.provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Put(req.Model.Name, key, resp); err != nil {
			// A failed cache write costs a future network call, nothing more.
			g.logger.Warn("llm cache write failed", zap.String("model", req.Model.Name), zap.Error(err))
		}
	}

	g.logger.Debug("llm call completed",
		zap.String("provider", g.provider.ID()),
		zap.String("model", req.Model.Name),
		zap.Int("totalTokens", resp.Usage.TotalTokens))

	return resp, nil
}
