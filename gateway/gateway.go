// Package gateway is the entry point of llmgate. It resolves a logical model
// id into a ready-to-call client and runs text generation on top of it.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/aschepis/backscratcher/llmgate/catalog"
	"github.com/aschepis/backscratcher/llmgate/credentials"
	"github.com/aschepis/backscratcher/llmgate/factory"
	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/middleware"
	"github.com/aschepis/backscratcher/llmgate/provider"
	"github.com/aschepis/backscratcher/llmgate/providererrors"
	"github.com/aschepis/backscratcher/llmgate/quota"
)

const (
	DefaultResultCacheSize = 256
	DefaultResultCacheTTL  = 5 * time.Minute
)

// Config holds the optional collaborators of a Gateway.
type Config struct {
	// Composer builds the middleware chains. When nil only the middleware
	// passed in a ModelRequest is applied.
	Composer *middleware.Composer
	// Quota meters quota-tracked features. When nil nothing is metered.
	Quota quota.Consumer

	ResultCacheSize int
	ResultCacheTTL  time.Duration
}

// Gateway serves model handles and text generation.
type Gateway struct {
	factory  *factory.Factory
	resolver *credentials.Resolver
	composer *middleware.Composer
	quota    quota.Consumer

	results  *expirable.LRU[string, string]
	inflight singleflight.Group

	logger zerolog.Logger
}

// New creates a Gateway.
func New(f *factory.Factory, resolver *credentials.Resolver, cfg Config, logger zerolog.Logger) *Gateway {
	size := cfg.ResultCacheSize
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	ttl := cfg.ResultCacheTTL
	if ttl <= 0 {
		ttl = DefaultResultCacheTTL
	}
	return &Gateway{
		factory:  f,
		resolver: resolver,
		composer: cfg.Composer,
		quota:    cfg.Quota,
		results:  expirable.NewLRU[string, string](size, nil, ttl),
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// ModelRequest carries the per-handle options of GetLanguageModel.
type ModelRequest struct {
	// Middleware runs ahead of the configured chain.
	Middleware          llm.Middleware
	Credentials         credentials.Bag
	SearchGrounding     bool
	CachedContent       string
	InterleavedThinking bool
	Privileged          bool
	MiddlewareConfig    *middleware.Config
}

// GetLanguageModel returns a client for the logical model id, with
// credentials resolved and middleware attached. Failures are returned as
// *llm.Error.
func (g *Gateway) GetLanguageModel(ctx context.Context, id string, req ModelRequest) (llm.Client, error) {
	m, ok := catalog.Lookup(id)
	if !ok {
		g.logger.Error().Str("model", id).Msg("Model not found")
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: fmt.Sprintf("Model %s not found", id)}
	}

	g.logger.Info().
		Str("model", m.ID).
		Str("provider", m.Provider.String()).
		Bool("has_byok", req.Credentials.HasAny()).
		Bool("search_grounding", req.SearchGrounding).
		Bool("cached_content", req.CachedContent != "").
		Bool("has_middleware", req.Middleware != nil).
		Msg("Getting language model")

	mf, err := g.factory.Create(ctx, m.Provider, factory.Options{
		Bag:                 req.Credentials,
		FreeModel:           m.IsFreeTier,
		InterleavedThinking: req.InterleavedThinking,
		Privileged:          req.Privileged,
	})
	if err != nil {
		return nil, providererrors.Translate(err, m.Provider)
	}

	var opts factory.ModelOptions
	if m.Provider == provider.Google {
		opts = factory.ModelOptions{SearchGrounding: req.SearchGrounding, CachedContent: req.CachedContent}
	}
	client, err := mf.Model(m.ID, opts)
	if err != nil {
		return nil, providererrors.Translate(err, m.Provider)
	}

	return g.wrap(client, m.ID, req), nil
}

func (g *Gateway) wrap(client llm.Client, model string, req ModelRequest) llm.Client {
	if g.composer == nil || req.MiddlewareConfig == nil {
		return llm.WrapWithMiddleware(client, req.Middleware)
	}
	cfg := *req.MiddlewareConfig
	if req.Middleware != nil {
		cfg.Custom = append([]llm.Middleware{req.Middleware}, cfg.Custom...)
	}
	return g.composer.Wrap(client, model, &cfg)
}
