// Package middleware assembles the interceptor chain wrapped around every
// model handle: caller-supplied middleware first, then logging, caching and
// guardrails.
package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

// Config selects the interceptors for a model handle.
type Config struct {
	EnableLogging    bool             `yaml:"enable_logging"`
	EnableCaching    bool             `yaml:"enable_caching"`
	EnableGuardrails bool             `yaml:"enable_guardrails"`
	Custom           []llm.Middleware `yaml:"-"`
}

// Presets.
var (
	Development = Config{EnableLogging: true}
	Production  = Config{EnableLogging: true, EnableCaching: true, EnableGuardrails: true}
	Performance = Config{EnableCaching: true}
	Privacy     = Config{EnableGuardrails: true}
)

// Preset returns the named preset. The empty name selects no middleware.
func Preset(name string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "development":
		cfg = Development
	case "production":
		cfg = Production
	case "performance":
		cfg = Performance
	case "privacy":
		cfg = Privacy
	default:
		return nil, fmt.Errorf("unknown middleware preset: %q", name)
	}
	return &cfg, nil
}

// ComposerOptions configure the shared state of a Composer.
type ComposerOptions struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Composer builds middleware lists. The response cache and the guardrails
// are shared by every handle it wraps.
type Composer struct {
	cache      *Cache
	guardrails *Guardrails
	logger     zerolog.Logger
}

// NewComposer creates a Composer.
func NewComposer(opts ComposerOptions, logger zerolog.Logger) *Composer {
	return &Composer{
		cache:      NewCache(opts.CacheSize, opts.CacheTTL, logger),
		guardrails: NewGuardrails(),
		logger:     logger,
	}
}

// Cache returns the shared response cache.
func (c *Composer) Cache() *Cache {
	return c.cache
}

// ForContext returns the middleware for model under cfg in the order custom,
// logging, caching, guardrails. A nil cfg yields no middleware.
func (c *Composer) ForContext(model string, cfg *Config) []llm.Middleware {
	if cfg == nil {
		return nil
	}

	chain := make([]llm.Middleware, 0, len(cfg.Custom)+3)
	for _, mw := range cfg.Custom {
		if mw != nil {
			chain = append(chain, mw)
		}
	}
	if cfg.EnableLogging {
		chain = append(chain, NewLogging(c.logger, model))
	}
	if cfg.EnableCaching {
		chain = append(chain, c.cache)
	}
	if cfg.EnableGuardrails {
		chain = append(chain, c.guardrails)
	}
	return chain
}

// Wrap wraps client with the middleware for model under cfg.
func (c *Composer) Wrap(client llm.Client, model string, cfg *Config) llm.Client {
	return llm.WrapWithMiddleware(client, c.ForContext(model, cfg)...)
}
