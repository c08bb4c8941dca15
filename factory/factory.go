// Package factory builds vendor clients for a provider from a resolved
// credential. Every provider-specific transport quirk lives here.
package factory

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/credentials"
	"github.com/aschepis/backscratcher/llmgate/llm"
	"github.com/aschepis/backscratcher/llmgate/llm/anthropic"
	"github.com/aschepis/backscratcher/llmgate/llm/gemini"
	"github.com/aschepis/backscratcher/llmgate/llm/ollama"
	"github.com/aschepis/backscratcher/llmgate/llm/openai"
	"github.com/aschepis/backscratcher/llmgate/provider"
)

// Base URLs of the OpenAI-compatible vendors.
const (
	TogetherBaseURL   = "https://api.together.xyz/v1"
	FireworksBaseURL  = "https://api.fireworks.ai/inference/v1"
	XAIBaseURL        = "https://api.x.ai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	DefaultLMStudioURL = "http://localhost:1234"
	DefaultOllamaURL   = "http://127.0.0.1:11434"

	lmStudioAPIKey = "not-required"
)

var (
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
	localHosts    = map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true, "0.0.0.0": true}
)

// Config holds deployment-level factory settings.
type Config struct {
	// AllowRemoteLMStudio disables the loopback-only check on LM Studio URLs.
	AllowRemoteLMStudio bool
	// HTTPClient is used by transports that accept one.
	HTTPClient *http.Client
	// BaseURLs overrides vendor endpoints, keyed by provider.
	BaseURLs map[provider.Provider]string
}

// Options select the credential policy for one Create call.
type Options struct {
	Bag                 credentials.Bag
	FreeModel           bool
	InterleavedThinking bool
	Privileged          bool
}

// ModelOptions are per-model transport options.
type ModelOptions struct {
	SearchGrounding bool
	CachedContent   string
}

// Factory creates ModelFactory values for providers.
type Factory struct {
	resolver  *credentials.Resolver
	validator *credentials.Validator
	cfg       Config
	logger    zerolog.Logger
}

// New creates a Factory.
func New(resolver *credentials.Resolver, validator *credentials.Validator, cfg Config, logger zerolog.Logger) *Factory {
	return &Factory{
		resolver:  resolver,
		validator: validator,
		cfg:       cfg,
		logger:    logger.With().Str("component", "provider_factory").Logger(),
	}
}

// ModelFactory produces clients bound to model ids of a single provider.
type ModelFactory struct {
	ctx                 context.Context
	provider            provider.Provider
	credential          string
	interleavedThinking bool
	cfg                 Config
	logger              zerolog.Logger
}

// Create resolves the credential for p and returns a ModelFactory for it.
//
// It fails before any network call with a MissingCredential error when no
// credential resolves, and with an InvalidCredentialFormat error when a
// caller-supplied credential does not match the provider's format.
func (f *Factory) Create(ctx context.Context, p provider.Provider, opts Options) (*ModelFactory, error) {
	if !p.Valid() {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: fmt.Sprintf("unsupported provider: %s", p)}
	}

	credential := f.resolver.Resolve(ctx, p, opts.Bag, opts.Privileged, opts.FreeModel)

	f.logger.Info().
		Str("provider", p.String()).
		Bool("free_model", opts.FreeModel).
		Bool("has_credential", credential != "").
		Bool("has_byok", opts.Bag.HasAny()).
		Int("credential_length", len(credential)).
		Msg("Creating provider instance")

	switch {
	case credential == "" && !p.IsLocal():
		return nil, llm.NewMissingCredentialError(p)
	case credential != "" && opts.Bag.Has(p) && f.validator != nil:
		if res := f.validator.ValidateFormat(p, credential); !res.Valid {
			return nil, &llm.Error{
				Type:            llm.ErrorTypeInvalidCredentialFormat,
				Message:         fmt.Sprintf("%s. Expected format: %s", res.Error, res.ExpectedFormat),
				Provider:        p,
				Code:            "INVALID_API_KEY_FORMAT",
				SuggestedAction: fmt.Sprintf("Check your key in Settings → API Keys → %s. Get a key at %s", p.DisplayName(), p.SetupURL()),
			}
		}
	}

	return &ModelFactory{
		ctx:                 ctx,
		provider:            p,
		credential:          credential,
		interleavedThinking: opts.InterleavedThinking,
		cfg:                 f.cfg,
		logger:              f.logger,
	}, nil
}

// Provider returns the provider the factory was created for.
func (m *ModelFactory) Provider() provider.Provider {
	return m.provider
}

// Model returns a client bound to model id.
func (m *ModelFactory) Model(id string, opts ModelOptions) (llm.Client, error) {
	client, err := m.newClient(opts)
	if err != nil {
		return nil, err
	}
	return Bind(client, id), nil
}

func (m *ModelFactory) baseURL(def string) string {
	if u := m.cfg.BaseURLs[m.provider]; u != "" {
		return u
	}
	return def
}

func (m *ModelFactory) newClient(opts ModelOptions) (llm.Client, error) {
	switch m.provider {
	case provider.OpenAI:
		return openai.NewOpenAIClient(m.provider, m.credential, m.baseURL(""), m.logger)
	case provider.Together:
		return openai.NewOpenAIClient(m.provider, m.credential, m.baseURL(TogetherBaseURL), m.logger)
	case provider.Fireworks:
		return openai.NewOpenAIClient(m.provider, m.credential, m.baseURL(FireworksBaseURL), m.logger)
	case provider.XAI:
		return openai.NewOpenAIClient(m.provider, m.credential, m.baseURL(XAIBaseURL), m.logger)
	case provider.OpenRouter:
		return openai.NewOpenAIClient(m.provider, m.credential, m.baseURL(OpenRouterBaseURL), m.logger)
	case provider.Anthropic:
		return anthropic.NewAnthropicClient(m.credential, anthropic.Options{
			InterleavedThinking: m.interleavedThinking,
			BaseURL:             m.baseURL(""),
		}, m.logger)
	case provider.Google:
		return gemini.NewGeminiClient(m.ctx, m.credential, gemini.Options{
			SearchGrounding: opts.SearchGrounding,
			CachedContent:   opts.CachedContent,
			BaseURL:         m.baseURL(""),
		}, m.logger)
	case provider.LMStudio:
		base, err := LMStudioBaseURL(m.credential, m.cfg.AllowRemoteLMStudio)
		if err != nil {
			return nil, err
		}
		return openai.NewOpenAIClient(m.provider, lmStudioAPIKey, base, m.logger)
	case provider.Ollama:
		host := m.credential
		if host == "" {
			host = DefaultOllamaURL
		}
		return ollama.NewOllamaClient(host, m.cfg.HTTPClient)
	default:
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: fmt.Sprintf("unsupported provider: %s", m.provider)}
	}
}

// LMStudioBaseURL normalises an LM Studio address into its OpenAI-compatible
// endpoint. Hosts other than loopback are rejected unless allowRemote is set.
func LMStudioBaseURL(raw string, allowRemote bool) (string, error) {
	if raw == "" {
		raw = DefaultLMStudioURL
	}
	if !schemePattern.MatchString(raw) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", &llm.Error{
			Type:     llm.ErrorTypeInvalidCredentialFormat,
			Message:  fmt.Sprintf("invalid LM Studio base URL: %q", raw),
			Provider: provider.LMStudio,
		}
	}
	if !localHosts[u.Hostname()] && !allowRemote {
		return "", &llm.Error{
			Type:     llm.ErrorTypeInvalidRequest,
			Message:  "LM Studio base URL must resolve to localhost. Set ALLOW_REMOTE_LMSTUDIO=true to override.",
			Provider: provider.LMStudio,
		}
	}

	origin := u.Scheme + "://" + u.Host
	return strings.TrimRight(origin, "/") + "/v1", nil
}

type boundClient struct {
	client llm.Client
	model  string
}

// Bind returns a client that fills in model on requests that name none.
func Bind(client llm.Client, model string) llm.Client {
	return &boundClient{client: client, model: model}
}

func (b *boundClient) withModel(req *llm.Request) *llm.Request {
	if req == nil || req.Model != "" {
		return req
	}
	c := req.Clone()
	c.Model = b.model
	return c
}

func (b *boundClient) Synchronous(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return b.client.Synchronous(ctx, b.withModel(req))
}

func (b *boundClient) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	return b.client.Stream(ctx, b.withModel(req))
}
