package credentials

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

const (
	// DefaultValidationCacheSize bounds the number of cached validation results.
	DefaultValidationCacheSize = 1000

	cachePrefixLength = 10
)

// ValidationResult is the outcome of a credential format check. It never
// contains the credential itself.
type ValidationResult struct {
	Valid          bool              `json:"isValid"`
	Provider       provider.Provider `json:"provider"`
	HasKey         bool              `json:"hasApiKey"`
	KeyLength      int               `json:"keyLength,omitempty"`
	Error          string            `json:"error,omitempty"`
	ExpectedFormat string            `json:"expectedFormat,omitempty"`
}

// Validator checks credential formats and caches the results.
type Validator struct {
	cache  *lru.Cache[string, ValidationResult]
	logger zerolog.Logger
}

// NewValidator creates a Validator whose cache holds at most size entries.
func NewValidator(size int, logger zerolog.Logger) (*Validator, error) {
	if size <= 0 {
		size = DefaultValidationCacheSize
	}
	cache, err := lru.New[string, ValidationResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create validation cache: %w", err)
	}
	return &Validator{
		cache:  cache,
		logger: logger.With().Str("component", "credential_validator").Logger(),
	}, nil
}

// cacheKey derives the cache key from the provider, the key length and a
// short prefix. The full secret is never part of the key.
func cacheKey(p provider.Provider, key string) string {
	prefix := key
	if len(prefix) > cachePrefixLength {
		prefix = prefix[:cachePrefixLength]
	}
	return fmt.Sprintf("%s:%d:%s", p, len(key), prefix)
}

// ValidateFormat checks key against the format rule of p.
func (v *Validator) ValidateFormat(p provider.Provider, key string) ValidationResult {
	key = strings.TrimSpace(key)
	ck := cacheKey(p, key)

	// Peek keeps insertion order intact so eviction stays first-in first-out.
	if res, ok := v.cache.Peek(ck); ok {
		return res
	}

	res := validate(p, key)
	v.cache.Add(ck, res)
	return res
}

// ValidateProviderKey validates the credential bag entry for p.
func (v *Validator) ValidateProviderKey(p provider.Provider, bag Bag) ValidationResult {
	if !p.Valid() {
		return ValidationResult{Provider: p, Error: fmt.Sprintf("No key mapping found for provider: %s", p)}
	}
	key := bag.Get(p)
	if key == "" {
		return ValidationResult{
			Provider:       p,
			Error:          fmt.Sprintf("Missing API key for %s. Expected key: %s", p, p.KeyName()),
			ExpectedFormat: p.Info().ExpectedFormat,
		}
	}
	return v.ValidateFormat(p, key)
}

// AvailableProviders returns the providers whose bag entry passes validation.
func (v *Validator) AvailableProviders(bag Bag) []provider.Provider {
	available := lo.Filter(provider.All(), func(p provider.Provider, _ int) bool {
		return v.ValidateProviderKey(p, bag).Valid
	})
	v.logger.Debug().
		Int("total_providers", len(provider.All())).
		Int("available_count", len(available)).
		Strs("available_providers", lo.Map(available, func(p provider.Provider, _ int) string { return p.String() })).
		Msg("Available providers determined")
	return available
}

func validate(p provider.Provider, key string) ValidationResult {
	info := p.Info()
	if !p.Valid() {
		return ValidationResult{Provider: p, HasKey: key != "", KeyLength: len(key), Error: "Unknown provider"}
	}

	invalid := func(msg string) ValidationResult {
		return ValidationResult{
			Provider:       p,
			HasKey:         true,
			KeyLength:      len(key),
			Error:          msg,
			ExpectedFormat: info.ExpectedFormat,
		}
	}

	if len(key) < info.MinLength {
		return invalid(fmt.Sprintf("API key too short for %s. Expected minimum %d characters, got %d", p, info.MinLength, len(key)))
	}

	if info.Kind == provider.CredentialBaseURL {
		if msg := validateBaseURL(p, key); msg != "" {
			return invalid(msg)
		}
		return ValidationResult{Valid: true, Provider: p, HasKey: true, KeyLength: len(key)}
	}

	if !info.Pattern.MatchString(key) {
		return invalid(fmt.Sprintf("Invalid API key format for %s", p))
	}
	return ValidationResult{Valid: true, Provider: p, HasKey: true, KeyLength: len(key)}
}

// validateBaseURL returns an error message, or "" when raw is an acceptable
// base URL for a local provider.
func validateBaseURL(p provider.Provider, raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("Invalid URL format for %s", p)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("Invalid protocol for %s. Must be HTTP or HTTPS", p)
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Sprintf("Invalid port number for %s. Must be between 1-65535", p)
		}
	}
	if u.Hostname() == "" {
		return fmt.Sprintf("Invalid hostname for %s", p)
	}
	return ""
}
