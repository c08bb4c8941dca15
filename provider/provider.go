// Package provider defines the closed set of LLM vendors the gateway can talk to
// and the static metadata every other layer needs about them.
//
// All per-provider facts live in one table so adding a provider touches only
// this file.
package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// Provider identifies an LLM vendor.
type Provider uint8

const (
	Unknown Provider = iota
	OpenAI
	Anthropic
	Together
	Google
	Fireworks
	XAI
	OpenRouter
	LMStudio
	Ollama

	count
)

// CredentialKind describes what a provider's credential is.
type CredentialKind string

const (
	CredentialAPIKey  CredentialKind = "api_key"
	CredentialBaseURL CredentialKind = "base_url"
)

// Info holds the static metadata of a provider.
type Info struct {
	ID             string
	KeyName        string
	Kind           CredentialKind
	DisplayName    string
	SetupURL       string
	MinLength      int
	Pattern        *regexp.Regexp // nil for base_url providers
	ExpectedFormat string
	FormatGuidance string
}

var table = [count]Info{
	OpenAI: {
		ID:             "openai",
		KeyName:        "OPENAI_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "OpenAI",
		SetupURL:       "https://platform.openai.com/api-keys",
		MinLength:      20,
		Pattern:        regexp.MustCompile(`^sk-[a-zA-Z0-9]{20,100}$`),
		ExpectedFormat: "sk-... (starts with 'sk-', followed by 20+ characters)",
		FormatGuidance: "OpenAI API keys start with 'sk-' followed by 48+ characters",
	},
	Anthropic: {
		ID:             "anthropic",
		KeyName:        "ANTHROPIC_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "Anthropic Claude",
		SetupURL:       "https://console.anthropic.com/",
		MinLength:      95,
		Pattern:        regexp.MustCompile(`^sk-ant-[a-zA-Z0-9_-]{95,200}$`),
		ExpectedFormat: "sk-ant-... (starts with 'sk-ant-', followed by 95+ characters)",
		FormatGuidance: "Anthropic API keys start with 'sk-ant-' followed by 95+ characters",
	},
	Together: {
		ID:             "together",
		KeyName:        "TOGETHER_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "Together AI",
		SetupURL:       "https://api.together.xyz/",
		MinLength:      64,
		Pattern:        regexp.MustCompile(`^[a-f0-9]{64}$`),
		ExpectedFormat: "64-character hexadecimal string",
		FormatGuidance: "Together AI API keys are 64-character hexadecimal strings",
	},
	Google: {
		ID:             "google",
		KeyName:        "GEMINI_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "Google Gemini",
		SetupURL:       "https://ai.google.dev/api",
		MinLength:      39,
		Pattern:        regexp.MustCompile(`^[a-zA-Z0-9_-]{39}$`),
		ExpectedFormat: "39-character alphanumeric string",
		FormatGuidance: "Google API keys start with 'AIza' and are 39 characters long",
	},
	Fireworks: {
		ID:             "fireworks",
		KeyName:        "FIREWORKS_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "Fireworks AI",
		SetupURL:       "https://app.fireworks.ai/",
		MinLength:      32,
		Pattern:        regexp.MustCompile(`^[a-zA-Z0-9]{32,100}$`),
		ExpectedFormat: "32+ character alphanumeric string",
		FormatGuidance: "Fireworks API keys are 32+ character alphanumeric strings",
	},
	XAI: {
		ID:             "xai",
		KeyName:        "XAI_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "xAI Grok",
		SetupURL:       "https://x.ai/api",
		MinLength:      32,
		Pattern:        regexp.MustCompile(`^xai-[a-zA-Z0-9]{32,100}$`),
		ExpectedFormat: "xai-... (starts with 'xai-', followed by 32+ characters)",
		FormatGuidance: "xAI API keys start with 'xai-' followed by 32+ characters",
	},
	OpenRouter: {
		ID:             "openrouter",
		KeyName:        "OPENROUTER_API_KEY",
		Kind:           CredentialAPIKey,
		DisplayName:    "OpenRouter",
		SetupURL:       "https://openrouter.ai/keys",
		MinLength:      64,
		Pattern:        regexp.MustCompile(`^sk-or-v1-[a-f0-9]{64}$`),
		ExpectedFormat: "sk-or-v1-... (starts with 'sk-or-v1-', followed by 64-character hex)",
		FormatGuidance: "OpenRouter API keys start with 'sk-or-v1-' followed by 64 hex characters",
	},
	LMStudio: {
		ID:             "lmstudio",
		KeyName:        "LMSTUDIO_BASE_URL",
		Kind:           CredentialBaseURL,
		DisplayName:    "LM Studio",
		SetupURL:       "https://lmstudio.ai/",
		MinLength:      10,
		ExpectedFormat: "HTTP/HTTPS URL (e.g., http://localhost:1234)",
		FormatGuidance: "LM Studio base URLs are HTTP/HTTPS URLs such as http://localhost:1234",
	},
	Ollama: {
		ID:             "ollama",
		KeyName:        "OLLAMA_BASE_URL",
		Kind:           CredentialBaseURL,
		DisplayName:    "Ollama",
		SetupURL:       "https://ollama.com/download",
		MinLength:      10,
		ExpectedFormat: "HTTP/HTTPS URL (e.g., http://127.0.0.1:11434)",
		FormatGuidance: "Ollama base URLs are HTTP/HTTPS URLs such as http://127.0.0.1:11434",
	},
}

// All returns every known provider in declaration order.
func All() []Provider {
	out := make([]Provider, 0, int(count)-1)
	for p := OpenAI; p < count; p++ {
		out = append(out, p)
	}
	return out
}

// Parse maps a provider id such as "openrouter" to its Provider.
func Parse(id string) (Provider, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range All() {
		if table[p].ID == id {
			return p, nil
		}
	}
	return Unknown, fmt.Errorf("unknown provider: %q", id)
}

// Valid reports whether p is a member of the enum.
func (p Provider) Valid() bool {
	return p > Unknown && p < count
}

// Info returns the static metadata of p. The zero Info is returned for
// invalid providers.
func (p Provider) Info() Info {
	if !p.Valid() {
		return Info{}
	}
	return table[p]
}

func (p Provider) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return table[p].ID
}

// KeyName is the frontend credential bag key for p.
func (p Provider) KeyName() string { return p.Info().KeyName }

// DisplayName is the user-facing name of p.
func (p Provider) DisplayName() string { return p.Info().DisplayName }

// SetupURL is where users obtain a credential for p.
func (p Provider) SetupURL() string { return p.Info().SetupURL }

// IsLocal reports whether p is addressed by base URL instead of an API key.
func (p Provider) IsLocal() bool { return p.Info().Kind == CredentialBaseURL }

// MissingKeyMessage is the error text returned when no credential could be
// resolved for p.
func (p Provider) MissingKeyMessage() string {
	switch p {
	case Google:
		return "Gemini API key required. Please add your API key in Settings → API Keys → Google Gemini. Get a free key at https://ai.google.dev/api"
	case XAI:
		return "xAI Grok API key required. Please add your API key in Settings → API Keys → xAI. Get a key at https://x.ai/api"
	case Anthropic:
		return "Anthropic API key required. Please add your API key in Settings → API Keys → Anthropic. Get a key at https://console.anthropic.com/"
	case OpenAI, Together, Fireworks, OpenRouter, LMStudio, Ollama:
		info := p.Info()
		return fmt.Sprintf("%s API key required. Please add your API key in Settings → API Keys → %s. Get a key at %s",
			info.DisplayName, info.DisplayName, info.SetupURL)
	default:
		return "API key required for this model. Please add your API key in Settings → API Keys. Check the model provider documentation for instructions."
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Provider) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Provider) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
