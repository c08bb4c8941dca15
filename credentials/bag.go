// Package credentials resolves which credential a provider call should use and
// validates credential formats without ever retaining the secret itself.
package credentials

import (
	"context"
	"strings"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

// Bag maps frontend key names (OPENROUTER_API_KEY, LMSTUDIO_BASE_URL, ...) to
// caller supplied credential values. A Bag is per request and never persisted.
type Bag map[string]string

// MapFrontendToProvider normalises a raw key map: values are trimmed and
// empty or whitespace-only entries are dropped.
func MapFrontendToProvider(raw map[string]string) Bag {
	out := make(Bag, len(raw))
	for k, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}

// Get returns the trimmed credential for p, or "" when absent.
func (b Bag) Get(p provider.Provider) string {
	if b == nil || !p.Valid() {
		return ""
	}
	return strings.TrimSpace(b[p.KeyName()])
}

// Has reports whether the bag holds a usable credential for p.
func (b Bag) Has(p provider.Provider) bool {
	return b.Get(p) != ""
}

// HasAny reports whether the bag holds at least one non-empty value.
func (b Bag) HasAny() bool {
	for _, v := range b {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// KeyName returns the frontend key name of p.
func KeyName(p provider.Provider) string {
	return p.KeyName()
}

type ambientKey struct{}

// WithAmbient attaches a credential bag to ctx. It is consulted after BYOK and
// server-funded credentials, for runtimes that inject keys into their
// execution context rather than passing them per call.
func WithAmbient(ctx context.Context, bag Bag) context.Context {
	return context.WithValue(ctx, ambientKey{}, MapFrontendToProvider(bag))
}

// AmbientFrom returns the bag attached by WithAmbient, if any.
func AmbientFrom(ctx context.Context) Bag {
	if ctx == nil {
		return nil
	}
	bag, _ := ctx.Value(ambientKey{}).(Bag)
	return bag
}
