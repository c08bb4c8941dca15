package credentials

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/provider"
)

// ServerCredentials supplies process-wide credentials funded by the operator.
type ServerCredentials interface {
	ServerCredential(p provider.Provider) string
}

// StaticServerCredentials is a ServerCredentials backed by a fixed map.
type StaticServerCredentials map[provider.Provider]string

// ServerCredential implements ServerCredentials.
func (s StaticServerCredentials) ServerCredential(p provider.Provider) string {
	return strings.TrimSpace(s[p])
}

// FreeProvider is the only provider allowed to fall back to a server-funded
// credential.
const FreeProvider = provider.Google

// Resolver picks the credential to use for a provider call.
type Resolver struct {
	server ServerCredentials
	logger zerolog.Logger
}

// NewResolver creates a Resolver. server may be nil when the deployment funds
// no provider.
func NewResolver(server ServerCredentials, logger zerolog.Logger) *Resolver {
	return &Resolver{server: server, logger: logger.With().Str("component", "credential_resolver").Logger()}
}

// Resolve returns the credential for p, or "" when none is available.
//
// Order: BYOK value from bag, then the server credential (FreeProvider only,
// and only for privileged callers or free-tier models), then a bag attached to
// ctx with WithAmbient.
func (r *Resolver) Resolve(ctx context.Context, p provider.Provider, bag Bag, privileged, freeModel bool) string {
	if key := bag.Get(p); key != "" {
		r.logger.Debug().Str("provider", p.String()).Str("source", "byok").Int("key_length", len(key)).Msg("Resolved credential")
		return key
	}

	if p == FreeProvider && (privileged || freeModel) && r.server != nil {
		if key := r.server.ServerCredential(p); key != "" {
			r.logger.Debug().Str("provider", p.String()).Str("source", "server").Bool("privileged", privileged).Bool("free_model", freeModel).Msg("Resolved credential")
			return key
		}
	}

	if key := AmbientFrom(ctx).Get(p); key != "" {
		r.logger.Debug().Str("provider", p.String()).Str("source", "ambient").Msg("Resolved credential")
		return key
	}

	r.logger.Debug().Str("provider", p.String()).Msg("No credential available")
	return ""
}

// HasServerCredential reports whether a server-funded credential exists for p.
func (r *Resolver) HasServerCredential(p provider.Provider) bool {
	return p == FreeProvider && r.server != nil && r.server.ServerCredential(p) != ""
}
