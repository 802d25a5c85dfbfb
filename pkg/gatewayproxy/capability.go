package gatewayproxy

import (
	"net/http"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/upstream"
)

// capability bundles the per-provider behavior the pipeline needs:
// how to set the upstream auth header when the ProviderType carries no
// explicit template, and which token mappings to fall back to when it
// carries none. Resolved by ProviderType.Name; unknown names get the
// generic capability (standard bearer auth, OpenAI-shaped usage).
type capability struct {
	setAuthHeader        func(h http.Header, secret, projectID string)
	defaultTokenMappings map[string]gatewaydb.TokenMapping
}

func bearerAuth(h http.Header, secret, _ string) {
	h.Set("Authorization", "Bearer "+secret)
}

func direct(path string) gatewaydb.TokenMapping {
	return gatewaydb.TokenMapping{Kind: "direct", Path: path}
}

var genericCapability = &capability{
	setAuthHeader: bearerAuth,
	defaultTokenMappings: map[string]gatewaydb.TokenMapping{
		"prompt_tokens":     direct("usage.prompt_tokens"),
		"completion_tokens": direct("usage.completion_tokens"),
		"total_tokens":      direct("usage.total_tokens"),
	},
}

var capabilities = map[string]*capability{
	"openai": genericCapability,

	"anthropic": {
		setAuthHeader: func(h http.Header, secret, _ string) {
			h.Set("x-api-key", secret)
			h.Set("anthropic-version", "2023-06-01")
		},
		defaultTokenMappings: map[string]gatewaydb.TokenMapping{
			"prompt_tokens":       direct("usage.input_tokens"),
			"completion_tokens":   direct("usage.output_tokens"),
			"cache_create_tokens": direct("usage.cache_creation_input_tokens"),
			"cache_read_tokens":   direct("usage.cache_read_input_tokens"),
		},
	},

	"gemini": {
		setAuthHeader: func(h http.Header, secret, _ string) {
			h.Set("x-goog-api-key", secret)
		},
		defaultTokenMappings: map[string]gatewaydb.TokenMapping{
			"prompt_tokens":     direct("usageMetadata.promptTokenCount"),
			"completion_tokens": direct("usageMetadata.candidatesTokenCount"),
			"total_tokens":      direct("usageMetadata.totalTokenCount"),
		},
	},
}

// capabilityFor resolves a ProviderType's capability by name, falling
// back to the generic one for user-defined providers.
func capabilityFor(name string) *capability {
	if c, ok := capabilities[name]; ok {
		return c
	}
	return genericCapability
}

// applyProviderAuth sets the upstream auth header(s): an explicit
// AuthHeaderTemplate wins, otherwise the provider capability decides.
// The template names its own header ("x-api-key: {key}") or defaults
// to Authorization for a bare value format ("Bearer {key}").
func applyProviderAuth(h http.Header, pt *gatewaydb.ProviderType, secret, projectID string) {
	if pt.AuthHeaderTemplate != "" {
		name, valueFormat := upstream.SplitAuthHeaderTemplate(pt.AuthHeaderTemplate)
		h.Set(name, upstream.RenderAuthHeader(valueFormat, secret, projectID))
		return
	}
	capabilityFor(pt.Name).setAuthHeader(h, secret, projectID)
}

// tokenMappingsFor returns the ProviderType's configured mappings, or
// the capability defaults when none are configured.
func tokenMappingsFor(pt *gatewaydb.ProviderType) map[string]gatewaydb.TokenMapping {
	if len(pt.TokenMappings) > 0 {
		return pt.TokenMappings
	}
	return capabilityFor(pt.Name).defaultTokenMappings
}
