// Aperture Gateway is a multi-tenant reverse proxy for AI-provider APIs.
//
// It accepts client requests addressed to LLM back-ends (OpenAI,
// Anthropic, Google Gemini, and user-defined providers), authenticates
// the caller, selects a healthy upstream credential from the tenant's
// pool, forwards the request, and records per-request traces.
//
// Usage:
//
//	# Start the gateway with default configuration
//	aperture run
//
//	# Start with a custom configuration file
//	aperture run --config /path/to/config.yaml
//
//	# Validate configuration without starting
//	aperture run --dry-run
//
//	# Compute the fingerprint for a ServiceAPI credential
//	aperture keys fingerprint sk-my-inbound-token
//
//	# Show version information
//	aperture version
//
// For complete documentation, see: https://github.com/aperturegw/gateway
package main

func main() {
	Execute()
}
