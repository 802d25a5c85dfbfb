// Package ratelimit implements the quota primitives behind the
// gateway's two throttling points: the per-ServiceAPI request limit
// enforced by the auth resolver, and the per-ProviderKey quotas
// enforced during credential selection.
//
// Two primitives compose into a Limiter:
//
//   - TokenBucket: lazily refilled burst-plus-average limiting for
//     request counts.
//   - SlidingWindow: a bucketed rolling sum for observed prompt-token
//     usage, which is only known after a response completes.
//
// Request checks consume eagerly (Take); token checks are read-only
// (CheckTokens) with usage credited afterwards (RecordTokens), because
// a request's true token cost is extracted from the provider's
// response body, not known up front.
//
// All types are safe for concurrent use.
package ratelimit
