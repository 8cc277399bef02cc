// Package gatecred is the credential lifecycle engine for a multi-tenant API
// gateway that proxies authentication to an external identity provider. It
// covers the two subsystems with real invariants: the fixed-window rate
// limiter guarding sensitive endpoints and the token cache that stores,
// blacklists, and invalidates issued access/refresh token pairs.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], and value types; the limiter lives under internal/ and the
// store abstraction, token cache, claims decoding, and provider client live
// in their own subpackages.
//
// # State model
//
// All state lives in the shared key-value store under the rate_limit:,
// login_attempts:, tokens:, and blacklist: namespaces. Engine instances hold
// no authoritative in-process state and are safe to replicate horizontally;
// coordination is delegated entirely to the store's single-key atomicity.
//
// # Failure model
//
// Store failures never crash the request path. Every store call site maps
// through a fixed policy table: rate-limit and blacklist checks fail open,
// cache mutations are logged and swallowed, and only identity-provider
// errors propagate their original status and detail to the caller.
package gatecred
