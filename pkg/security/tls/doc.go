// Package tls configures the proxy listener's TLS surface: a
// config-to-crypto/tls translation with a 1.2 floor, a polling
// certificate reloader so renewals land without a restart, optional
// mTLS with configurable client-identity extraction, and the
// inspection helpers behind the certs CLI commands.
//
// The supervisor converts config.TLSConfig through Config.ToTLSConfig
// and swaps certificate sourcing for CertificateReloader's
// GetCertificate, so the two stay in lockstep by construction.
package tls
