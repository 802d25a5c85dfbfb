// Package config loads and validates the gateway's configuration:
// YAML file → defaults → APERTURE_* environment overrides →
// validation, failing fast with field-path error messages.
//
// Sections map one-to-one onto the gateway's subsystems: proxy
// (listener), gateway (store, auth resolver, credential pool,
// schedulers, pipeline, OAuth providers, boundary, retention),
// security (TLS/mTLS, secret providers), and telemetry (logging,
// metrics).
//
// A minimal file:
//
//	proxy:
//	  listen_address: "127.0.0.1:8080"
//	gateway:
//	  store:
//	    backend: "sqlite"
//	    sqlite_path: "data/gateway.db"
//	telemetry:
//	  logging:
//	    level: "info"
//
// Overrides follow APERTURE_SECTION_FIELD naming
// (APERTURE_PROXY_LISTEN_ADDRESS, APERTURE_GATEWAY_STORE_BACKEND, ...)
// and always win over the file.
//
// The CLI installs the loaded configuration through Initialize and
// reads it back with GetConfig; everything below the CLI takes a
// *Config (or one of its sections) as an argument.
package config
