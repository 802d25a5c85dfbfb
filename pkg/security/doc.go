/*
Package security provides transport security (TLS/mTLS) and secret
management for the Aperture Gateway. Inbound credential authentication
is handled by package authresolver, not here.

# TLS Configuration

Configure TLS for the proxy server:

	cfg := &tls.Config{
		Enabled:  true,
		CertFile: "/etc/aperture/certs/server.crt",
		KeyFile:  "/etc/aperture/certs/server.key",
		MinVersion: "1.3",
	}

	tlsConfig, err := cfg.ToTLSConfig()
	if err != nil {
		log.Fatal(err)
	}

# Secret Management

Load secrets from multiple providers:

	fileProvider, err := secrets.NewFileProvider("/var/secrets", true)
	if err != nil {
		log.Fatal(err)
	}
	manager := secrets.NewManager([]secrets.SecretProvider{
		secrets.NewEnvProvider("APERTURE_SECRET_"),
		fileProvider,
	}, cacheConfig)

	apiKey, err := manager.GetSecret(ctx, "openai-api-key")
	if err != nil {
		log.Fatal(err)
	}
*/
package security
