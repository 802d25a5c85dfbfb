// Package supervisor starts and stops the gateway's components in
// dependency order: data store → health → reset scheduler → oauth
// scheduler → pipeline, reverse order on shutdown.
package supervisor

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"aperturegw/gateway/pkg/authresolver"
	"aperturegw/gateway/pkg/config"
	"aperturegw/gateway/pkg/credentialpool"
	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/gatewayproxy"
	"aperturegw/gateway/pkg/health"
	"aperturegw/gateway/pkg/oauthclient"
	"aperturegw/gateway/pkg/oauthrefresh"
	"aperturegw/gateway/pkg/resetscheduler"
	"aperturegw/gateway/pkg/security/secrets"
	securetls "aperturegw/gateway/pkg/security/tls"
	"aperturegw/gateway/pkg/telemetry/metrics"
	"aperturegw/gateway/pkg/tracing"
)

// Supervisor owns the gateway's component lifecycle and its inbound
// HTTP listener.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	store      gatewaydb.Store
	health     *health.Service
	resetSched *resetscheduler.Scheduler
	oauthSched *oauthrefresh.Scheduler
	resolver   *authresolver.Resolver
	pool       *credentialpool.Pool
	tracer     *tracing.Writer
	retention  *tracing.RetentionScheduler
	secrets    *secrets.Manager
	metrics    *metrics.Collector
	boundary   *gatewayproxy.BoundaryPolicy
	pipeline   *gatewayproxy.Pipeline
	httpServer *http.Server
	metricsSrv *http.Server
	certReload *securetls.CertificateReloader

	secretClosers []func() error

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New wires every gateway component from cfg without starting any of
// them. Call Start to bring the gateway up.
func New(cfg *config.Config) (*Supervisor, error) {
	store, err := openStore(cfg.Gateway.Store)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open store: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics)
	}

	healthSvc := health.NewService(store)
	resetSched := resetscheduler.New(store, healthSvc, collector)
	resetSched.FireTimeout = cfg.Gateway.ResetScheduler.FireTimeout

	clientFor := oauthClientFactory(cfg.Gateway.OAuthProviders)
	oauthSched := oauthrefresh.New(store, clientFor, oauthrefresh.Config{
		Skew:          cfg.Gateway.OAuthRefresh.RefreshLeadTime,
		MaxConcurrent: cfg.Gateway.OAuthRefresh.MaxConcurrentRefreshes,
		MaxRetries:    cfg.Gateway.OAuthRefresh.MaxRetries,
		Metrics:       collector,
	})

	resolver := authresolver.New(store, authresolver.Config{
		DefaultQueryParamName: cfg.Gateway.AuthResolver.DefaultQueryParamName,
		CacheTTLSeconds:       cfg.Gateway.AuthResolver.CacheTTLSeconds,
		CacheMaxEntries:       cfg.Gateway.AuthResolver.CacheMaxEntries,
	})

	sessionStatus := func(sessionID string) (gatewaydb.OAuthSessionStatus, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s, err := store.LoadOAuthSession(ctx, sessionID)
		if err != nil {
			return "", false
		}
		return s.Status, true
	}
	pool := credentialpool.New(store, sessionStatus, credentialpool.Config{
		AllowDegraded: cfg.Gateway.CredentialPool.DegradedAllowed(),
		Metrics:       collector,
	})

	tracer := tracing.New(store, tracing.Config{Metrics: collector})
	retention := tracing.NewRetentionScheduler(store, tracing.RetentionConfig{
		MaxAge:   cfg.Gateway.Retention.MaxAge,
		Schedule: cfg.Gateway.Retention.Schedule,
	})

	secretsMgr, secretClosers, err := buildSecretsManager(cfg.Security.Secrets)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build secrets manager: %w", err)
	}

	pipeline := gatewayproxy.New(store, resolver, pool, tracer, resetSched, oauthSched, secretsMgr, gatewayproxy.Config{
		ForwardTimeout: cfg.Gateway.Pipeline.ForwardTimeout,
		Metrics:        collector,
	})

	var boundary *gatewayproxy.BoundaryPolicy
	if b := cfg.Gateway.Boundary; len(b.AllowedMethods) > 0 || len(b.ForbiddenMethods) > 0 {
		boundary = gatewayproxy.NewBoundaryPolicy(b.AllowedMethods, b.ForbiddenMethods)
	}

	return &Supervisor{
		cfg:           cfg,
		logger:        slog.Default().With("component", "supervisor"),
		store:         store,
		health:        healthSvc,
		resetSched:    resetSched,
		oauthSched:    oauthSched,
		resolver:      resolver,
		pool:          pool,
		tracer:        tracer,
		retention:     retention,
		secrets:       secretsMgr,
		secretClosers: secretClosers,
		metrics:       collector,
		boundary:      boundary,
		pipeline:      pipeline,
	}, nil
}

// buildSecretsManager constructs a secrets.Manager from the configured
// provider chain. A provider other than "env" is skipped unless its
// Enabled flag is true; an env provider is always used. With no
// providers configured it returns a nil manager, so credentialSecret
// passes secret material through unresolved.
func buildSecretsManager(cfg config.SecretsConfig) (*secrets.Manager, []func() error, error) {
	if len(cfg.Providers) == 0 {
		return nil, nil, nil
	}

	var providers []secrets.SecretProvider
	var closers []func() error

	for _, pc := range cfg.Providers {
		if !pc.Enabled && pc.Type != "env" {
			continue
		}
		switch pc.Type {
		case "env":
			providers = append(providers, secrets.NewEnvProvider(pc.Prefix))
		case "file":
			fp, err := secrets.NewFileProvider(pc.Path, pc.Watch)
			if err != nil {
				return nil, nil, fmt.Errorf("file secret provider: %w", err)
			}
			providers = append(providers, fp)
			closers = append(closers, fp.Close)
		case "aws_kms":
			providers = append(providers, secrets.NewAWSKMSProvider(pc.Region, pc.KeyID, pc.Enabled))
		case "gcp_kms":
			providers = append(providers, secrets.NewGCPKMSProvider(pc.Project, pc.Location, pc.KeyRing, pc.Key, pc.Enabled))
		case "vault":
			providers = append(providers, secrets.NewVaultProvider(pc.Address, pc.Token, pc.VaultPath, pc.Enabled))
		default:
			return nil, nil, fmt.Errorf("unknown secret provider type %q", pc.Type)
		}
	}

	if len(providers) == 0 {
		return nil, nil, nil
	}

	cacheTTL := 5 * time.Minute
	if cfg.Cache.TTL != "" {
		if d, err := time.ParseDuration(cfg.Cache.TTL); err == nil {
			cacheTTL = d
		}
	}
	maxSize := cfg.Cache.MaxSize
	if maxSize <= 0 {
		maxSize = 1000
	}

	mgr := secrets.NewManager(providers, secrets.CacheConfig{
		Enabled: cfg.Cache.Enabled,
		TTL:     cacheTTL,
		MaxSize: maxSize,
	})
	return mgr, closers, nil
}

func openStore(cfg config.GatewayStoreConfig) (gatewaydb.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return gatewaydb.NewMemoryStore(), nil
	case "sqlite":
		return gatewaydb.NewSQLiteStore(&gatewaydb.SQLiteConfig{
			Path:         cfg.SQLitePath,
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			WALMode:      true,
			BusyTimeout:  5 * time.Second,
		})
	default:
		return nil, fmt.Errorf("supervisor: unknown store backend %q", cfg.Backend)
	}
}

// oauthClientFactory builds an oauthrefresh.ClientFor closure over the
// gateway's configured OAuth provider endpoints, constructing each
// oauthclient.Client lazily and caching it.
func oauthClientFactory(providers map[string]config.GatewayOAuthProviderConfig) oauthrefresh.ClientFor {
	var mu sync.Mutex
	clients := make(map[string]*oauthclient.Client)

	return func(providerTypeID string) (*oauthclient.Client, error) {
		mu.Lock()
		defer mu.Unlock()

		if c, ok := clients[providerTypeID]; ok {
			return c, nil
		}
		pc, ok := providers[providerTypeID]
		if !ok {
			return nil, fmt.Errorf("supervisor: no oauth provider configured for provider type %q", providerTypeID)
		}
		c := oauthclient.New(oauthclient.ProviderEndpoints{
			AuthorizeURL: pc.AuthorizeURL,
			TokenURL:     pc.TokenURL,
			RedirectURI:  pc.RedirectURI,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Scopes:       pc.Scopes,
			PKCERequired: pc.PKCERequired,
		})
		clients[providerTypeID] = c
		return c, nil
	}
}

// Start brings every component up in dependency order, then blocks
// serving HTTP until ctx is cancelled, a shutdown signal arrives, or
// the listener fails.
func (sup *Supervisor) Start(ctx context.Context) error {
	sup.mu.Lock()
	if sup.isRunning {
		sup.mu.Unlock()
		return fmt.Errorf("supervisor: already running")
	}
	sup.isRunning = true
	sup.mu.Unlock()

	// data store is already open from New; health is a thin store
	// wrapper with no separate lifecycle.

	if err := sup.resetSched.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: start reset scheduler: %w", err)
	}

	sup.oauthSched.Start(ctx, sup.loadOAuthSeeds(ctx))

	if err := sup.retention.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: start trace retention: %w", err)
	}

	var handler http.Handler = sup.pipeline
	if sup.boundary != nil {
		handler = gatewayproxy.BoundaryMiddleware(sup.boundary, sup.metrics,
			sup.cfg.Gateway.AuthResolver.DefaultQueryParamName, handler)
	}

	sup.httpServer = &http.Server{
		Addr:           sup.cfg.Proxy.ListenAddress,
		Handler:        handler,
		ReadTimeout:    sup.cfg.Proxy.ReadTimeout,
		WriteTimeout:   sup.cfg.Proxy.WriteTimeout,
		IdleTimeout:    sup.cfg.Proxy.IdleTimeout,
		MaxHeaderBytes: sup.cfg.Proxy.MaxHeaderBytes,
	}

	sup.startMetricsListener()

	useTLS := sup.cfg.Security.TLS.Enabled
	if useTLS {
		tlsConfig, reloader, err := buildTLSConfig(sup.cfg.Security.TLS)
		if err != nil {
			sup.mu.Lock()
			sup.isRunning = false
			sup.mu.Unlock()
			return fmt.Errorf("supervisor: configure TLS: %w", err)
		}
		if err := reloader.Start(ctx); err != nil {
			sup.mu.Lock()
			sup.isRunning = false
			sup.mu.Unlock()
			return fmt.Errorf("supervisor: start certificate reloader: %w", err)
		}
		sup.certReload = reloader
		sup.httpServer.TLSConfig = tlsConfig
	}

	errChan := make(chan error, 1)
	go func() {
		sup.logger.Info("starting gateway proxy listener", "address", sup.cfg.Proxy.ListenAddress, "tls", useTLS)
		var err error
		if useTLS {
			err = sup.httpServer.ListenAndServeTLS("", "")
		} else {
			err = sup.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("gateway listener error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		sup.logger.Info("context cancelled, shutting down gateway")
		return sup.Shutdown(context.Background())
	case sig := <-sigChan:
		sup.logger.Info("received shutdown signal", "signal", sig.String())
		return sup.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// loadOAuthSeeds computes the refresh scheduler's startup seed list:
// every authorized session owned by an active OAuth key, due at
// expires_at minus the configured lead time. A session with no
// recorded expiry is seeded as due now so its true expiry gets learned
// on the first refresh. A listing failure degrades to an empty seed
// list; the REWRITE-stage opportunistic refresh still covers any
// session a request actually touches.
func (sup *Supervisor) loadOAuthSeeds(ctx context.Context) []oauthrefresh.Seed {
	sessions, err := sup.store.ListAuthorizedOAuthSessions(ctx)
	if err != nil {
		sup.logger.Warn("listing authorized oauth sessions for startup seeding failed", "error", err)
		return nil
	}

	lead := sup.cfg.Gateway.OAuthRefresh.RefreshLeadTime
	seeds := make([]oauthrefresh.Seed, 0, len(sessions))
	for _, sess := range sessions {
		due := time.Now()
		if sess.ExpiresAt != nil {
			due = sess.ExpiresAt.Add(-lead)
		}
		seeds = append(seeds, oauthrefresh.Seed{SessionID: sess.SessionID, NextRefreshAt: due})
	}
	return seeds
}

// startMetricsListener serves the Prometheus exposition endpoint on its
// own port when one is configured. Metrics on a separate listener keep
// the proxy port's auth boundary clean.
func (sup *Supervisor) startMetricsListener() {
	if sup.metrics == nil || sup.cfg.Telemetry.Metrics.Port == 0 {
		return
	}

	path := sup.cfg.Telemetry.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, sup.metrics.Handler())

	sup.metricsSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", sup.cfg.Telemetry.Metrics.Port),
		Handler: mux,
	}

	go func() {
		sup.logger.Info("starting metrics listener", "address", sup.metricsSrv.Addr, "path", path)
		if err := sup.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sup.logger.Error("metrics listener error", "error", err)
		}
	}()
}

// buildTLSConfig translates the gateway's TLS configuration into a
// crypto/tls.Config and a running certificate reloader, so the listener
// picks up a renewed certificate (e.g. after a Let's Encrypt renewal)
// without a restart. mTLS, minimum version, and cipher suite selection
// follow the same rules as a one-shot Config.ToTLSConfig conversion;
// only certificate sourcing is swapped for the reloader's GetCertificate.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, *securetls.CertificateReloader, error) {
	stc := &securetls.Config{
		Enabled:        cfg.Enabled,
		CertFile:       cfg.CertFile,
		KeyFile:        cfg.KeyFile,
		MinVersion:     cfg.MinVersion,
		CipherSuites:   cfg.CipherSuites,
		ReloadInterval: cfg.ReloadInterval,
		MTLS: securetls.MTLSConfig{
			Enabled:          cfg.MTLS.Enabled,
			ClientCAFile:     cfg.MTLS.ClientCAFile,
			ClientAuthType:   cfg.MTLS.ClientAuthType,
			VerifyClientCert: cfg.MTLS.VerifyClientCert,
			IdentitySource:   cfg.MTLS.IdentitySource,
		},
	}

	tlsConfig, err := stc.ToTLSConfig()
	if err != nil {
		return nil, nil, err
	}

	reloader := securetls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, stc.ParseReloadInterval())
	tlsConfig.Certificates = nil
	tlsConfig.GetCertificate = reloader.GetCertificateFunc()

	return tlsConfig, reloader, nil
}

// Shutdown stops components in reverse dependency order: pipeline
// (listener) → oauth scheduler → reset scheduler → health/store.
func (sup *Supervisor) Shutdown(ctx context.Context) error {
	var shutdownErr error

	sup.shutdownOnce.Do(func() {
		sup.mu.Lock()
		if !sup.isRunning {
			sup.mu.Unlock()
			return
		}
		sup.mu.Unlock()

		sup.logger.Info("initiating gateway shutdown")

		grace := sup.cfg.Proxy.ShutdownTimeout
		if grace <= 0 {
			grace = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()

		if sup.httpServer != nil {
			if err := sup.httpServer.Shutdown(shutdownCtx); err != nil {
				sup.logger.Error("gateway listener shutdown error", "error", err)
				shutdownErr = err
			}
		}
		if sup.metricsSrv != nil {
			if err := sup.metricsSrv.Shutdown(shutdownCtx); err != nil {
				sup.logger.Warn("metrics listener shutdown error", "error", err)
			}
		}

		sup.oauthSched.Stop(10 * time.Second)
		sup.resetSched.Stop()
		sup.retention.Stop()

		if err := sup.tracer.Close(); err != nil {
			sup.logger.Warn("tracer close error", "error", err)
		}
		sup.resolver.Close()

		for _, closeSecret := range sup.secretClosers {
			if err := closeSecret(); err != nil {
				sup.logger.Warn("secret provider close error", "error", err)
			}
		}

		if err := sup.store.Close(); err != nil {
			sup.logger.Warn("store close error", "error", err)
		}

		sup.mu.Lock()
		sup.isRunning = false
		sup.mu.Unlock()

		sup.logger.Info("gateway stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the supervisor's listener is currently
// serving.
func (sup *Supervisor) IsRunning() bool {
	sup.mu.RLock()
	defer sup.mu.RUnlock()
	return sup.isRunning
}

// Store exposes the underlying data store, for the management-plane
// CLI commands that seed tenants, provider types, and keys.
func (sup *Supervisor) Store() gatewaydb.Store {
	return sup.store
}
