package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"os"
	"sync"
	"time"
)

// CertificateReloader polls the certificate and key files for
// modification and reloads the pair when either changes, so a renewal
// (e.g. Let's Encrypt) reaches the listener without a restart. The
// listener consumes it through tls.Config.GetCertificate, which reads
// the current pair under a read lock per handshake.
type CertificateReloader struct {
	certFile string
	keyFile  string
	interval time.Duration

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewCertificateReloader builds a reloader polling at interval.
func NewCertificateReloader(certFile, keyFile string, interval time.Duration) *CertificateReloader {
	return &CertificateReloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
	}
}

// Start loads the initial pair and begins the polling goroutine, which
// exits when ctx is done.
func (r *CertificateReloader) Start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}
	r.logLoadedCert()

	go r.poll(ctx)
	return nil
}

func (r *CertificateReloader) poll(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.filesChanged() {
				continue
			}
			if err := r.reload(); err != nil {
				// Keep serving the previous pair; a half-written
				// renewal will succeed on a later tick.
				slog.Error("certificate reload failed", "cert_file", r.certFile, "error", err)
				continue
			}
			slog.Info("certificate reloaded", "cert_file", r.certFile)
			r.logLoadedCert()

		case <-ctx.Done():
			return
		}
	}
}

func (r *CertificateReloader) filesChanged() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

func (r *CertificateReloader) reload() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return err
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	if err := ValidateCertificate(&cert); err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()
	return nil
}

// GetCertificate returns the currently loaded pair.
func (r *CertificateReloader) GetCertificate() *tls.Certificate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert
}

// GetCertificateFunc adapts the reloader to tls.Config.GetCertificate.
func (r *CertificateReloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		return r.GetCertificate(), nil
	}
}

func (r *CertificateReloader) logLoadedCert() {
	cert := r.GetCertificate()
	if cert == nil || len(cert.Certificate) == 0 {
		return
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return
	}

	days, warning := CheckCertificateExpiration(leaf)
	if warning != "" {
		slog.Warn("certificate expiring soon",
			"subject", leaf.Subject.CommonName, "expires_in_days", days,
			"expires_at", leaf.NotAfter.Format(time.RFC3339))
		return
	}
	slog.Info("certificate loaded",
		"subject", leaf.Subject.CommonName, "issuer", leaf.Issuer.CommonName,
		"expires_in_days", days, "expires_at", leaf.NotAfter.Format(time.RFC3339))
}
