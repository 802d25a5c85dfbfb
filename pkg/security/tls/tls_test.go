package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	stdtls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSigned generates a throwaway server certificate and writes the
// PEM pair under dir.
func selfSigned(t *testing.T, dir, cn string, notBefore, notAfter time.Time) (certFile, keyFile string, leaf *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			CommonName:         cn,
			Organization:       []string{"Aperture Test"},
			OrganizationalUnit: []string{"Gateway"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:              []string{cn},
		IsCA:                  true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	leaf, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	certFile = filepath.Join(dir, cn+".crt")
	keyFile = filepath.Join(dir, cn+".key")
	writePEM(t, certFile, "CERTIFICATE", der)
	writePEM(t, keyFile, "EC PRIVATE KEY", keyDER)
	return certFile, keyFile, leaf
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
}

func validWindow() (time.Time, time.Time) {
	now := time.Now()
	return now.Add(-time.Hour), now.Add(90 * 24 * time.Hour)
}

func TestToTLSConfig_Disabled(t *testing.T) {
	cfg := &Config{Enabled: false}
	got, err := cfg.ToTLSConfig()
	if err != nil || got != nil {
		t.Errorf("ToTLSConfig(disabled) = %v, %v, want nil, nil", got, err)
	}
}

func TestToTLSConfig_MissingFiles(t *testing.T) {
	if _, err := (&Config{Enabled: true}).ToTLSConfig(); err == nil {
		t.Error("expected error without cert_file")
	}
	cfg := &Config{Enabled: true, CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"}
	if _, err := cfg.ToTLSConfig(); err == nil {
		t.Error("expected error for missing files")
	}
}

func TestToTLSConfig_ValidPairAndVersionFloor(t *testing.T) {
	nb, na := validWindow()
	certFile, keyFile, _ := selfSigned(t, t.TempDir(), "proxy.local", nb, na)

	cfg := &Config{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.2"}
	got, err := cfg.ToTLSConfig()
	if err != nil {
		t.Fatalf("ToTLSConfig() error = %v", err)
	}
	if got.MinVersion != stdtls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", got.MinVersion)
	}

	cfg.MinVersion = "1.0" // unsupported: hardens to 1.3
	got, err = cfg.ToTLSConfig()
	if err != nil {
		t.Fatalf("ToTLSConfig() error = %v", err)
	}
	if got.MinVersion != stdtls.VersionTLS13 {
		t.Errorf("MinVersion for unsupported input = %x, want TLS 1.3", got.MinVersion)
	}
}

func TestToTLSConfig_ExpiredCertRejected(t *testing.T) {
	now := time.Now()
	certFile, keyFile, _ := selfSigned(t, t.TempDir(), "stale.local", now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	cfg := &Config{Enabled: true, CertFile: certFile, KeyFile: keyFile}
	if _, err := cfg.ToTLSConfig(); err == nil {
		t.Error("ToTLSConfig() with expired certificate expected error")
	}
}

func TestToTLSConfig_MTLS(t *testing.T) {
	dir := t.TempDir()
	nb, na := validWindow()
	certFile, keyFile, _ := selfSigned(t, dir, "server.local", nb, na)
	caFile, _, _ := selfSigned(t, dir, "ca.local", nb, na)

	cfg := &Config{
		Enabled: true, CertFile: certFile, KeyFile: keyFile,
		MTLS: MTLSConfig{Enabled: true, ClientCAFile: caFile, ClientAuthType: "verify_if_given"},
	}
	got, err := cfg.ToTLSConfig()
	if err != nil {
		t.Fatalf("ToTLSConfig() error = %v", err)
	}
	if got.ClientCAs == nil {
		t.Error("ClientCAs not populated")
	}
	if got.ClientAuth != stdtls.VerifyClientCertIfGiven {
		t.Errorf("ClientAuth = %v", got.ClientAuth)
	}

	cfg.MTLS.ClientCAFile = ""
	if _, err := cfg.ToTLSConfig(); err == nil {
		t.Error("mTLS without CA file expected error")
	}
}

func TestParseReloadInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 5 * time.Minute},
		{"90s", 90 * time.Second},
		{"1h", time.Hour},
		{"nonsense", 5 * time.Minute},
	}
	for _, tt := range tests {
		cfg := &Config{ReloadInterval: tt.in}
		if got := cfg.ParseReloadInterval(); got != tt.want {
			t.Errorf("ParseReloadInterval(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCheckCertificateExpiration_Warning(t *testing.T) {
	now := time.Now()
	_, _, soon := selfSigned(t, t.TempDir(), "soon.local", now.Add(-time.Hour), now.Add(10*24*time.Hour))

	days, warning := CheckCertificateExpiration(soon)
	if warning == "" {
		t.Error("expected a warning for a certificate expiring in 10 days")
	}
	if days > 10 {
		t.Errorf("daysUntilExpiry = %d", days)
	}

	_, _, far := selfSigned(t, t.TempDir(), "far.local", now.Add(-time.Hour), now.Add(365*24*time.Hour))
	if _, warning := CheckCertificateExpiration(far); warning != "" {
		t.Errorf("unexpected warning: %s", warning)
	}
}

func TestValidateCertificateChain(t *testing.T) {
	nb, na := validWindow()
	_, _, leaf := selfSigned(t, t.TempDir(), "chain.local", nb, na)

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	if err := ValidateCertificateChain(leaf, pool); err != nil {
		t.Errorf("self-signed chain against own pool failed: %v", err)
	}

	if err := ValidateCertificateChain(leaf, x509.NewCertPool()); err == nil {
		t.Error("chain against empty pool expected error")
	}
}

func TestCertificateReloader_LoadsAndServes(t *testing.T) {
	nb, na := validWindow()
	certFile, keyFile, _ := selfSigned(t, t.TempDir(), "reload.local", nb, na)

	r := NewCertificateReloader(certFile, keyFile, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cert, err := r.GetCertificateFunc()(nil)
	if err != nil || cert == nil {
		t.Fatalf("GetCertificateFunc() = %v, %v", cert, err)
	}
}

func TestCertificateReloader_PicksUpRenewal(t *testing.T) {
	dir := t.TempDir()
	nb, na := validWindow()
	certFile, keyFile, first := selfSigned(t, dir, "renew.local", nb, na)

	r := NewCertificateReloader(certFile, keyFile, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Rewrite the pair with a new serial and a future mtime.
	renewedCert, renewedKey, renewed := selfSigned(t, t.TempDir(), "renew.local", nb, na)
	copyFile(t, renewedCert, certFile)
	copyFile(t, renewedKey, keyFile)
	future := time.Now().Add(time.Hour)
	os.Chtimes(certFile, future, future)
	os.Chtimes(keyFile, future, future)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := r.GetCertificate()
		leaf, err := x509.ParseCertificate(got.Certificate[0])
		if err == nil && leaf.SerialNumber.Cmp(renewed.SerialNumber) == 0 {
			if leaf.SerialNumber.Cmp(first.SerialNumber) == 0 {
				t.Fatal("test generated identical serials")
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("reloader never picked up the renewed certificate")
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("reading %s: %v", src, err)
	}
	if err := os.WriteFile(dst, data, 0600); err != nil {
		t.Fatalf("writing %s: %v", dst, err)
	}
}

func TestExtractClientIdentity_Sources(t *testing.T) {
	nb, na := validWindow()
	_, _, cert := selfSigned(t, t.TempDir(), "ident.local", nb, na)

	tests := []struct {
		source string
		want   string
	}{
		{"", "ident.local"},
		{"subject.CN", "ident.local"},
		{"subject.O", "Aperture Test"},
		{"subject.OU", "Gateway"},
		{"SAN", "ident.local"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := ExtractClientIdentity(cert, tt.source); got != tt.want {
			t.Errorf("ExtractClientIdentity(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}

	if got := ExtractClientIdentity(nil, "subject.CN"); got != "" {
		t.Errorf("ExtractClientIdentity(nil) = %q", got)
	}
}

func TestValidateClientCertificate(t *testing.T) {
	nb, na := validWindow()
	_, _, cert := selfSigned(t, t.TempDir(), "client.local", nb, na)

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	if err := ValidateClientCertificate(cert, pool); err != nil {
		t.Errorf("ValidateClientCertificate() = %v", err)
	}
	if err := ValidateClientCertificate(nil, pool); err == nil {
		t.Error("nil certificate expected error")
	}
}
