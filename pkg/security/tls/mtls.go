package tls

import (
	"crypto/x509"
	"fmt"
	"net/http"
)

// ExtractClientIdentity reads the configured identity field from a
// client certificate: "subject.CN" (default), "subject.OU",
// "subject.O", or "SAN" (first DNS name). Returns "" when the field
// is absent.
func ExtractClientIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case "subject.CN", "":
		return cert.Subject.CommonName
	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}

// ClientCertInfo is the flattened view of a presented client
// certificate.
type ClientCertInfo struct {
	Identity           string
	Subject            string
	Issuer             string
	SerialNumber       string
	OrganizationalUnit []string
	Organization       []string
	DNSNames           []string
}

// ExtractClientCertInfo flattens cert, resolving the identity via
// identitySource.
func ExtractClientCertInfo(cert *x509.Certificate, identitySource string) *ClientCertInfo {
	if cert == nil {
		return nil
	}
	return &ClientCertInfo{
		Identity:           ExtractClientIdentity(cert, identitySource),
		Subject:            cert.Subject.String(),
		Issuer:             cert.Issuer.String(),
		SerialNumber:       fmt.Sprintf("%x", cert.SerialNumber),
		OrganizationalUnit: cert.Subject.OrganizationalUnit,
		Organization:       cert.Subject.Organization,
		DNSNames:           cert.DNSNames,
	}
}

// GetClientCertificate returns the leaf certificate the client
// presented on r's connection, or nil for plain-HTTP or cert-less
// connections.
func GetClientCertificate(r *http.Request) *x509.Certificate {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil
	}
	return r.TLS.PeerCertificates[0]
}

// GetClientIdentity resolves the client identity for a request, or ""
// when no certificate was presented.
func GetClientIdentity(r *http.Request, identitySource string) string {
	return ExtractClientIdentity(GetClientCertificate(r), identitySource)
}

// ValidateClientCertificate verifies cert against caPool for client
// auth and checks its validity window.
func ValidateClientCertificate(cert *x509.Certificate, caPool *x509.CertPool) error {
	if cert == nil {
		return fmt.Errorf("client certificate is nil")
	}

	opts := x509.VerifyOptions{
		Roots:     caPool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("client certificate validation failed: %w", err)
	}
	return ValidateX509Certificate(cert)
}
