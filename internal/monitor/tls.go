package monitor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// CertFetcher connects to host:port and returns the leaf certificate
type CertFetcher func(ctx context.Context, host, port string) (*x509.Certificate, error)

// TLSChecker reports days until the target's certificate expires
type TLSChecker struct {
	fetch CertFetcher
	now   func() time.Time
}

// NewTLSChecker creates a TLS checker. A nil fetcher dials the target with crypto/tls.
func NewTLSChecker(fetch CertFetcher) *TLSChecker {
	if fetch == nil {
		fetch = fetchLeafCertificate
	}
	return &TLSChecker{fetch: fetch, now: time.Now}
}

// WithNow returns a copy of the checker using now as its clock
func (c *TLSChecker) WithNow(now func() time.Time) *TLSChecker {
	clone := *c
	clone.now = now
	return &clone
}

func fetchLeafCertificate(ctx context.Context, host, port string) (*x509.Certificate, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		// Expiry is inspected on its own, chain trust is not this checker's concern
		Config: &tls.Config{InsecureSkipVerify: true, ServerName: host},
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("server presented no certificate")
	}
	return certs[0], nil
}

// Check retrieves the leaf certificate and classifies the remaining validity
func (c *TLSChecker) Check(ctx context.Context, target string, cfg Config) Result {
	host, port, err := ParseHostPort(target, "443")
	if err != nil {
		return down("Invalid target: %v", err)
	}

	start := time.Now()
	cert, err := c.fetch(ctx, host, port)
	if err != nil {
		return down("TLS handshake failed: %v", err)
	}
	latency := intPtr(int(time.Since(start) / time.Millisecond))

	return evaluateCertificate(cert, c.now(), cfg, latency)
}

func evaluateCertificate(cert *x509.Certificate, now time.Time, cfg Config, latency *int) Result {
	days := int(math.Floor(cert.NotAfter.Sub(now).Hours() / 24))
	subject := cert.Subject.CommonName
	issuer := cert.Issuer.CommonName
	expires := cert.NotAfter.UTC().Format("2006-01-02")

	res := Result{LatencyMs: latency, TLSDaysRemaining: intPtr(days)}

	switch {
	case !now.Before(cert.NotAfter):
		res.Severity = models.SeverityDown
		res.Detail = fmt.Sprintf("Certificate for %s expired on %s (issuer %s)", subject, expires, issuer)
	case days < cfg.WarningThresholdDays:
		res.Severity = models.SeverityDown
		res.Detail = fmt.Sprintf("Certificate for %s expires in %d days on %s (issuer %s)", subject, days, expires, issuer)
	case days < cfg.OKThresholdDays:
		res.Severity = models.SeverityDegraded
		res.Detail = fmt.Sprintf("Certificate for %s expires in %d days on %s (issuer %s)", subject, days, expires, issuer)
	default:
		res.Severity = models.SeverityUp
		res.Detail = fmt.Sprintf("Certificate for %s valid for %d days until %s (issuer %s)", subject, days, expires, issuer)
	}

	return res
}
