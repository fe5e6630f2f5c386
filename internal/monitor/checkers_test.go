package monitor

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-ping/ping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuomag9/onlinetracker/internal/models"
)

type fakePinger struct {
	stats *ping.Statistics
	err   error
	block chan struct{}
	once  sync.Once
}

func (f *fakePinger) Run() error {
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func (f *fakePinger) Stop() {
	if f.block != nil {
		f.once.Do(func() { close(f.block) })
	}
}

func (f *fakePinger) Statistics() *ping.Statistics {
	return f.stats
}

func pingerReturning(p *fakePinger) PingerFactory {
	return func(host string, count int, interval, timeout time.Duration, privileged bool) (Pinger, error) {
		return p, nil
	}
}

func rtts(ms ...int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, v := range ms {
		out[i] = time.Duration(v) * time.Millisecond
	}
	return out
}

func pingConfig() Config {
	cfg, _ := DecodeConfig(KindPing, nil, DefaultDefaults())
	return cfg
}

func TestClassifyLatencyBoundaries(t *testing.T) {
	tests := []struct {
		ms   int
		want models.Severity
	}{
		{0, models.SeverityUp},
		{80, models.SeverityUp},
		{81, models.SeverityDegraded},
		{200, models.SeverityDegraded},
		{201, models.SeverityDown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyLatency(tt.ms, 80, 200), "latency %dms", tt.ms)
	}
}

func TestPingThresholds(t *testing.T) {
	tests := []struct {
		name     string
		received int
		samples  []time.Duration
		want     models.Severity
	}{
		{"exactly ok threshold", 5, rtts(80, 80, 80, 80, 80), models.SeverityUp},
		{"one above ok threshold", 5, rtts(81, 81, 81, 81, 81), models.SeverityDegraded},
		{"above degraded threshold", 5, rtts(250, 250, 250, 250, 250), models.SeverityDown},
		{"mean over replies only", 3, rtts(10, 20, 30), models.SeverityUp},
		{"fewer than half answered", 2, rtts(5, 5), models.SeverityDown},
		{"nothing answered", 0, nil, models.SeverityDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePinger{stats: &ping.Statistics{PacketsSent: 5, PacketsRecv: tt.received, Rtts: tt.samples}}
			res := NewPingChecker(pingerReturning(p)).Check(context.Background(), "192.0.2.1", pingConfig())
			assert.Equal(t, tt.want, res.Severity, res.Detail)
		})
	}
}

func TestPingRunError(t *testing.T) {
	p := &fakePinger{err: errors.New("socket: permission denied"), stats: &ping.Statistics{}}
	res := NewPingChecker(pingerReturning(p)).Check(context.Background(), "192.0.2.1", pingConfig())
	assert.Equal(t, models.SeverityDown, res.Severity)
	assert.Contains(t, res.Detail, "permission denied")
}

func TestPingFactoryError(t *testing.T) {
	factory := func(string, int, time.Duration, time.Duration, bool) (Pinger, error) {
		return nil, errors.New("lookup nowhere.invalid: no such host")
	}
	res := NewPingChecker(factory).Check(context.Background(), "nowhere.invalid", pingConfig())
	assert.Equal(t, models.SeverityDown, res.Severity)
	assert.Contains(t, res.Detail, "no such host")
}

func TestPingPartialResultsOnTimeout(t *testing.T) {
	p := &fakePinger{
		block: make(chan struct{}),
		stats: &ping.Statistics{PacketsSent: 4, PacketsRecv: 3, Rtts: rtts(10, 12, 14)},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := NewPingChecker(pingerReturning(p)).Check(ctx, "192.0.2.1", pingConfig())
	assert.Equal(t, models.SeverityUp, res.Severity)
	require.NotNil(t, res.LatencyMs)
	assert.Equal(t, 12, *res.LatencyMs)
}

func TestPingSqueezesIntervalIntoTimeout(t *testing.T) {
	var gotInterval time.Duration
	factory := func(host string, count int, interval, timeout time.Duration, privileged bool) (Pinger, error) {
		gotInterval = interval
		return &fakePinger{stats: &ping.Statistics{PacketsRecv: count, Rtts: rtts(1)}}, nil
	}
	cfg := pingConfig()
	cfg.Timeout = 3 * time.Second

	NewPingChecker(factory).Check(context.Background(), "192.0.2.1", cfg)
	assert.Equal(t, 500*time.Millisecond, gotInterval)
}

func httpConfig(overrides map[string]interface{}) Config {
	d := DefaultDefaults()
	d.HTTPOKMs = 5000
	d.HTTPDegradedMs = 10000
	cfg, _ := DecodeConfig(KindHTTP, overrides, d)
	return cfg
}

func TestHTTPChecker(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		switch r.URL.Path {
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/created":
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, "made")
		default:
			fmt.Fprint(w, "hello world")
		}
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.Client()).WithPause(0)
	hostPort := strings.TrimPrefix(srv.URL, "http://")

	tests := []struct {
		name   string
		target string
		cfg    Config
		want   models.Severity
		detail string
	}{
		{"healthy", srv.URL + "/", httpConfig(nil), models.SeverityUp, "HTTP 200"},
		{"scheme added", hostPort + "/", httpConfig(nil), models.SeverityUp, "HTTP 200"},
		{"server error without expectation", srv.URL + "/broken", httpConfig(nil), models.SeverityDown, "500"},
		{"expected status matches", srv.URL + "/created", httpConfig(map[string]interface{}{"expected_status": 201.0}), models.SeverityUp, "HTTP 201"},
		{"expected status mismatch", srv.URL + "/", httpConfig(map[string]interface{}{"expected_status": 204.0}), models.SeverityDown, "expected 204"},
		{"expected content present", srv.URL + "/", httpConfig(map[string]interface{}{"expected_content": "world"}), models.SeverityUp, ""},
		{"expected content absent", srv.URL + "/", httpConfig(map[string]interface{}{"expected_content": "goodbye"}), models.SeverityDown, "not found"},
		{"body hash mismatch caps at degraded", srv.URL + "/", httpConfig(map[string]interface{}{"expected_body_hash": "00"}), models.SeverityDegraded, "hash changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := checker.Check(context.Background(), tt.target, tt.cfg)
			assert.Equal(t, tt.want, res.Severity, res.Detail)
			assert.Contains(t, res.Detail, tt.detail)
			assert.Len(t, res.ContentHash, 64)
		})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, len(tests)*3, hits, "every probe issues request_count requests")
}

type flakyDoer struct {
	calls int
}

func (f *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls == 2 {
		return nil, errors.New("connection refused")
	}
	rec := httptest.NewRecorder()
	rec.WriteString("ok")
	return rec.Result(), nil
}

func TestHTTPAnyFailureForcesDown(t *testing.T) {
	doer := &flakyDoer{}
	res := NewHTTPChecker(doer).WithPause(0).Check(context.Background(), "http://example.test", httpConfig(nil))

	assert.Equal(t, models.SeverityDown, res.Severity)
	assert.Contains(t, res.Detail, "1/3 requests failed")
	require.NotNil(t, res.LatencyMs, "latency still averages the successful requests")
	assert.Equal(t, 3, doer.calls)
}

func certExpiringIn(now time.Time, d time.Duration) *x509.Certificate {
	return &x509.Certificate{
		NotAfter: now.Add(d),
		Subject:  pkix.Name{CommonName: "example.test"},
		Issuer:   pkix.Name{CommonName: "Test CA"},
	}
}

func TestTLSThresholds(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cfg, _ := DecodeConfig(KindTLS, nil, DefaultDefaults())
	day := 24 * time.Hour

	tests := []struct {
		name string
		in   time.Duration
		want models.Severity
		days int
	}{
		{"comfortably valid", 90 * day, models.SeverityUp, 90},
		{"exactly ok days", 30 * day, models.SeverityUp, 30},
		{"inside ok window", 29 * day, models.SeverityDegraded, 29},
		{"exactly warning days", 14 * day, models.SeverityDegraded, 14},
		{"inside warning window", 13 * day, models.SeverityDown, 13},
		{"expired", -2 * day, models.SeverityDown, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch := func(ctx context.Context, host, port string) (*x509.Certificate, error) {
				assert.Equal(t, "example.test", host)
				assert.Equal(t, "8443", port)
				return certExpiringIn(now, tt.in), nil
			}
			res := NewTLSChecker(fetch).WithNow(func() time.Time { return now }).
				Check(context.Background(), "https://example.test:8443/path", cfg)
			assert.Equal(t, tt.want, res.Severity, res.Detail)
			require.NotNil(t, res.TLSDaysRemaining)
			assert.Equal(t, tt.days, *res.TLSDaysRemaining)
		})
	}
}

func TestTLSAgainstRealServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg, _ := DecodeConfig(KindTLS, nil, DefaultDefaults())
	res := NewTLSChecker(nil).Check(context.Background(), srv.URL, cfg)
	assert.Equal(t, models.SeverityUp, res.Severity, res.Detail)
	require.NotNil(t, res.TLSDaysRemaining)
	assert.Greater(t, *res.TLSDaysRemaining, 30)
}

func TestTLSHandshakeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg, _ := DecodeConfig(KindTLS, nil, DefaultDefaults())
	res := NewTLSChecker(nil).Check(context.Background(), addr, cfg)
	assert.Equal(t, models.SeverityDown, res.Severity)
	assert.Contains(t, res.Detail, "TLS handshake failed")
}

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		in, host, port string
	}{
		{"example.com", "example.com", "443"},
		{"example.com:8443", "example.com", "8443"},
		{"https://example.com/health", "example.com", "443"},
		{"https://example.com:9443/health", "example.com", "9443"},
		{"example.com/some/path", "example.com", "443"},
		{"[2001:db8::1]:8443", "2001:db8::1", "8443"},
		{"2001:db8::1", "2001:db8::1", "443"},
	}
	for _, tt := range tests {
		host, port, err := ParseHostPort(tt.in, "443")
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.host, host, tt.in)
		assert.Equal(t, tt.port, port, tt.in)
	}

	_, _, err := ParseHostPort("  ", "443")
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://example.com", NormalizeURL("example.com", "https"))
	assert.Equal(t, "http://example.com", NormalizeURL("http://example.com", "https"))
	assert.Equal(t, "", NormalizeURL("", "http"))
}

func TestTargetGuard(t *testing.T) {
	ctx := context.Background()

	strict := NewTargetGuard(false)
	assert.Error(t, strict.Check(ctx, "http://169.254.169.254/latest/meta-data"))
	assert.Error(t, strict.Check(ctx, "10.0.0.5"))
	assert.Error(t, strict.Check(ctx, "127.0.0.1:8080"))
	assert.NoError(t, strict.Check(ctx, "192.0.2.10"), "documentation range is public")

	lenient := NewTargetGuard(true)
	assert.NoError(t, lenient.Check(ctx, "10.0.0.5"))
	assert.Error(t, lenient.Check(ctx, "169.254.169.254"), "metadata endpoints stay blocked")
}
