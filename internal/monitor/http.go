package monitor

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/fuomag9/onlinetracker/internal/models"
)

const (
	maxBodyBytes  = 1 << 20
	requestPause  = 100 * time.Millisecond
	httpUserAgent = "OnlineTracker/1.0"
)

// HTTPDoer executes HTTP requests
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPChecker performs repeated HTTP GET checks against a URL
type HTTPChecker struct {
	client   HTTPDoer
	insecure HTTPDoer
	scheme   string
	pause    time.Duration
	now      func() time.Time
}

// NewHTTPChecker creates an HTTP checker. A nil client builds verifying and non-verifying
// default clients; an injected client is used for both.
func NewHTTPChecker(client HTTPDoer) *HTTPChecker {
	c := &HTTPChecker{client: client, insecure: client, scheme: "http", pause: requestPause, now: time.Now}
	if client == nil {
		c.client = newHTTPClient(false)
		c.insecure = newHTTPClient(true)
	}
	return c
}

func newHTTPClient(skipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipVerify}
	transport.DisableKeepAlives = true
	return &http.Client{Transport: transport}
}

// ForScheme returns a copy of the checker that prefixes scheme to targets without one
func (c *HTTPChecker) ForScheme(scheme string) *HTTPChecker {
	clone := *c
	clone.scheme = scheme
	return &clone
}

// WithPause returns a copy of the checker with a different pause between requests
func (c *HTTPChecker) WithPause(d time.Duration) *HTTPChecker {
	clone := *c
	clone.pause = d
	return &clone
}

// WithClock returns a copy of the checker timing requests with now
func (c *HTTPChecker) WithClock(now func() time.Time) *HTTPChecker {
	clone := *c
	clone.now = now
	return &clone
}

type httpAttempt struct {
	elapsed time.Duration
	status  int
	hash    string
	failure string
}

// Check issues cfg.RequestCount requests. Any failed request makes the probe down.
func (c *HTTPChecker) Check(ctx context.Context, target string, cfg Config) Result {
	url := NormalizeURL(target, c.scheme)
	if url == "" {
		return down("No URL specified")
	}

	client := c.insecure
	if cfg.VerifyTLS {
		client = c.client
	}

	var (
		total     time.Duration
		succeeded int
		failed    int
		lastFail  string
		hash      string
		status    int
	)

	for i := 0; i < cfg.RequestCount; i++ {
		if i > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.pause):
			}
		}
		if ctx.Err() != nil {
			failed += cfg.RequestCount - i
			lastFail = "Request timed out"
			break
		}

		attempt := c.attempt(ctx, client, url, cfg)
		if attempt.hash != "" {
			hash = attempt.hash
		}
		if attempt.failure != "" {
			failed++
			lastFail = attempt.failure
			continue
		}
		succeeded++
		total += attempt.elapsed
		status = attempt.status
	}

	var latency *int
	ms := 0
	if succeeded > 0 {
		ms = int(total / time.Duration(succeeded) / time.Millisecond)
		latency = intPtr(ms)
	}

	if failed > 0 {
		return Result{
			Severity:    models.SeverityDown,
			LatencyMs:   latency,
			Detail:      fmt.Sprintf("%d/%d requests failed: %s", failed, cfg.RequestCount, lastFail),
			ContentHash: hash,
		}
	}

	res := Result{
		Severity:    classifyLatency(ms, cfg.OKThresholdMs, cfg.DegradedThresholdMs),
		LatencyMs:   latency,
		Detail:      fmt.Sprintf("HTTP %d - %dms avg over %d requests", status, ms, succeeded),
		ContentHash: hash,
	}

	if cfg.ExpectedBodyHash != "" && !strings.EqualFold(cfg.ExpectedBodyHash, hash) {
		if res.Severity == models.SeverityUp {
			res.Severity = models.SeverityDegraded
		}
		res.Detail += ", content hash changed"
	}

	return res
}

func (c *HTTPChecker) attempt(ctx context.Context, client HTTPDoer, url string, cfg Config) httpAttempt {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return httpAttempt{failure: fmt.Sprintf("Failed to create request: %v", err)}
	}
	req.Header.Set("User-Agent", httpUserAgent)

	start := c.now()
	resp, err := client.Do(req)
	if err != nil {
		return httpAttempt{failure: fmt.Sprintf("Request failed: %v", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := c.now().Sub(start)
	if err != nil {
		return httpAttempt{failure: fmt.Sprintf("Failed to read response body: %v", err)}
	}

	sum := blake2b.Sum256(body)
	attempt := httpAttempt{elapsed: elapsed, status: resp.StatusCode, hash: hex.EncodeToString(sum[:])}

	switch {
	case cfg.ExpectedStatus != 0 && resp.StatusCode != cfg.ExpectedStatus:
		attempt.failure = fmt.Sprintf("Unexpected status code: %d (expected %d)", resp.StatusCode, cfg.ExpectedStatus)
	case cfg.ExpectedStatus == 0 && resp.StatusCode >= 400:
		attempt.failure = fmt.Sprintf("Unexpected status code: %d", resp.StatusCode)
	case cfg.ExpectedContent != "" && !strings.Contains(string(body), cfg.ExpectedContent):
		attempt.failure = fmt.Sprintf("Expected content %q not found", cfg.ExpectedContent)
	}

	return attempt
}
