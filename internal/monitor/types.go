package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// Kind selects the checker for a monitor
type Kind string

const (
	KindPing  Kind = models.MonitorTypePing
	KindHTTP  Kind = models.MonitorTypeHTTP
	KindHTTPS Kind = models.MonitorTypeHTTPS
	KindTLS   Kind = models.MonitorTypeTLS
)

// ParseKind maps a stored monitor type to a Kind
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPing, KindHTTP, KindHTTPS, KindTLS:
		return k, nil
	}
	return "", fmt.Errorf("unknown monitor type: %q", s)
}

// Result is what a checker reports for one probe. Probe failures are expressed here,
// never as Go errors.
type Result struct {
	Severity         models.Severity
	LatencyMs        *int
	Detail           string
	TLSDaysRemaining *int
	ContentHash      string
}

// Checker executes a single probe of one monitor type
type Checker interface {
	Check(ctx context.Context, target string, cfg Config) Result
}

// CheckerFunc adapts a function to the Checker interface
type CheckerFunc func(ctx context.Context, target string, cfg Config) Result

// Check calls f
func (f CheckerFunc) Check(ctx context.Context, target string, cfg Config) Result {
	return f(ctx, target, cfg)
}

// Registry is the lookup table from monitor kind to checker
type Registry map[Kind]Checker

// NewRegistry builds the production lookup table
func NewRegistry() Registry {
	httpChecker := NewHTTPChecker(nil)
	return Registry{
		KindPing:  NewPingChecker(nil),
		KindHTTP:  httpChecker.ForScheme("http"),
		KindHTTPS: httpChecker.ForScheme("https"),
		KindTLS:   NewTLSChecker(nil),
	}
}

// Lookup returns the checker for kind
func (r Registry) Lookup(kind Kind) (Checker, bool) {
	c, ok := r[kind]
	return c, ok
}

// Job is one unit of work for the executor
type Job struct {
	MonitorID int
	Name      string
	Kind      Kind
	Target    string
	Interval  time.Duration
	Config    Config
}

// JobFor builds the executor job for a stored monitor. A config decode error is returned
// together with a usable job built from the clamped config.
func JobFor(m *models.Monitor, d Defaults) (Job, error) {
	kind, err := ParseKind(m.Type)
	if err != nil {
		return Job{}, err
	}

	interval := d.Interval
	if m.Interval > 0 {
		interval = ClampInterval(m.Interval)
	}

	cfg, cfgErr := DecodeConfig(kind, m.Config, d)
	if cfg.Timeout > interval {
		cfg.Timeout = interval
	}
	return Job{
		MonitorID: m.ID,
		Name:      m.Name,
		Kind:      kind,
		Target:    m.Target,
		Interval:  interval,
		Config:    cfg,
	}, cfgErr
}

// ToCheckResult stamps a Result with its monitor, time and source
func (r Result) ToCheckResult(monitorID int, at time.Time, source string) models.CheckResult {
	return models.CheckResult{
		MonitorID:        monitorID,
		CheckedAt:        at,
		Severity:         r.Severity,
		LatencyMs:        r.LatencyMs,
		Detail:           r.Detail,
		TLSDaysRemaining: r.TLSDaysRemaining,
		ContentHash:      r.ContentHash,
		Source:           source,
	}
}

func down(format string, args ...interface{}) Result {
	return Result{Severity: models.SeverityDown, Detail: fmt.Sprintf(format, args...)}
}

func intPtr(v int) *int {
	return &v
}

// classifyLatency applies the two-tier latency thresholds shared by ping and http
func classifyLatency(ms, okMs, degradedMs int) models.Severity {
	switch {
	case ms <= okMs:
		return models.SeverityUp
	case ms <= degradedMs:
		return models.SeverityDegraded
	default:
		return models.SeverityDown
	}
}
