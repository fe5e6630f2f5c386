package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"

	"github.com/fuomag9/onlinetracker/internal/models"
)

// Pinger is the part of *ping.Pinger the ping checker drives
type Pinger interface {
	Run() error
	Stop()
	Statistics() *ping.Statistics
}

// PingerFactory creates a configured pinger for host
type PingerFactory func(host string, count int, interval, timeout time.Duration, privileged bool) (Pinger, error)

// PingChecker performs ICMP echo checks
type PingChecker struct {
	newPinger PingerFactory
}

// NewPingChecker creates a ping checker. A nil factory uses go-ping.
func NewPingChecker(factory PingerFactory) *PingChecker {
	if factory == nil {
		factory = newGoPinger
	}
	return &PingChecker{newPinger: factory}
}

func newGoPinger(host string, count int, interval, timeout time.Duration, privileged bool) (Pinger, error) {
	p, err := ping.NewPinger(host)
	if err != nil {
		return nil, err
	}
	p.Count = count
	p.Interval = interval
	p.Timeout = timeout
	p.SetPrivileged(privileged)
	return p, nil
}

// Check sends cfg.PingCount echo requests to target
func (c *PingChecker) Check(ctx context.Context, target string, cfg Config) Result {
	host := HostOnly(target)
	if host == "" {
		return down("No host specified")
	}

	timeout := cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return down("Ping timed out before start")
	}

	// Squeeze the send interval so every echo fits inside the timeout
	interval := time.Second
	if time.Duration(cfg.PingCount)*interval >= timeout {
		interval = timeout / time.Duration(cfg.PingCount+1)
	}

	pinger, err := c.newPinger(host, cfg.PingCount, interval, timeout, cfg.Privileged)
	if err != nil {
		return down("Failed to create pinger: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			return down("Ping failed: %v", err)
		}
	case <-ctx.Done():
		// Partial replies still count, stop and evaluate what arrived
		pinger.Stop()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	return evaluatePing(pinger.Statistics(), cfg)
}

// evaluatePing derives the severity from ping statistics
func evaluatePing(stats *ping.Statistics, cfg Config) Result {
	if stats == nil {
		return down("No ping statistics")
	}

	sent := cfg.PingCount
	received := stats.PacketsRecv
	if received > sent {
		received = sent
	}

	if received == 0 {
		return down("No reply (0/%d packets answered)", sent)
	}

	mean := stats.AvgRtt
	if len(stats.Rtts) > 0 {
		var total time.Duration
		for _, rtt := range stats.Rtts {
			total += rtt
		}
		mean = total / time.Duration(len(stats.Rtts))
	}
	ms := int(mean / time.Millisecond)

	if received*2 < sent {
		return Result{
			Severity:  models.SeverityDown,
			LatencyMs: intPtr(ms),
			Detail:    fmt.Sprintf("High packet loss: %d/%d packets answered, %dms avg", received, sent, ms),
		}
	}

	return Result{
		Severity:  classifyLatency(ms, cfg.OKThresholdMs, cfg.DegradedThresholdMs),
		LatencyMs: intPtr(ms),
		Detail:    fmt.Sprintf("%d/%d packets answered, %dms avg", received, sent, ms),
	}
}
