package uptime

import (
	"context"
	"time"

	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/store"
)

// Calculator calculates uptime statistics for monitors
type Calculator struct {
	results store.Results
	now     func() time.Time
}

// NewCalculator creates a new uptime calculator
func NewCalculator(results store.Results) *Calculator {
	return &Calculator{results: results, now: time.Now}
}

// UptimeStats represents uptime statistics for a monitor
type UptimeStats struct {
	MonitorID        int      `json:"monitor_id"`
	UptimePercentage float64  `json:"uptime_percentage"`
	TotalChecks      int      `json:"total_checks"`
	UpChecks         int      `json:"up_checks"`
	DegradedChecks   int      `json:"degraded_checks"`
	DownChecks       int      `json:"down_checks"`
	UnknownChecks    int      `json:"unknown_checks"`
	AverageLatencyMs *float64 `json:"average_latency_ms"`
	StartTime        string   `json:"start_time,omitempty"`
	EndTime          string   `json:"end_time,omitempty"`
}

// Summarize aggregates a slice of results. Degraded checks count as available; unknown
// checks are excluded from the percentage.
func Summarize(results []models.CheckResult) UptimeStats {
	var stats UptimeStats
	var latencySum, latencyCount int

	for _, r := range results {
		stats.TotalChecks++
		switch r.Severity {
		case models.SeverityUp:
			stats.UpChecks++
		case models.SeverityDegraded:
			stats.DegradedChecks++
		case models.SeverityDown:
			stats.DownChecks++
		default:
			stats.UnknownChecks++
		}
		if r.LatencyMs != nil && r.Severity != models.SeverityDown {
			latencySum += *r.LatencyMs
			latencyCount++
		}
		if stats.MonitorID == 0 {
			stats.MonitorID = r.MonitorID
		}
	}

	if counted := stats.TotalChecks - stats.UnknownChecks; counted > 0 {
		stats.UptimePercentage = float64(stats.UpChecks+stats.DegradedChecks) / float64(counted) * 100
	}
	if latencyCount > 0 {
		avg := float64(latencySum) / float64(latencyCount)
		stats.AverageLatencyMs = &avg
	}
	return stats
}

// Calculate24HourUptime calculates uptime for the last 24 hours
func (c *Calculator) Calculate24HourUptime(ctx context.Context, monitorID int) (*UptimeStats, error) {
	return c.CalculateUptimeForPeriod(ctx, monitorID, 24*time.Hour)
}

// Calculate7DayUptime calculates uptime for the last 7 days
func (c *Calculator) Calculate7DayUptime(ctx context.Context, monitorID int) (*UptimeStats, error) {
	return c.CalculateUptimeForPeriod(ctx, monitorID, 7*24*time.Hour)
}

// Calculate30DayUptime calculates uptime for the last 30 days
func (c *Calculator) Calculate30DayUptime(ctx context.Context, monitorID int) (*UptimeStats, error) {
	return c.CalculateUptimeForPeriod(ctx, monitorID, 30*24*time.Hour)
}

// CalculateUptimeForPeriod calculates uptime for the period ending now
func (c *Calculator) CalculateUptimeForPeriod(ctx context.Context, monitorID int, duration time.Duration) (*UptimeStats, error) {
	endTime := c.now().UTC()
	return c.CalculateUptimeForTimeRange(ctx, monitorID, endTime.Add(-duration), endTime)
}

// CalculateUptimeForTimeRange calculates uptime between two specific times
func (c *Calculator) CalculateUptimeForTimeRange(ctx context.Context, monitorID int, startTime, endTime time.Time) (*UptimeStats, error) {
	results, err := c.results.ResultRange(ctx, monitorID, startTime, endTime.Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}

	stats := Summarize(results)
	stats.MonitorID = monitorID
	stats.StartTime = startTime.Format(time.RFC3339)
	stats.EndTime = endTime.Format(time.RFC3339)
	return &stats, nil
}
