package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/uptime"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send sends a notification with the given message
	Send(ctx context.Context, notification *models.Notification, message *Message) error

	// Validate validates the provider configuration
	Validate(config map[string]interface{}) error
}

// Message represents a notification message to be sent
type Message struct {
	Kind        string `json:"kind"` // alert, reminder, restored
	Title       string `json:"title"`
	Body        string `json:"body"`
	MonitorID   int    `json:"monitor_id"`
	MonitorName string `json:"monitor_name"`
	MonitorType string `json:"monitor_type"`
	Target      string `json:"target"`
	Runner      string `json:"runner"`
	Status      string `json:"status"`
	PriorStatus string `json:"prior_status"`
	Detail      string `json:"detail"`
	Failures    int    `json:"consecutive_failures"`
	Time        string `json:"time"`
	Important   bool   `json:"important"`

	history []models.CheckResult
}

// Registry holds all registered notification providers
var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// GetAllProviders returns all registered providers
func GetAllProviders() map[string]Provider {
	mu.RLock()
	defer mu.RUnlock()
	result := make(map[string]Provider)
	for k, v := range providers {
		result[k] = v
	}
	return result
}

// Subject builds the one-line summary used as email subject and message title
func Subject(msg *Message) string {
	runner := msg.Runner
	if runner == "" || runner == "server" {
		runner = "Server"
	}
	status := strings.ToUpper(msg.Status)
	if msg.Kind == models.AlertKindReminder {
		status = "STILL " + status
	}
	return fmt.Sprintf("%s - %s - %s - %s", status, msg.MonitorName, runner, msg.MonitorType)
}

// FormatMessage formats a notification message as a plain-text report
func FormatMessage(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "OnlineTracker %s Report\n", strings.ToUpper(msg.Status))
	b.WriteString(strings.Repeat("=", 40) + "\n\n")
	fmt.Fprintf(&b, "Monitor: %s\n", msg.MonitorName)
	fmt.Fprintf(&b, "Type: %s\n", msg.MonitorType)
	fmt.Fprintf(&b, "Target: %s\n", msg.Target)
	fmt.Fprintf(&b, "Status: %s\n", strings.ToUpper(msg.Status))
	if msg.PriorStatus != "" && msg.PriorStatus != msg.Status {
		fmt.Fprintf(&b, "Previous: %s\n", strings.ToUpper(msg.PriorStatus))
	}
	if msg.Failures > 0 {
		fmt.Fprintf(&b, "Consecutive failures: %d\n", msg.Failures)
	}
	fmt.Fprintf(&b, "Time: %s\n", msg.Time)
	if msg.Detail != "" {
		fmt.Fprintf(&b, "Details: %s\n", msg.Detail)
	}

	if len(msg.history) > 0 {
		stats := uptime.Summarize(msg.history)
		b.WriteString("\nLast 24 hours:\n")
		fmt.Fprintf(&b, "  Checks: %d (up %d, degraded %d, down %d)\n",
			stats.TotalChecks, stats.UpChecks, stats.DegradedChecks, stats.DownChecks)
		fmt.Fprintf(&b, "  Uptime: %.2f%%\n", stats.UptimePercentage)
		if stats.AverageLatencyMs != nil {
			fmt.Fprintf(&b, "  Average latency: %.0fms\n", *stats.AverageLatencyMs)
		}
		b.WriteString(formatRecent(msg.history, 10))
	}

	b.WriteString("\n--\nOnlineTracker Monitoring System\n")
	return b.String()
}

func formatRecent(history []models.CheckResult, n int) string {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	var b strings.Builder
	b.WriteString("\nRecent checks:\n")
	for i := len(history) - 1; i >= 0; i-- {
		r := history[i]
		fmt.Fprintf(&b, "  %s: %s", r.CheckedAt.UTC().Format("2006-01-02 15:04:05"), strings.ToUpper(string(r.Severity)))
		if r.LatencyMs != nil {
			fmt.Fprintf(&b, " (%dms)", *r.LatencyMs)
		}
		if r.Detail != "" {
			fmt.Fprintf(&b, " - %s", r.Detail)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// decodeChannelConfig decodes a channel's JSON config into out, accepting numbers and
// booleans stored as strings
func decodeChannelConfig(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid channel config: %w", err)
	}
	return nil
}
