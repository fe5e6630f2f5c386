package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/models"
	"github.com/fuomag9/onlinetracker/internal/store"
)

const sendTimeout = 30 * time.Second

// Dispatcher handles sending notifications. It implements alert.Sink.
type Dispatcher struct {
	channels store.Notifications
	lookup   func(name string) (Provider, bool)
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(channels store.Notifications, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channels: channels, lookup: GetProvider, logger: logger}
}

// Emit delivers ev to the monitor's channels in the background. Failures are logged and
// never retried.
func (d *Dispatcher) Emit(ctx context.Context, ev alert.Event) {
	msg := MessageFromEvent(ev)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		if err := d.sendMonitorNotifications(ctx, ev.MonitorID, msg); err != nil {
			d.logger.Warn("notification delivery incomplete",
				zap.Int("monitor_id", ev.MonitorID), zap.String("kind", ev.Kind), zap.Error(err))
		}
	}()
}

// Wait blocks until every pending delivery has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// MessageFromEvent renders an alert event into a message
func MessageFromEvent(ev alert.Event) *Message {
	msg := &Message{
		Kind:        ev.Kind,
		MonitorID:   ev.MonitorID,
		MonitorName: ev.MonitorName,
		MonitorType: ev.MonitorType,
		Target:      ev.Target,
		Runner:      ev.Runner,
		Status:      string(ev.NewStatus),
		PriorStatus: string(ev.PriorStatus),
		Detail:      ev.Detail,
		Failures:    ev.ConsecutiveFailures,
		Time:        formatTime(ev.Timestamp),
		Important:   ev.Kind != models.AlertKindRestored,
		history:     ev.History,
	}
	if ev.Kind == models.AlertKindRestored {
		msg.Failures = 0
	}
	msg.Title = Subject(msg)
	msg.Body = FormatMessage(msg)
	return msg
}

// sendMonitorNotifications sends notifications to all configured providers for a monitor
func (d *Dispatcher) sendMonitorNotifications(ctx context.Context, monitorID int, msg *Message) error {
	notifications, err := d.channels.NotificationsFor(ctx, monitorID)
	if err != nil {
		return fmt.Errorf("failed to get monitor notifications: %w", err)
	}
	if len(notifications) == 0 {
		d.logger.Debug("no notification channels configured", zap.Int("monitor_id", monitorID))
		return nil
	}

	// Send to all notifications concurrently
	errCh := make(chan error, len(notifications))
	for i := range notifications {
		go func(n *models.Notification) {
			if err := d.sendNotification(ctx, n, msg); err != nil {
				d.logger.Warn("failed to send notification",
					zap.String("type", n.Type), zap.String("name", n.Name), zap.Error(err))
				errCh <- fmt.Errorf("%s: %w", n.Name, err)
				return
			}
			errCh <- nil
		}(&notifications[i])
	}

	var failed []string
	for range notifications {
		if err := <-errCh; err != nil {
			failed = append(failed, err.Error())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to send %d/%d notifications: %s", len(failed), len(notifications), strings.Join(failed, "; "))
	}
	return nil
}

// sendNotification sends a notification using the appropriate provider
func (d *Dispatcher) sendNotification(ctx context.Context, notif *models.Notification, msg *Message) error {
	if !notif.Active {
		return nil
	}

	provider, ok := d.lookup(notif.Type)
	if !ok {
		return fmt.Errorf("unknown notification provider: %s", notif.Type)
	}

	return provider.Send(ctx, notif, msg)
}

// TestNotification sends a test notification
func (d *Dispatcher) TestNotification(ctx context.Context, notif *models.Notification) error {
	msg := &Message{
		Kind:        models.AlertKindAlert,
		MonitorName: "Test Monitor",
		MonitorType: models.MonitorTypeHTTP,
		Runner:      "server",
		Status:      string(models.SeverityUp),
		Detail:      "This is a test notification from OnlineTracker.",
		Time:        formatTime(time.Now()),
	}
	msg.Title = Subject(msg)
	msg.Body = FormatMessage(msg)

	return d.sendNotification(ctx, notif, msg)
}
