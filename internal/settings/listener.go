package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ChangeChannel is the Postgres notification channel fired by the settings trigger
const ChangeChannel = "settings_changed"

// Listener waits for settings change notifications and calls onChange with the changed key
type Listener struct {
	dsn      string
	channel  string
	onChange func(key string)
	retry    time.Duration
	logger   *zap.Logger
}

// NewListener creates a listener on ChangeChannel
func NewListener(dsn string, onChange func(key string), logger *zap.Logger) *Listener {
	return &Listener{
		dsn:      dsn,
		channel:  ChangeChannel,
		onChange: onChange,
		retry:    5 * time.Second,
		logger:   logger,
	}
}

// Run listens until ctx is done, reconnecting after failures
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("settings listener disconnected", zap.Error(err), zap.Duration("retry_in", l.retry))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}

	// Changes made while disconnected were missed
	l.onChange("")
	l.logger.Info("listening for settings changes", zap.String("channel", l.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.logger.Debug("settings changed", zap.String("key", n.Payload))
		l.onChange(n.Payload)
	}
}
