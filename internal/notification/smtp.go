package notification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/fuomag9/onlinetracker/internal/models"
)

type smtpConfig struct {
	Host     string `mapstructure:"smtp_host"`
	Port     int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"smtp_username"`
	Password string `mapstructure:"smtp_password"`
	From     string `mapstructure:"from_email"`
	To       string `mapstructure:"to_email"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

func (c *smtpConfig) check() error {
	var missing []string
	for _, f := range [][2]string{{"smtp_host", c.Host}, {"from_email", c.From}, {"to_email", c.To}} {
		if f[1] == "" {
			missing = append(missing, f[0])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing SMTP settings: %s", strings.Join(missing, ", "))
	}
	if c.Port == 0 {
		c.Port = 25
		if c.UseTLS {
			c.Port = 587
		}
	}
	return nil
}

func (c *smtpConfig) recipients() []string {
	var out []string
	for _, r := range strings.Split(c.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SMTPProvider mails the plain-text alert report
type SMTPProvider struct {
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func init() {
	RegisterProvider(&SMTPProvider{send: smtp.SendMail})
}

func (s *SMTPProvider) Name() string {
	return "smtp"
}

func (s *SMTPProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	var cfg smtpConfig
	if err := decodeChannelConfig(notification.Config, &cfg); err != nil {
		return err
	}
	if err := cfg.check(); err != nil {
		return err
	}

	to := cfg.recipients()
	if len(to) == 0 {
		return errors.New("to_email has no recipients")
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mail := buildMail(cfg.From, to, message)

	// smtp.SendMail takes no context
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.send(addr, auth, cfg.From, to, mail)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mail to %s via %s failed: %w", strings.Join(to, ","), addr, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mail via %s abandoned: %w", addr, ctx.Err())
	}
}

func buildMail(from string, to []string, message *Message) []byte {
	var b strings.Builder
	headers := [][2]string{
		{"From", from},
		{"To", strings.Join(to, ", ")},
		{"Subject", message.Title},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	}
	if message.Important {
		headers = append(headers, [2]string{"X-Priority", "1"})
	}
	for _, h := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h[0], h[1])
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(message.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func (s *SMTPProvider) Validate(config map[string]interface{}) error {
	var cfg smtpConfig
	if err := decodeChannelConfig(config, &cfg); err != nil {
		return err
	}
	return cfg.check()
}
