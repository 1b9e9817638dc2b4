// Package mailer delivers out-of-band messages: welcome notes and password
// reset links.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"text/template"
	"time"
)

type Recipient struct {
	Name  string
	Email string
}

// Mailer must not retain the reset URL after returning.
type Mailer interface {
	SendWelcome(ctx context.Context, to Recipient, profileURL string) error
	SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error
}

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(
		`Welcome, {{.Name}}!

Your account is ready. You can review your profile at {{.URL}}.
`))

	resetTemplate = template.Must(template.New("reset").Parse(
		`Hi {{.Name}},

Forgot your password? Submit a PATCH request with your new password and
password_confirm to: {{.URL}}

The link is valid for {{.ValidFor}}. If you didn't forget your password,
please ignore this email.
`))
)

type messageData struct {
	Name     string
	URL      string
	ValidFor string
}

func render(tmpl *template.Template, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendWelcome(ctx context.Context, to Recipient, profileURL string) error {
	body, err := render(welcomeTemplate, messageData{Name: firstName(to.Name), URL: profileURL})
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, "Welcome aboard", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error {
	body, err := render(resetTemplate, messageData{Name: firstName(to.Name), URL: resetURL, ValidFor: validFor.String()})
	if err != nil {
		return err
	}
	return m.deliver(ctx, to, "Your password reset token", body)
}

func (m *SMTPMailer) deliver(ctx context.Context, to Recipient, subject string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, []string{to.Email}, buildMessage(m.cfg.From, to.Email, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return msg.Bytes()
}

// LogMailer writes messages to the log instead of sending them. Intended for
// local development.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger.With("component", "mailer")}
}

func (m *LogMailer) SendWelcome(ctx context.Context, to Recipient, profileURL string) error {
	m.logger.InfoContext(ctx, "welcome email", "to", to.Email, "profile_url", profileURL)
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to Recipient, resetURL string, validFor time.Duration) error {
	// The link carries the reset token, so only where it points is logged.
	m.logger.InfoContext(ctx, "password reset email", "to", to.Email, "reset_origin", resetOrigin(resetURL), "valid_for", validFor)
	return nil
}

// resetOrigin drops the path, and with it the token, from a reset link.
func resetOrigin(resetURL string) string {
	u, err := url.Parse(resetURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
