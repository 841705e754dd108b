package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/beekhof/ics-calendar-sync/internal/config"
	"github.com/beekhof/ics-calendar-sync/internal/logging"
)

// AlertType represents the type of alert.
type AlertType string

const (
	AlertTypeFailure AlertType = "failure"
	AlertTypeSuccess AlertType = "success"
)

const implicitTLSPort = 465

// Alert represents a notification about a sync run.
type Alert struct {
	Type      AlertType
	RunID     string
	Message   string
	Details   string
	Timestamp time.Time
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier delivers alerts to a webhook and/or by email.
type Notifier struct {
	webhookURL string
	smtp       config.SMTPConfig
	httpClient *http.Client
	sendMail   SendMailFunc
	logger     *slog.Logger
}

// New creates a Notifier from the loaded configuration. Channels without
// settings are disabled.
func New(cfg *config.Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		webhookURL: cfg.WebhookURL,
		smtp:       cfg.SMTP,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sendMail:   smtp.SendMail,
		logger:     logging.WithOperation(logger, "notify"),
	}
}

// WithHTTPClient replaces the webhook HTTP client.
func (n *Notifier) WithHTTPClient(c *http.Client) *Notifier {
	n.httpClient = c
	return n
}

// WithSendMail replaces the SMTP transport used for STARTTLS/plain delivery.
func (n *Notifier) WithSendMail(f SendMailFunc) *Notifier {
	n.sendMail = f
	return n
}

// IsEnabled returns true if any notification method is configured.
func (n *Notifier) IsEnabled() bool {
	return n.webhookURL != "" || n.smtp.Host != ""
}

// Send delivers alert on every configured channel. Each channel is attempted
// even when another fails; the returned error joins the individual failures.
func (n *Notifier) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var errs []error
	if n.webhookURL != "" {
		if err := n.sendWebhook(ctx, alert); err != nil {
			n.logger.Warn("webhook delivery failed", logging.Err(err))
			errs = append(errs, err)
		}
	}
	if n.smtp.Host != "" && len(n.smtp.To) > 0 {
		if err := n.sendEmail(alert); err != nil {
			n.logger.Warn("email delivery failed", logging.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookPayload is the JSON payload sent to webhooks.
type WebhookPayload struct {
	AlertType string `json:"alert_type"`
	RunID     string `json:"run_id"`
	Message   string `json:"message"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	// Slack-compatible fields
	Text string `json:"text,omitempty"`
}

func (n *Notifier) sendWebhook(ctx context.Context, alert Alert) error {
	emoji := ":x:"
	if alert.Type == AlertTypeSuccess {
		emoji = ":white_check_mark:"
	}

	payload := WebhookPayload{
		AlertType: string(alert.Type),
		RunID:     alert.RunID,
		Message:   alert.Message,
		Details:   alert.Details,
		Timestamp: alert.Timestamp.Format(time.RFC3339),
		Text:      fmt.Sprintf("%s *%s*\n%s", emoji, alert.Message, alert.Details),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Info("webhook sent", logging.URL(n.webhookURL))
	return nil
}

// sanitizeForEmail strips characters that could inject headers.
func sanitizeForEmail(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func (n *Notifier) buildMessage(alert Alert) []byte {
	message := sanitizeForEmail(alert.Message)
	subject := fmt.Sprintf("[icssync] %s", message)

	var body strings.Builder
	fmt.Fprintf(&body, "Result: %s\n", alert.Type)
	fmt.Fprintf(&body, "Run ID: %s\n", alert.RunID)
	fmt.Fprintf(&body, "Time: %s\n\n", alert.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&body, "%s\n\n%s\n", message, alert.Details)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		n.smtp.From, strings.Join(n.smtp.To, ", "), subject, body.String())
	return []byte(msg)
}

func (n *Notifier) sendEmail(alert Alert) error {
	addr := fmt.Sprintf("%s:%d", n.smtp.Host, n.smtp.Port)

	var auth smtp.Auth
	if n.smtp.Username != "" {
		auth = smtp.PlainAuth("", n.smtp.Username, n.smtp.Password, n.smtp.Host)
	}

	msg := n.buildMessage(alert)
	var err error
	if n.smtp.Port == implicitTLSPort {
		err = n.sendEmailTLS(addr, auth, msg)
	} else {
		err = n.sendMail(addr, auth, n.smtp.From, n.smtp.To, msg)
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent", slog.Int("recipients", len(n.smtp.To)))
	return nil
}

// sendEmailTLS sends email over implicit TLS (port 465).
func (n *Notifier) sendEmailTLS(addr string, auth smtp.Auth, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.smtp.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("dial TLS: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.smtp.Host)
	if err != nil {
		return fmt.Errorf("create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(n.smtp.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, recipient := range n.smtp.To {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("rcpt to %s: %w", recipient, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return client.Quit()
}
