package alert

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	htmltemplate "html/template"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"text/template"
	"time"

	"logsentry/internal/model"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"
)

const (
	EmailProviderSMTP   = "smtp"
	EmailProviderResend = "resend"
)

// EmailMessage is a rendered alert email ready for a transport.
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// EmailTransport delivers rendered messages.
type EmailTransport interface {
	Name() string
	Deliver(ctx context.Context, msg *EmailMessage) error
}

type EmailConfig struct {
	Provider     string
	Host         string
	Port         int
	Username     string
	Password     string
	From         string
	Recipients   []string
	ResendAPIKey string
	Severities   []model.Severity
}

// EmailNotifier sends alerts as multipart plain text and HTML email.
type EmailNotifier struct {
	Policy

	from       string
	recipients []string
	transport  EmailTransport
	logger     *logrus.Logger
}

func NewEmailNotifier(cfg EmailConfig, logger *logrus.Logger) *EmailNotifier {
	var transport EmailTransport
	switch strings.ToLower(cfg.Provider) {
	case EmailProviderResend:
		if cfg.ResendAPIKey != "" {
			transport = newResendTransport(cfg.ResendAPIKey)
		}
	default:
		if cfg.Host != "" {
			transport = newSMTPTransport(cfg)
		}
	}
	return NewEmailNotifierWithTransport(cfg, transport, logger)
}

func NewEmailNotifierWithTransport(cfg EmailConfig, transport EmailTransport, logger *logrus.Logger) *EmailNotifier {
	en := &EmailNotifier{
		Policy:     Policy{Enabled: true, Severities: cfg.Severities},
		from:       cfg.From,
		recipients: cleanRecipients(cfg.Recipients),
		transport:  transport,
		logger:     logger,
	}
	if en.from == "" {
		en.from = cfg.Username
	}
	if en.transport == nil || en.from == "" || len(en.recipients) == 0 {
		logger.Warn("Email notifications not configured: missing server, sender or recipients")
		en.Enabled = false
	}
	return en
}

func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

func (en *EmailNotifier) Name() string {
	return "email"
}

func (en *EmailNotifier) Send(ctx context.Context, alert model.Alert) error {
	if !en.Enabled {
		return ErrNotConfigured
	}

	msg, err := en.render(alert)
	if err != nil {
		return err
	}
	if err := en.transport.Deliver(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", en.transport.Name(), err)
	}

	en.logger.Infof("Email alert sent: %s to %d recipients", alert.RuleName, len(en.recipients))
	return nil
}

func (en *EmailNotifier) render(alert model.Alert) (*EmailMessage, error) {
	data := emailData{
		RuleName:    orDefault(alert.RuleName, "Security Alert"),
		Severity:    strings.ToUpper(orDefault(string(alert.Severity), "unknown")),
		Timestamp:   formatTimestamp(alert.Timestamp),
		SourceIP:    orDefault(alert.SourceIP, "Unknown"),
		Description: orDefault(alert.Description, "No description available"),
		Color:       SeverityColor(alert.Severity),
	}

	var text, html bytes.Buffer
	if err := textBodyTemplate.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render email text: %w", err)
	}
	if err := htmlBodyTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render email html: %w", err)
	}

	return &EmailMessage{
		From:    en.from,
		To:      en.recipients,
		Subject: "LogSentry Alert: " + data.RuleName,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

type emailData struct {
	RuleName    string
	Severity    string
	Timestamp   string
	SourceIP    string
	Description string
	Color       string
}

var textBodyTemplate = template.Must(template.New("email_text").Parse(`LOGSENTRY SECURITY ALERT

Severity: {{.Severity}}
Alert: {{.RuleName}}
Time: {{.Timestamp}}
Source IP: {{.SourceIP}}

Description:
{{.Description}}

---
This is an automated alert from LogSentry SIEM.
Please investigate and acknowledge this alert in the dashboard.
`))

var htmlBodyTemplate = htmltemplate.Must(htmltemplate.New("email_html").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background-color: #f3f4f6; margin: 0; padding: 20px;">
  <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px;">
    <div style="background-color: {{.Color}}; color: #ffffff; padding: 20px; border-radius: 8px 8px 0 0;">
      <h1 style="margin: 0;">Security Alert</h1>
      <p style="margin: 5px 0 0 0;">{{.RuleName}}</p>
    </div>
    <div style="padding: 20px;">
      <p><strong>Severity</strong><br><span style="color: {{.Color}}; font-weight: bold;">{{.Severity}}</span></p>
      <p><strong>Timestamp</strong><br>{{.Timestamp}}</p>
      <p><strong>Source IP</strong><br>{{.SourceIP}}</p>
      <p><strong>Description</strong><br>{{.Description}}</p>
    </div>
    <div style="background-color: #f9fafb; padding: 15px; text-align: center; font-size: 12px; color: #6b7280;">
      <p>This is an automated alert from <strong>LogSentry SIEM</strong></p>
      <p>Please investigate and acknowledge this alert in your dashboard.</p>
    </div>
  </div>
</body>
</html>
`))

// buildMIME encodes msg as a multipart/alternative message.
func buildMIME(msg *EmailMessage) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", msg.From)
	fmt.Fprintf(&out, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(&out, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

type smtpTransport struct {
	host     string
	port     int
	username string
	password string
}

func newSMTPTransport(cfg EmailConfig) *smtpTransport {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &smtpTransport{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
	}
}

func (t *smtpTransport) Name() string {
	return EmailProviderSMTP
}

// Deliver uses implicit TLS on port 465 and STARTTLS elsewhere when offered.
func (t *smtpTransport) Deliver(ctx context.Context, msg *EmailMessage) error {
	data, err := buildMIME(msg)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{ServerName: t.host}
	if t.port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if t.port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if t.username != "" && t.password != "" {
		auth := smtp.PlainAuth("", t.username, t.password, t.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("failed to set sender %s: %w", msg.From, err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

type resendSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type resendTransport struct {
	emails resendSender
}

func newResendTransport(apiKey string) *resendTransport {
	client := resend.NewClient(apiKey)
	return &resendTransport{emails: client.Emails}
}

func (t *resendTransport) Name() string {
	return EmailProviderResend
}

func (t *resendTransport) Deliver(ctx context.Context, msg *EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.emails.Send(&resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	})
	return err
}
