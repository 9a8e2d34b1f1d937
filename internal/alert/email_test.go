package alert

import (
	"context"
	"errors"
	"strings"
	"testing"

	"logsentry/internal/model"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	sent []*EmailMessage
	err  error
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Deliver(_ context.Context, msg *EmailMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func newTestEmail(transport EmailTransport) *EmailNotifier {
	return NewEmailNotifierWithTransport(EmailConfig{
		From:       "siem@example.com",
		Recipients: []string{"soc@example.com", " ", "admin@example.com "},
	}, transport, testLogger())
}

func TestEmailRendersBothBodies(t *testing.T) {
	transport := &fakeTransport{}
	en := newTestEmail(transport)

	require.NoError(t, en.Send(context.Background(), sampleAlert(model.SeverityCritical)))
	require.Len(t, transport.sent, 1)

	msg := transport.sent[0]
	assert.Equal(t, "LogSentry Alert: brute_force", msg.Subject)
	assert.Equal(t, []string{"soc@example.com", "admin@example.com"}, msg.To)
	assert.Contains(t, msg.Text, "Severity: CRITICAL")
	assert.Contains(t, msg.Text, "Source IP: 10.0.0.5")
	assert.Contains(t, msg.HTML, "#dc2626")
	assert.Contains(t, msg.HTML, "Multiple failed logins from 10.0.0.5")
}

func TestEmailEscapesHTML(t *testing.T) {
	transport := &fakeTransport{}
	en := newTestEmail(transport)

	a := sampleAlert(model.SeverityHigh)
	a.Description = "<script>alert(1)</script>"
	require.NoError(t, en.Send(context.Background(), a))
	assert.NotContains(t, transport.sent[0].HTML, "<script>")
	assert.Contains(t, transport.sent[0].Text, "<script>")
}

func TestEmailTransportError(t *testing.T) {
	en := newTestEmail(&fakeTransport{err: errors.New("connection refused")})
	err := en.Send(context.Background(), sampleAlert(model.SeverityHigh))
	assert.ErrorContains(t, err, "connection refused")
}

func TestEmailDisabledWhenIncomplete(t *testing.T) {
	tests := []struct {
		name      string
		cfg       EmailConfig
		transport EmailTransport
	}{
		{"no transport", EmailConfig{From: "a@b.c", Recipients: []string{"x@y.z"}}, nil},
		{"no sender", EmailConfig{Recipients: []string{"x@y.z"}}, &fakeTransport{}},
		{"no recipients", EmailConfig{From: "a@b.c"}, &fakeTransport{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en := NewEmailNotifierWithTransport(tt.cfg, tt.transport, testLogger())
			assert.False(t, en.Enabled)
			assert.ErrorIs(t, en.Send(context.Background(), sampleAlert(model.SeverityHigh)), ErrNotConfigured)
		})
	}

	en := NewEmailNotifier(EmailConfig{From: "a@b.c", Recipients: []string{"x@y.z"}}, testLogger())
	assert.False(t, en.Enabled)
}

func TestBuildMIME(t *testing.T) {
	data, err := buildMIME(&EmailMessage{
		From:    "siem@example.com",
		To:      []string{"soc@example.com", "admin@example.com"},
		Subject: "LogSentry Alert: brute_force",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
	})
	require.NoError(t, err)

	raw := string(data)
	assert.Contains(t, raw, "To: soc@example.com, admin@example.com\r\n")
	assert.Contains(t, raw, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, raw, "text/plain; charset=UTF-8")
	assert.Contains(t, raw, "text/html; charset=UTF-8")
	assert.Less(t, strings.Index(raw, "plain body"), strings.Index(raw, "<p>html body</p>"))
}

type fakeResend struct {
	req *resend.SendEmailRequest
}

func (f *fakeResend) Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.req = params
	return &resend.SendEmailResponse{Id: "re_123"}, nil
}

func TestResendTransport(t *testing.T) {
	fake := &fakeResend{}
	transport := &resendTransport{emails: fake}
	en := newTestEmail(transport)

	require.NoError(t, en.Send(context.Background(), sampleAlert(model.SeverityHigh)))
	require.NotNil(t, fake.req)
	assert.Equal(t, "siem@example.com", fake.req.From)
	assert.Equal(t, "LogSentry Alert: brute_force", fake.req.Subject)
	assert.NotEmpty(t, fake.req.Html)
	assert.NotEmpty(t, fake.req.Text)
}
