package services

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	mu     sync.Mutex
	inputs []*ses.SendEmailInput
	err    error
	sent   chan struct{}
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, params)
	m.mu.Unlock()
	defer func() { m.sent <- struct{}{} }()

	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func waitSent(t *testing.T, ch chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not sent")
	}
}

func TestSESNotifier_SendsInBackground(t *testing.T) {
	api := &mockSES{sent: make(chan struct{}, 1)}
	n := &SESNotifier{client: api, fromAddress: "security@scamnemesis.com", appName: "Scamnemesis", logger: testLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	n.NotifySecurityChange(ctx, "user@example.com", NotifyTwoFactorDisabled, "10.0.0.1")
	// The request context ending must not abort the send
	cancel()
	waitSent(t, api.sent)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.inputs, 1)
	input := api.inputs[0]
	assert.Equal(t, "security@scamnemesis.com", aws.ToString(input.Source))
	assert.Equal(t, []string{"user@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "Two-factor authentication disabled - Scamnemesis", aws.ToString(input.Message.Subject.Data))
	assert.Contains(t, aws.ToString(input.Message.Body.Text.Data), "10.0.0.1")
}

func TestSESNotifier_SendFailureIsLogged(t *testing.T) {
	var buf safeBuffer
	api := &mockSES{sent: make(chan struct{}, 1), err: errors.New("throttled")}
	n := &SESNotifier{client: api, fromAddress: "a@b.c", appName: "X", logger: slog.New(slog.NewTextHandler(&buf, nil))}

	n.NotifySecurityChange(context.Background(), "user@example.com", NotifyBackupCodesRegenerated, "")
	waitSent(t, api.sent)

	assert.Eventually(t, func() bool {
		return bytes.Contains(buf.Bytes(), []byte("throttled"))
	}, time.Second, 10*time.Millisecond)
	assert.NotContains(t, buf.String(), "user@example.com", "emails are masked in logs")
}

func TestSESNotifier_Render(t *testing.T) {
	n := &SESNotifier{appName: "Scamnemesis"}

	tests := []struct {
		kind    string
		subject string
	}{
		{NotifyTwoFactorEnabled, "Two-factor authentication enabled - Scamnemesis"},
		{NotifyTwoFactorDisabled, "Two-factor authentication disabled - Scamnemesis"},
		{NotifyBackupCodesRegenerated, "New backup codes generated - Scamnemesis"},
		{NotifyPasswordChanged, "Password changed - Scamnemesis"},
		{"other", "Security change on your account - Scamnemesis"},
	}

	for _, tt := range tests {
		subject, body := n.render(tt.kind, "")
		assert.Equal(t, tt.subject, subject)
		assert.Contains(t, body, "IP address: unknown")
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	n.NotifySecurityChange(context.Background(), "user@example.com", NotifyTwoFactorEnabled, "")

	assert.Contains(t, buf.String(), NotifyTwoFactorEnabled)
	assert.NotContains(t, buf.String(), "user@example.com")
}

// safeBuffer is a bytes.Buffer safe for a background writer
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func (b *safeBuffer) String() string {
	return string(b.Bytes())
}
