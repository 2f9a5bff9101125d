package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.Log(context.Background(), AuditEvent{
		Action:     "ACCOUNT_LOCKED",
		EntityType: "Auth",
		EntityID:   "user@example.com",
		IPAddress:  "203.0.113.7",
		Changes:    map[string]interface{}{"reason": "brute_force_protection", "failedAttempts": 5},
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "audit", line["msg"])
	assert.Equal(t, "ACCOUNT_LOCKED", line["action"])
	assert.Equal(t, "brute_force_protection", line["changes.reason"])
	assert.Equal(t, "5", line["changes.failedAttempts"])
	assert.NotContains(t, line, "user_id")
}

func TestAuditLogger_SuccessIsInfo(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.Log(context.Background(), AuditEvent{Action: "LOGIN_SUCCESS", EntityType: "Auth", EntityID: "u1", UserID: "u1"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"user@example.com", "u***@e***.com"},
		{"a@mail.example.co.uk", "a***@m***.uk"},
		{"long.name@localhost", "l***@***"},
		{"ünïcode@example.org", "ü***@e***.org"},
		{"odd@name@example.com", "o***@e***.com"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"user@", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizedEmail(tt.email))
		})
	}
}

func TestSanitizedEmail_HidesLength(t *testing.T) {
	assert.Equal(t, SanitizedEmail("a@b.com"), SanitizedEmail("alice@bob.com"))
	assert.Len(t, SanitizedEmail("a@b.com"), len(SanitizedEmail("averyveryverylongname@b.com")))
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected string
	}{
		{"empty", "", ""},
		{"harmless", "page=2&limit=50", "page=2&limit=50"},
		{"substring key", "temp_token=abc&page=1", "temp_token=[REDACTED]&page=1"},
		{"case insensitive", "Email=a%40b.c", "Email=[REDACTED]"},
		{"encoded key", "backup%5Fcode=ABCD-1234", "backup%5Fcode=[REDACTED]"},
		{"flag without value", "code&x=1", "code&x=1"},
		{"empty value", "password=", "password=[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactQuery(tt.query))
		})
	}
}
