package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/scamnemesis/authcore/pkg/logger"
)

// Security notification kinds
const (
	NotifyTwoFactorEnabled       = "two_factor_enabled"
	NotifyTwoFactorDisabled      = "two_factor_disabled"
	NotifyBackupCodesRegenerated = "backup_codes_regenerated"
	NotifyPasswordChanged        = "password_changed"
)

const notificationTimeout = 10 * time.Second

// SecurityNotifier tells a user about a change to their account security
type SecurityNotifier interface {
	NotifySecurityChange(ctx context.Context, email, kind, ip string)
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends security notifications through AWS SES
type SESNotifier struct {
	client      sesAPI
	fromAddress string
	appName     string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS config for region
func NewSESNotifier(region, fromAddress, appName string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		appName:     appName,
		logger:      logger,
	}, nil
}

// NotifySecurityChange sends the email in the background; the caller never waits on SES
func (n *SESNotifier) NotifySecurityChange(ctx context.Context, email, kind, ip string) {
	subject, body := n.render(kind, ip)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
		defer cancel()

		result, err := n.client.SendEmail(sendCtx, input)
		if err != nil {
			n.logger.Error("failed to send security notification via SES",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.String("kind", kind),
				slog.Any("error", err))
			return
		}

		n.logger.Info("security notification sent",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("kind", kind),
			slog.String("message_id", aws.ToString(result.MessageId)))
	}()
}

func (n *SESNotifier) render(kind, ip string) (string, string) {
	var subject, what string
	switch kind {
	case NotifyTwoFactorEnabled:
		subject, what = "Two-factor authentication enabled", "Two-factor authentication was turned on for your account."
	case NotifyTwoFactorDisabled:
		subject, what = "Two-factor authentication disabled", "Two-factor authentication was turned off for your account. All sessions were signed out."
	case NotifyBackupCodesRegenerated:
		subject, what = "New backup codes generated", "New two-factor backup codes were generated. Your previous codes no longer work."
	case NotifyPasswordChanged:
		subject, what = "Password changed", "The password for your account was changed. All sessions were signed out."
	default:
		subject, what = "Security change on your account", "A security setting on your account was changed."
	}

	if ip == "" {
		ip = "unknown"
	}
	body := fmt.Sprintf("%s\n\nTime: %s\nIP address: %s\n\nIf this wasn't you, reset your password and contact %s support immediately.\n",
		what, time.Now().UTC().Format(time.RFC1123), ip, n.appName)

	return fmt.Sprintf("%s - %s", subject, n.appName), body
}

// LogNotifier records notifications in the log when email is not configured
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifySecurityChange(ctx context.Context, email, kind, ip string) {
	n.logger.InfoContext(ctx, "security notification (email not configured)",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("kind", kind),
	)
}
