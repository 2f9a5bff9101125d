package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/scamnemesis/authcore/internal/auth"
	"github.com/scamnemesis/authcore/internal/models"
	"github.com/scamnemesis/authcore/internal/services"
	pkghttp "github.com/scamnemesis/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access token claims to the request context
func WithAuthContext(req *http.Request, userID, email string, scopes ...string) *http.Request {
	claims := &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		Email:  email,
		Scopes: scopes,
	}
	claims.Subject = userID
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and returns it
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockLoginService implements LoginServiceInterface for testing
type MockLoginService struct {
	LoginFunc              func(ctx context.Context, in services.LoginInput) (services.LoginResult, error)
	VerifySecondFactorFunc func(ctx context.Context, in services.SecondFactorInput) (services.LoginResult, error)
}

func (m *MockLoginService) Login(ctx context.Context, in services.LoginInput) (services.LoginResult, error) {
	if m.LoginFunc == nil {
		return services.Failed{Reason: services.FailureInvalidCredentials}, nil
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockLoginService) VerifySecondFactor(ctx context.Context, in services.SecondFactorInput) (services.LoginResult, error) {
	if m.VerifySecondFactorFunc == nil {
		return services.Failed{Reason: services.FailureInvalidToken}, nil
	}
	return m.VerifySecondFactorFunc(ctx, in)
}

// MockSessionService implements SessionServiceInterface for testing
type MockSessionService struct {
	RefreshFunc func(ctx context.Context, refreshToken, ip string) (*services.Session, error)
	LogoutFunc  func(ctx context.Context, refreshToken, userID, ip string) error
}

func (m *MockSessionService) Refresh(ctx context.Context, refreshToken, ip string) (*services.Session, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrInvalidToken
	}
	return m.RefreshFunc(ctx, refreshToken, ip)
}

func (m *MockSessionService) Logout(ctx context.Context, refreshToken, userID, ip string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, refreshToken, userID, ip)
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	SetupFunc                 func(ctx context.Context, userID, ip string) (*services.TwoFactorSetup, error)
	VerifyAndEnableFunc       func(ctx context.Context, userID, code, ip string) error
	DisableFunc               func(ctx context.Context, userID, password, code, ip string) error
	StatusFunc                func(ctx context.Context, userID string) (*services.TwoFactorStatus, error)
	RegenerateBackupCodesFunc func(ctx context.Context, userID, password, code, ip string) ([]string, error)
}

func (m *MockTwoFactorService) Setup(ctx context.Context, userID, ip string) (*services.TwoFactorSetup, error) {
	if m.SetupFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.SetupFunc(ctx, userID, ip)
}

func (m *MockTwoFactorService) VerifyAndEnable(ctx context.Context, userID, code, ip string) error {
	if m.VerifyAndEnableFunc == nil {
		return nil
	}
	return m.VerifyAndEnableFunc(ctx, userID, code, ip)
}

func (m *MockTwoFactorService) Disable(ctx context.Context, userID, password, code, ip string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, userID, password, code, ip)
}

func (m *MockTwoFactorService) Status(ctx context.Context, userID string) (*services.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &services.TwoFactorStatus{}, nil
	}
	return m.StatusFunc(ctx, userID)
}

func (m *MockTwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, password, code, ip string) ([]string, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrTwoFactorNotEnabled
	}
	return m.RegenerateBackupCodesFunc(ctx, userID, password, code, ip)
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	ChangePasswordFunc func(ctx context.Context, userID, currentPassword, newPassword, ip string) error
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, ip string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, userID, currentPassword, newPassword, ip)
}

// MockLockoutGuard implements LockoutGuard for testing
type MockLockoutGuard struct {
	AdminUnlockFunc func(ctx context.Context, identifier, adminID, ip string) error
	StatsFunc       func(ctx context.Context) (services.GuardStats, error)
}

func (m *MockLockoutGuard) AdminUnlock(ctx context.Context, identifier, adminID, ip string) error {
	if m.AdminUnlockFunc == nil {
		return nil
	}
	return m.AdminUnlockFunc(ctx, identifier, adminID, ip)
}

func (m *MockLockoutGuard) Stats(ctx context.Context) (services.GuardStats, error) {
	if m.StatsFunc == nil {
		return services.GuardStats{}, nil
	}
	return m.StatsFunc(ctx)
}

// MockSecurityEventReader implements SecurityEventReader for testing
type MockSecurityEventReader struct {
	RecentForEntityFunc func(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error)
}

func (m *MockSecurityEventReader) RecentForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	if m.RecentForEntityFunc == nil {
		return []*models.AuditLog{}, nil
	}
	return m.RecentForEntityFunc(ctx, entityType, entityID, limit)
}
