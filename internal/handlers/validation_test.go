package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateRequest_TwoFactorCodes(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"valid TOTP", "123456", true},
		{"valid TOTP all zeros", "000000", true},
		{"invalid - too short", "12345", false},
		{"valid eight digit TOTP", "12345678", true},
		{"invalid - too long", "123456789", false},
		{"invalid - contains letter", "12345a", false},
		{"invalid - space", "123 456", false},
		{"invalid - empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(&VerifyTwoFactorRequest{Code: tt.code})
			if (err == nil) != tt.valid {
				t.Errorf("ValidateRequest(code=%q) error = %v, want valid=%v", tt.code, err, tt.valid)
			}
		})
	}
}

func TestValidateRequest_LoginCodes(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"TOTP", "123456", true},
		{"backup code with dash", "ABCD-1234", true},
		{"backup code without dash", "ABCD1234", true},
		{"too short", "12345", false},
		{"too long", strings.Repeat("A", 21), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(&VerifyLoginRequest{TempToken: "t", Code: tt.code})
			if (err == nil) != tt.valid {
				t.Errorf("ValidateRequest(code=%q) error = %v, want valid=%v", tt.code, err, tt.valid)
			}
		})
	}
}

func TestValidateRequest_TOTPCodeLengthFollowsDigitRange(t *testing.T) {
	for _, code := range []string{"123456", "1234567", "12345678"} {
		if err := ValidateRequest(&VerifyTwoFactorRequest{Code: code}); err != nil {
			t.Errorf("ValidateRequest(code=%q) error = %v", code, err)
		}
		if err := ValidateRequest(&RegenerateBackupCodesRequest{Password: "x", Code: code}); err != nil {
			t.Errorf("regenerate code=%q error = %v", code, err)
		}
	}
}

func TestValidateRequest_Messages(t *testing.T) {
	tests := []struct {
		name string
		req  interface{}
		want string
	}{
		{"required", &TokenRequest{Password: "x"}, "email: is required"},
		{"email", &TokenRequest{Email: "nope", Password: "x"}, "email: must be a valid email address"},
		{"min", &VerifyTwoFactorRequest{Code: "123"}, "code: must be at least 6 characters"},
		{"max", &VerifyTwoFactorRequest{Code: "123456789"}, "code: must be at most 8 characters"},
		{"numeric", &VerifyTwoFactorRequest{Code: "abcdef"}, "code: must contain only digits"},
		{"uuid", &UnlockRequest{Email: "a@example.com", UserID: "x"}, "user_id: must be a valid UUID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestDecodeAndValidate_RejectsOversizedBody(t *testing.T) {
	body := `{"email":"a@example.com","password":"` + strings.Repeat("x", maxRequestBodyBytes) + `"}`
	req := httptest.NewRequest("POST", "/api/v1/auth/token", strings.NewReader(body))
	w := httptest.NewRecorder()

	var dst TokenRequest
	if decodeAndValidate(w, req, &dst) {
		t.Fatal("oversized body must be rejected")
	}
	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "request body too large") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDecodeAndValidate_MalformedJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/auth/token", strings.NewReader(`{"email":`))
	w := httptest.NewRecorder()

	var dst TokenRequest
	if decodeAndValidate(w, req, &dst) {
		t.Fatal("malformed body must be rejected")
	}
	if !strings.Contains(w.Body.String(), "malformed JSON body") {
		t.Errorf("body = %s", w.Body.String())
	}
}
