package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSecretSize    = 32 // bytes, 256 bits
	DefaultTOTPStep      = 30 * time.Second
	DefaultTOTPDigits    = 6
	DefaultTOTPTolerance = 1
	maxTOTPTolerance     = 1
	qrCodeSize           = 256
)

// TOTPConfig holds TOTP parameters. Zero values fall back to RFC 6238 defaults.
type TOTPConfig struct {
	Issuer    string
	Step      time.Duration
	Digits    int
	Tolerance int // accepted steps either side of now
}

// TOTPEngine generates and verifies RFC 6238 codes using HMAC-SHA1 via pquerna/otp
type TOTPEngine struct {
	issuer    string
	step      time.Duration
	digits    int
	tolerance int
	now       func() time.Time
}

// NewTOTPEngine creates a TOTP engine
func NewTOTPEngine(config TOTPConfig) (*TOTPEngine, error) {
	if config.Issuer == "" {
		return nil, fmt.Errorf("totp issuer is required")
	}
	if config.Step == 0 {
		config.Step = DefaultTOTPStep
	}
	if config.Step < time.Second {
		return nil, fmt.Errorf("totp step must be at least 1s, got %s", config.Step)
	}
	if config.Digits == 0 {
		config.Digits = DefaultTOTPDigits
	}
	if config.Digits < 6 || config.Digits > 8 {
		return nil, fmt.Errorf("totp digits must be between 6 and 8, got %d", config.Digits)
	}
	if config.Tolerance < 0 || config.Tolerance > maxTOTPTolerance {
		return nil, fmt.Errorf("totp tolerance must be between 0 and %d steps, got %d", maxTOTPTolerance, config.Tolerance)
	}

	return &TOTPEngine{
		issuer:    config.Issuer,
		step:      config.Step,
		digits:    config.Digits,
		tolerance: config.Tolerance,
		now:       time.Now,
	}, nil
}

// SetClock replaces the time source (tests)
func (e *TOTPEngine) SetClock(now func() time.Time) {
	e.now = now
}

// GenerateSecret returns byteLength random bytes as an unpadded Base32 string
func (e *TOTPEngine) GenerateSecret(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultSecretSize
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: "user",
		Period:      uint(e.step / time.Second),
		SecretSize:  uint(byteLength),
		Digits:      otp.Digits(e.digits),
		Algorithm:   otp.AlgorithmSHA1,
		Rand:        rand.Reader,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}

// GenerateCode returns the code for secret at the given unix time using the engine's step and digits
func (e *TOTPEngine) GenerateCode(secret string, unix int64) (string, error) {
	return GenerateCodeCustom(secret, unix, e.step, e.digits)
}

// GenerateCodeCustom returns the code for secret at unix with an explicit step and digit count
func GenerateCodeCustom(secret string, unix int64, step time.Duration, digits int) (string, error) {
	if digits < 1 || digits > 8 {
		return "", fmt.Errorf("unsupported digit count %d", digits)
	}
	if step < time.Second {
		return "", fmt.Errorf("unsupported step %s", step)
	}

	canonical, err := canonicalSecret(secret)
	if err != nil {
		return "", err
	}
	return totp.GenerateCodeCustom(canonical, time.Unix(unix, 0), validateOpts(step, digits))
}

// VerifyCode checks code against secret at the current time
func (e *TOTPEngine) VerifyCode(code, secret string) bool {
	_, ok := e.MatchStep(code, secret)
	return ok
}

// VerifyCodeAt checks code against secret at unix, accepting the configured tolerance window.
// Malformed input never matches.
func (e *TOTPEngine) VerifyCodeAt(code, secret string, unix int64) bool {
	_, ok := e.MatchStepAt(code, secret, unix)
	return ok
}

// MatchStep is MatchStepAt at the current time
func (e *TOTPEngine) MatchStep(code, secret string) (int64, bool) {
	return e.MatchStepAt(code, secret, e.now().Unix())
}

// MatchStepAt reports the time step code was generated for. Every offset in
// the window is compared so timing does not reveal which one matched.
func (e *TOTPEngine) MatchStepAt(code, secret string, unix int64) (int64, bool) {
	code = stripSpaces(code)
	if len(code) != e.digits || !isNumeric(code) {
		return 0, false
	}

	canonical, err := canonicalSecret(secret)
	if err != nil {
		return 0, false
	}

	opts := validateOpts(e.step, e.digits)
	stepSeconds := int64(e.step / time.Second)
	matched := 0
	var step int64
	for offset := -e.tolerance; offset <= e.tolerance; offset++ {
		at := unix + int64(offset)*stepSeconds
		if at < 0 {
			continue
		}
		expected, err := totp.GenerateCodeCustom(canonical, time.Unix(at, 0), opts)
		if err != nil {
			return 0, false
		}
		hit := subtle.ConstantTimeCompare([]byte(expected), []byte(code))
		if hit == 1 {
			step = at / stepSeconds
		}
		matched |= hit
	}

	return step, matched == 1
}

// ProvisioningURI builds the otpauth:// URI consumed by authenticator apps
func (e *TOTPEngine) ProvisioningURI(email, secret string) string {
	label := url.PathEscape(e.issuer) + ":" + url.PathEscape(email)

	// Parameter order matches what authenticator vendors document.
	return fmt.Sprintf("otpauth://totp/%s?secret=%s&issuer=%s&algorithm=SHA1&digits=%d&period=%d",
		label,
		url.QueryEscape(secret),
		url.QueryEscape(e.issuer),
		e.digits,
		int64(e.step/time.Second),
	)
}

// QRCodeDataURL renders uri as a PNG data URL
func (e *TOTPEngine) QRCodeDataURL(uri string) (string, error) {
	png, err := qrcode.Encode(uri, qrcode.Medium, qrCodeSize)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func validateOpts(step time.Duration, digits int) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(step / time.Second),
		Digits:    otp.Digits(digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// canonicalSecret re-encodes a leniently written secret (lower case, spaces,
// dashes) into the strict form the otp package decodes
func canonicalSecret(secret string) (string, error) {
	key, err := Base32Decode(secret)
	if err != nil {
		return "", err
	}
	return Base32Encode(key), nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
