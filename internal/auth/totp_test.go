package auth

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 6238 appendix B seed "12345678901234567890"
const rfc6238Secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func newTestEngine(t *testing.T) *TOTPEngine {
	t.Helper()
	engine, err := NewTOTPEngine(TOTPConfig{Issuer: "ScamNemesis"})
	require.NoError(t, err)
	return engine
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNewTOTPEngine_Defaults(t *testing.T) {
	engine := newTestEngine(t)
	assert.Equal(t, 30*time.Second, engine.step)
	assert.Equal(t, 6, engine.digits)
	assert.Equal(t, 0, engine.tolerance)
}

func TestNewTOTPEngine_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config TOTPConfig
	}{
		{name: "missing issuer", config: TOTPConfig{}},
		{name: "wide tolerance", config: TOTPConfig{Issuer: "x", Tolerance: 3}},
		{name: "negative tolerance", config: TOTPConfig{Issuer: "x", Tolerance: -1}},
		{name: "too few digits", config: TOTPConfig{Issuer: "x", Digits: 4}},
		{name: "sub-second step", config: TOTPConfig{Issuer: "x", Step: time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewTOTPEngine(tt.config)
			assert.Error(t, err)
			assert.Nil(t, engine)
		})
	}
}

// ============================================================================
// Secret Generation Tests
// ============================================================================

func TestTOTPEngine_GenerateSecret_DecodesToRequestedLength(t *testing.T) {
	engine := newTestEngine(t)

	for _, size := range []int{10, 20, 32} {
		secret, err := engine.GenerateSecret(size)
		require.NoError(t, err)

		decoded, err := Base32Decode(secret)
		require.NoError(t, err)
		assert.Len(t, decoded, size)
		assert.Equal(t, secret, Base32Encode(decoded))
	}
}

func TestTOTPEngine_GenerateSecret_DefaultSize(t *testing.T) {
	engine := newTestEngine(t)

	secret, err := engine.GenerateSecret(0)
	require.NoError(t, err)
	assert.Len(t, secret, 52)
}

func TestTOTPEngine_GenerateSecret_Unique(t *testing.T) {
	engine := newTestEngine(t)

	a, err := engine.GenerateSecret(DefaultSecretSize)
	require.NoError(t, err)
	b, err := engine.GenerateSecret(DefaultSecretSize)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

// ============================================================================
// Code Generation Tests
// ============================================================================

func TestGenerateCodeCustom_RFC6238Vectors(t *testing.T) {
	tests := []struct {
		unix int64
		want string
	}{
		{unix: 59, want: "94287082"},
		{unix: 1111111109, want: "07081804"},
		{unix: 1111111111, want: "14050471"},
		{unix: 1234567890, want: "89005924"},
		{unix: 2000000000, want: "69279037"},
		{unix: 20000000000, want: "65353130"},
	}

	for _, tt := range tests {
		code, err := GenerateCodeCustom(rfc6238Secret, tt.unix, 30*time.Second, 8)
		require.NoError(t, err)
		assert.Equal(t, tt.want, code, "unix %d", tt.unix)

		six, err := GenerateCodeCustom(rfc6238Secret, tt.unix, 30*time.Second, 6)
		require.NoError(t, err)
		assert.Equal(t, tt.want[2:], six, "unix %d", tt.unix)
	}
}

func TestTOTPEngine_GenerateCode_MatchesReferenceImplementation(t *testing.T) {
	engine := newTestEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"

	for _, unix := range []int64{0, 59, 1700000000, 1700000029, 1700000030, 1893456000} {
		code, err := engine.GenerateCode(secret, unix)
		require.NoError(t, err)

		reference, err := totp.GenerateCodeCustom(secret, time.Unix(unix, 0).UTC(), totp.ValidateOpts{
			Period:    30,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)

		assert.Equal(t, reference, code, "unix %d", unix)
	}
}

func TestTOTPEngine_GenerateCode_AlwaysZeroPadded(t *testing.T) {
	engine := newTestEngine(t)

	secret, err := engine.GenerateSecret(DefaultSecretSize)
	require.NoError(t, err)

	for i := int64(0); i < 500; i++ {
		code, err := engine.GenerateCode(secret, 1700000000+i*30)
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.True(t, isNumeric(code))
	}
}

func TestGenerateCode_InvalidSecret(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.GenerateCode("!!!!", 1700000000)
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

// ============================================================================
// Verification Tests
// ============================================================================

func newTolerantEngine(t *testing.T) *TOTPEngine {
	t.Helper()
	engine, err := NewTOTPEngine(TOTPConfig{Issuer: "ScamNemesis", Tolerance: 1})
	require.NoError(t, err)
	return engine
}

func TestTOTPEngine_VerifyCodeAt_ToleranceWindow(t *testing.T) {
	engine := newTolerantEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"
	const at int64 = 1700000010

	code, err := engine.GenerateCode(secret, at)
	require.NoError(t, err)

	assert.True(t, engine.VerifyCodeAt(code, secret, at))
	assert.True(t, engine.VerifyCodeAt(code, secret, at+30))
	assert.True(t, engine.VerifyCodeAt(code, secret, at-30))
	assert.False(t, engine.VerifyCodeAt(code, secret, at+60))
	assert.False(t, engine.VerifyCodeAt(code, secret, at-60))
}

func TestTOTPEngine_VerifyCodeAt_ZeroTolerance(t *testing.T) {
	engine := newTestEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"
	const at int64 = 1700000010

	code, err := engine.GenerateCode(secret, at)
	require.NoError(t, err)

	assert.True(t, engine.VerifyCodeAt(code, secret, at))
	assert.False(t, engine.VerifyCodeAt(code, secret, at+30))
}

func TestTOTPEngine_MatchStepAt_ReportsMatchedStep(t *testing.T) {
	engine := newTolerantEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"
	const at int64 = 1700000010

	code, err := engine.GenerateCode(secret, at)
	require.NoError(t, err)

	for _, now := range []int64{at - 30, at, at + 30} {
		step, ok := engine.MatchStepAt(code, secret, now)
		require.True(t, ok, "now %d", now)
		assert.Equal(t, at/30, step, "now %d", now)
	}

	_, ok := engine.MatchStepAt(code, secret, at+60)
	assert.False(t, ok)
}

func TestTOTPEngine_MatchStepAt_SkipsNegativeTimes(t *testing.T) {
	engine := newTolerantEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"

	code, err := engine.GenerateCode(secret, 0)
	require.NoError(t, err)

	step, ok := engine.MatchStepAt(code, secret, 10)
	require.True(t, ok)
	assert.Equal(t, int64(0), step)
}

func TestTOTPEngine_VerifyCodeAt_LenientSecret(t *testing.T) {
	engine := newTestEngine(t)
	const at int64 = 1700000010

	code, err := engine.GenerateCode("JBSWY3DPEHPK3PXP", at)
	require.NoError(t, err)

	assert.True(t, engine.VerifyCodeAt(code, "jbsw y3dp-ehpk 3pxp", at))
	assert.True(t, engine.VerifyCodeAt(code, "JBSWY3DPEHPK3PXP====", at))
}

func TestTOTPEngine_VerifyCode_UsesClock(t *testing.T) {
	engine := newTolerantEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"
	fixed := time.Unix(1700000010, 0)
	engine.SetClock(func() time.Time { return fixed })

	code, err := engine.GenerateCode(secret, fixed.Unix())
	require.NoError(t, err)

	assert.True(t, engine.VerifyCode(code, secret))
	assert.True(t, engine.VerifyCode(code[:3]+" "+code[3:], secret))
}

func TestTOTPEngine_VerifyCode_RejectsMalformedInput(t *testing.T) {
	engine := newTolerantEngine(t)
	const secret = "JBSWY3DPEHPK3PXP"

	for _, code := range []string{"", "      ", "12345", "1234567", "abcdef", "12345a", "-12345"} {
		assert.False(t, engine.VerifyCodeAt(code, secret, 1700000000), "code %q", code)
	}
}

func TestTOTPEngine_VerifyCode_MalformedSecret(t *testing.T) {
	engine := newTolerantEngine(t)
	assert.False(t, engine.VerifyCodeAt("123456", "", 1700000000))
	assert.False(t, engine.VerifyCodeAt("123456", "!!!!", 1700000000))
}

// ============================================================================
// Provisioning Tests
// ============================================================================

func TestTOTPEngine_ProvisioningURI_Format(t *testing.T) {
	engine := newTestEngine(t)

	uri := engine.ProvisioningURI("user@example.com", "JBSWY3DPEHPK3PXP")
	assert.Equal(t,
		"otpauth://totp/ScamNemesis:user@example.com?secret=JBSWY3DPEHPK3PXP&issuer=ScamNemesis&algorithm=SHA1&digits=6&period=30",
		uri,
	)
}

func TestTOTPEngine_ProvisioningURI_ParsedByReference(t *testing.T) {
	engine, err := NewTOTPEngine(TOTPConfig{Issuer: "Scam Nemesis"})
	require.NoError(t, err)

	key, err := otp.NewKeyFromURL(engine.ProvisioningURI("user+tag@example.com", "JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	assert.Equal(t, "totp", key.Type())
	assert.Equal(t, "Scam Nemesis", key.Issuer())
	assert.Equal(t, "user+tag@example.com", key.AccountName())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", key.Secret())
	assert.Equal(t, uint64(30), key.Period())

	parsed, err := url.Parse(key.URL())
	require.NoError(t, err)
	assert.Equal(t, "SHA1", parsed.Query().Get("algorithm"))
}

func TestTOTPEngine_QRCodeDataURL(t *testing.T) {
	engine := newTestEngine(t)

	dataURL, err := engine.QRCodeDataURL(engine.ProvisioningURI("user@example.com", "JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
	assert.Greater(t, len(dataURL), 100)
}

func TestGenerateCodeCustom_KeepsLeadingZeros(t *testing.T) {
	code, err := GenerateCodeCustom(rfc6238Secret, 1111111109, 30*time.Second, 8)
	require.NoError(t, err)
	assert.Equal(t, "07081804", code)
	assert.Len(t, code, 8)
}
