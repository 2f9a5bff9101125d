package logger

import (
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// Query keys whose values never reach the logs. Matching is by substring so
// temp_token and backup_code are covered too.
var sensitiveQueryKeys = []string{"password", "token", "secret", "code", "email", "otp"}

// SanitizedEmail masks an address for logging, keeping the first rune of the
// local part and of the domain plus the top-level domain: "u***@e***.com".
// The mask has a fixed width so the original lengths are not revealed.
func SanitizedEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}
	local, domain := email[:at], email[at+1:]

	masked := firstRune(local) + "***@"
	if dot := strings.LastIndexByte(domain, '.'); dot > 0 && dot < len(domain)-1 {
		return masked + firstRune(domain) + "***" + domain[dot:]
	}
	return masked + "***"
}

// RedactQuery returns rawQuery with the values of sensitive keys replaced.
// Pair order is preserved.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, _, hasValue := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
		if hasValue && isSensitiveKey(key) {
			pairs[i] = pair[:strings.IndexByte(pair, '=')+1] + redacted
		}
	}
	return strings.Join(pairs, "&")
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveQueryKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
