package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	apiKeyRe = regexp.MustCompile(`\bsk_[A-Za-z0-9]{16,}\b`)
)

// SetEnabled toggles PII redaction of transcripts before they are logged.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers and provider API keys when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := apiKeyRe.ReplaceAllString(in, "[REDACTED_KEY]")
	out = emailRe.ReplaceAllString(out, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Secret masks a credential for display, keeping the last four characters.
func Secret(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	if len(in) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 4) + in[len(in)-4:]
}
