package config

import "strings"

// secretKeyIndicators are substrings that, when found in a protocol-settings
// key (case-insensitively), mark its value as credential-shaped.
var secretKeyIndicators = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key",
}

// Sanitizer redacts protocol-settings values that look like credentials
// before a BIB/UUT configuration or port mapping is logged. Protocol
// handlers may carry arbitrary key/value settings pairs (e.g. a future
// handler authenticating to a bridge), and none of those keys are known
// ahead of time, so redaction is heuristic rather than field-specific.
type Sanitizer interface {
	// SanitizeSettings returns a copy of settings with credential-shaped
	// values replaced by a redaction marker.
	SanitizeSettings(settings map[string]string) map[string]string
}

// DefaultSanitizer implements Sanitizer using a fixed redaction marker and
// the package's built-in key indicators.
type DefaultSanitizer struct {
	redactionValue string
}

// NewDefaultSanitizer creates a Sanitizer using the standard redaction marker.
func NewDefaultSanitizer() Sanitizer {
	return &DefaultSanitizer{redactionValue: "***REDACTED***"}
}

// NewSanitizer creates a Sanitizer with a custom redaction marker.
func NewSanitizer(redactionValue string) Sanitizer {
	return &DefaultSanitizer{redactionValue: redactionValue}
}

// SanitizeSettings implements Sanitizer.
func (s *DefaultSanitizer) SanitizeSettings(settings map[string]string) map[string]string {
	if settings == nil {
		return nil
	}

	sanitized := make(map[string]string, len(settings))
	for k, v := range settings {
		if looksLikeSecretKey(k) {
			sanitized[k] = s.redactionValue
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

func looksLikeSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, indicator := range secretKeyIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
