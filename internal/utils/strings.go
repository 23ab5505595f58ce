// Package utils provides small helpers shared across the gateway.
package utils

// MaskKey masks a credential for safe logging (shows first 8 and last 4 chars).
// Every log line that mentions an API key or OAuth token goes through this.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// TruncateForLog caps a string for inclusion in a log field.
func TruncateForLog(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
