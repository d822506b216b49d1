package logger

import (
	"fmt"
	"strings"
)

// DefaultMask replaces sensitive values in log output.
const DefaultMask = "***REDACTED***"

// Sanitizer masks bound values whose column is sensitive before they are
// logged. Callers pass the column each value is bound to, so masking is
// exact instead of guessing from the SQL text.
type Sanitizer struct {
	sensitive map[string]bool
	maskValue string
}

var defaultSensitive = []string{
	"password", "passwd", "pwd",
	"token", "api_key", "apikey", "api_token",
	"secret", "auth", "authorization",
	"private_key", "priv_key", "webhook_url",
}

// DefaultSensitiveColumns returns the column names masked when no list is
// given to NewSanitizer.
func DefaultSensitiveColumns() []string {
	return append([]string(nil), defaultSensitive...)
}

// NewSanitizer creates a sanitizer for the given column names. With no names
// a default list of common secret columns is used.
func NewSanitizer(sensitiveColumns []string) *Sanitizer {
	if len(sensitiveColumns) == 0 {
		sensitiveColumns = defaultSensitive
	}
	s := &Sanitizer{
		sensitive: make(map[string]bool, len(sensitiveColumns)),
		maskValue: DefaultMask,
	}
	for _, c := range sensitiveColumns {
		s.sensitive[strings.ToLower(c)] = true
	}
	return s
}

// IsSensitive reports whether values bound to column are masked.
func (s *Sanitizer) IsSensitive(column string) bool {
	return s.sensitive[strings.ToLower(column)]
}

// MaskParams returns a copy of params with every value bound to a sensitive
// column (or to a column listed in extra) replaced by the mask. columns is
// parallel to params; missing entries are treated as non-sensitive.
func (s *Sanitizer) MaskParams(columns []string, params []any, extra map[string]bool) []any {
	if len(params) == 0 {
		return params
	}
	masked := make([]any, len(params))
	for i, p := range params {
		masked[i] = p
		if i >= len(columns) {
			continue
		}
		if col := columns[i]; s.IsSensitive(col) || extra[col] {
			masked[i] = s.maskValue
		}
	}
	return masked
}

// FormatParams converts parameters to a bounded string for logging.
func (s *Sanitizer) FormatParams(params []any) string {
	if len(params) == 0 {
		return "[]"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = formatValue(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	str := fmt.Sprintf("%v", v)
	const maxLen = 100
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
