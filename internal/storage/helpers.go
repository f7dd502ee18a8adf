package storage

import (
	"database/sql"
	"strings"
	"time"
)

// NullableString converts an empty string to a SQL NULL.
func NullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

// NullableTime converts a zero or nil time to a SQL NULL.
func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

// BoolToInt maps a bool onto the 0/1 representation used in the schema.
func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// FormatTime renders a timestamp in the canonical stored representation.
func FormatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

// ParseTime reads a stored timestamp, tolerating second-precision rows.
func ParseTime(raw sql.NullString) *time.Time {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, raw.String); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
