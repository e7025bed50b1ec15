// Package utils provides utility functions for the application.
package utils

import (
	"strconv"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// FormatTimePtr renders an optional timestamp as RFC3339, nil stays nil
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// ParseUnixTimestamp parses a unix-seconds string as sent by the provider.
// Empty or malformed input falls back to the current UTC time.
func ParseUnixTimestamp(s string) time.Time {
	if s == "" {
		return UTCNow()
	}
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return UTCNow()
	}
	return time.Unix(secs, 0).UTC()
}
