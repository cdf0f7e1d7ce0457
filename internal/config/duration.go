package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseUTCOffset parses a fixed offset like "+03:00" or "-05:30" into a
// time.Location. An empty string defaults to "+03:00".
func ParseUTCOffset(raw string) (*time.Location, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		s = "+03:00"
	}
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return nil, fmt.Errorf("invalid utc offset %q: want format \"+03:00\"", raw)
	}
	var h, m int
	if _, err := fmt.Sscanf(s[1:], "%02d:%02d", &h, &m); err != nil {
		return nil, fmt.Errorf("invalid utc offset %q: %w", raw, err)
	}
	if h > 14 || m > 59 {
		return nil, fmt.Errorf("invalid utc offset %q: out of range", raw)
	}
	sec := h*3600 + m*60
	if s[0] == '-' {
		sec = -sec
	}
	return time.FixedZone("UTC"+s, sec), nil
}
