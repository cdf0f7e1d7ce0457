package config

import (
	"testing"
	"time"
)

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		def     time.Duration
		want    time.Duration
		wantErr bool
	}{
		{name: "empty uses default", raw: "", def: 30 * time.Second, want: 30 * time.Second},
		{name: "explicit value", raw: "2m", def: 30 * time.Second, want: 2 * time.Minute},
		{name: "whitespace trimmed", raw: "  1s ", def: time.Minute, want: time.Second},
		{name: "garbage", raw: "soon", def: time.Second, wantErr: true},
		{name: "negative", raw: "-5s", def: time.Second, wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDurationOrDefault("test.field", tc.raw, tc.def)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseUTCOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantSec int
		wantErr bool
	}{
		{name: "default is plus three", raw: "", wantSec: 3 * 3600},
		{name: "plus offset", raw: "+03:00", wantSec: 3 * 3600},
		{name: "minus with minutes", raw: "-05:30", wantSec: -(5*3600 + 30*60)},
		{name: "zero", raw: "+00:00", wantSec: 0},
		{name: "no sign", raw: "03:00", wantErr: true},
		{name: "too short", raw: "+3:00", wantErr: true},
		{name: "hour out of range", raw: "+15:00", wantErr: true},
		{name: "minutes out of range", raw: "+03:60", wantErr: true},
		{name: "named zone rejected", raw: "Europe/Berlin", wantErr: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loc, err := ParseUTCOffset(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %v", loc)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			_, off := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
			if off != tc.wantSec {
				t.Fatalf("offset = %d, want %d", off, tc.wantSec)
			}
		})
	}
}
