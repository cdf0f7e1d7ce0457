package broadcast

import (
	"errors"
	"testing"
	"time"
)

func TestParseScheduleAt(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, loc)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "valid future", input: "31.12.2099 23:59"},
		{name: "one minute ahead", input: "15.06.2026 12:01"},
		{name: "iso format rejected", input: "2099-12-31 23:59", wantErr: ErrBadScheduleFormat},
		{name: "missing time", input: "31.12.2099", wantErr: ErrBadScheduleFormat},
		{name: "single digit day", input: "1.01.2099 10:00", wantErr: ErrBadScheduleFormat},
		{name: "nonexistent date", input: "31.02.2099 10:00", wantErr: ErrBadScheduleDate},
		{name: "hour out of range", input: "01.01.2099 25:00", wantErr: ErrBadScheduleDate},
		{name: "in the past", input: "01.01.2000 00:00", wantErr: ErrScheduleInPast},
		{name: "exactly now rejected", input: "15.06.2026 12:00", wantErr: ErrScheduleInPast},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseScheduleAt(tc.input, loc, now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.After(now) {
				t.Fatalf("parsed time %v not after now %v", got, now)
			}
			if got.Location() != loc {
				t.Fatalf("parsed in %v, want %v", got.Location(), loc)
			}
		})
	}
}

func TestParseScheduleAtUsesOffset(t *testing.T) {
	t.Parallel()

	plus3 := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	got, err := ParseScheduleAt("15.06.2026 10:30", plus3, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 6, 15, 7, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got.UTC(), want)
	}
	if FormatScheduleAt(got, plus3) != "15.06.2026 10:30" {
		t.Fatalf("round trip = %q", FormatScheduleAt(got, plus3))
	}
}
