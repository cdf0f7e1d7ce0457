package tgui

import (
	"errors"
	"strings"
	"testing"
)

func TestDataAndSplitData(t *testing.T) {
	t.Parallel()

	if got, err := Data("bc", "aud", "all"); err != nil || got != "bc:aud:all" {
		t.Fatalf("Data = %q, %v", got, err)
	}
	if got, err := Data("bc", "cancel", ""); err != nil || got != "bc:cancel" {
		t.Fatalf("Data without payload = %q, %v", got, err)
	}

	scope, action, payload := SplitData("bc:drop:52f1c2aa-9e1b-4c63-8e9f-000000000000")
	if scope != "bc" || action != "drop" || payload != "52f1c2aa-9e1b-4c63-8e9f-000000000000" {
		t.Fatalf("SplitData = %q %q %q", scope, action, payload)
	}

	scope, action, payload = SplitData("bc:confirm")
	if scope != "bc" || action != "confirm" || payload != "" {
		t.Fatalf("SplitData two parts = %q %q %q", scope, action, payload)
	}

	// Payload keeps embedded colons.
	_, _, payload = SplitData("bc:x:a:b:c")
	if payload != "a:b:c" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestDataLengthLimit(t *testing.T) {
	t.Parallel()

	// A uuid payload, the longest this bot packs, fits comfortably.
	data, err := Data("bc", "drop", "52f1c2aa-9e1b-4c63-8e9f-000000000000")
	if err != nil {
		t.Fatalf("uuid payload rejected: %v", err)
	}
	if len(data) > MaxCallbackDataLen {
		t.Fatalf("len = %d, over the limit", len(data))
	}

	if _, err := Data("bc", "drop", strings.Repeat("x", MaxCallbackDataLen)); !errors.Is(err, ErrCallbackDataTooLong) {
		t.Fatalf("err = %v, want ErrCallbackDataTooLong", err)
	}

	if got := MustData("bc", "confirm", ""); got != "bc:confirm" {
		t.Fatalf("MustData = %q", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustData accepted oversized data")
		}
	}()
	MustData("bc", "drop", strings.Repeat("x", MaxCallbackDataLen))
}

func TestEscAndHelpers(t *testing.T) {
	t.Parallel()

	if got := Esc(`<b> & "q"`).String(); got != "&lt;b&gt; &amp; &#34;q&#34;" {
		t.Fatalf("Esc = %q", got)
	}
	if got := B("x<y").String(); got != "<b>x&lt;y</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := JoinH("\n", B("a"), H(""), I("b")).String(); got != "<b>a</b>\n<i>b</i>" {
		t.Fatalf("JoinH = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 4, "hell…"},
		{"приве́т", 3, "при…"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tc := range tests {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}
