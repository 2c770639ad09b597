package logging

import "testing"

func TestMaskPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+919876543210", "+91********10"},
		{"09876543210", "09*******10"},
		{"123", "***"},
	}
	for _, tc := range cases {
		if got := MaskPhone(tc.in); got != tc.want {
			t.Fatalf("MaskPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		if New(level) == nil {
			t.Fatalf("New(%q) returned nil", level)
		}
	}
}
