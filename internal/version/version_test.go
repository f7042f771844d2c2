package version

import (
	"strings"
	"testing"
)

func TestStringReflectsBuildVersion(t *testing.T) {
	cleanup := ForTesting("1.2.3-test")
	t.Cleanup(cleanup)

	if got := String(); got != "1.2.3-test" {
		t.Fatalf("expected version 1.2.3-test, got %s", got)
	}
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0.3.0", "v0.3.0"},
		{"v0.3.0", "v0.3.0"},
		{"dev", "dev"},
		{"", ""},
		{"1.0.0-rc1", "v1.0.0-rc1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := FormatVersion(tt.input); got != tt.want {
				t.Errorf("FormatVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCheckVersionMismatch(t *testing.T) {
	tests := []struct {
		name          string
		clientVersion string
		daemonVersion string
		wantWarning   bool
	}{
		{name: "same version no warning", clientVersion: "0.3.0", daemonVersion: "0.3.0", wantWarning: false},
		{name: "different version warning", clientVersion: "0.3.0", daemonVersion: "0.2.0", wantWarning: true},
		{name: "daemon dev skip", clientVersion: "0.3.0", daemonVersion: "dev", wantWarning: false},
		{name: "client dev skip", clientVersion: "dev", daemonVersion: "0.3.0", wantWarning: false},
		{name: "empty daemon version skip", clientVersion: "0.3.0", daemonVersion: "", wantWarning: false},
		{name: "v prefix normalized", clientVersion: "v0.3.0", daemonVersion: "0.3.0", wantWarning: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := ForTesting(tt.clientVersion)
			t.Cleanup(cleanup)

			got := CheckVersionMismatch(tt.daemonVersion)
			if tt.wantWarning && got == "" {
				t.Error("expected warning string, got empty")
			}
			if !tt.wantWarning && got != "" {
				t.Errorf("expected no warning, got %q", got)
			}
			if tt.wantWarning && !strings.HasPrefix(got, "WARNING: drive ") {
				t.Errorf("warning %q missing expected prefix", got)
			}
		})
	}
}
