package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableAgentClose(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"going_away", true},
		{"try_again_later", true},
		{"policy_violation", false},
		{"", false},
	}
	for _, tc := range cases {
		got := IsRetryableAgentClose(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableAgentClose(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableDeviceCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"rate_limited", true},
		{"queue_overflow", true},
		{"not_authorized", false},
	}
	for _, tc := range cases {
		got := IsRetryableDeviceCode(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableDeviceCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(1, base, capDur); got != 200*time.Millisecond {
		t.Fatalf("attempt 1 = %v, want 200ms", got)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
