package reliability

import "time"

// IsRetryableAgentClose classifies websocket close/error codes from the remote
// agent channel that warrant a reconnect attempt.
func IsRetryableAgentClose(code string) bool {
	switch code {
	case "going_away", "abnormal_closure", "service_restart", "try_again_later":
		return true
	default:
		return false
	}
}

// IsRetryableDeviceCode classifies speech-device error codes that may clear on
// a fresh capture session.
func IsRetryableDeviceCode(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "queue_overflow", "session_timeout":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
