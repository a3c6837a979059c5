package reconciliation

import "time"

// Backoff returns the wait before retry number attempt (1-based): base
// doubled per prior failure, never exceeding cap.
func Backoff(base, cap time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= cap {
			return cap
		}
	}
	if wait > cap {
		return cap
	}
	return wait
}
