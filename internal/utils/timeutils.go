package utils

import "time"

// WindowDuration translates an operator time-window token into a duration.
// Unknown tokens fall back to 24 hours.
func WindowDuration(window string) time.Duration {
	switch window {
	case "1h":
		return time.Hour
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}
