package providers

import (
	"time"

	"golang.org/x/time/rate"
)

// NewLimiter baut einen Limiter, der Anfragen höchstens im gegebenen Abstand
// zulässt. Delay 0 bedeutet unbegrenzt.
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
