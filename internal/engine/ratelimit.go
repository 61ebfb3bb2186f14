package engine

import (
	"math"

	"golang.org/x/time/rate"
)

// NewLaunchLimiter creates a rate.Limiter that caps how many copy processes
// are started per second. The burst allows one second's worth of launches
// at once. A rate of zero or less returns nil, meaning unlimited.
func NewLaunchLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 || math.IsNaN(perSecond) {
		return nil
	}
	burst := max(1, int(math.Ceil(perSecond)))
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
