package engine

import "math"

// PacketSizeBytes is the unit the copy tool's inter-packet gap applies to.
const PacketSizeBytes = 512000

const (
	minThrottleMs = 1
	maxThrottleMs = 10000
)

// ComputeThrottle returns the per-job inter-packet gap in milliseconds that
// keeps activeJobs concurrent copies (plus the one about to start, when
// pendingStart is set) under limitMbps in aggregate. A limit of zero or
// less disables pacing and yields 0.
func ComputeThrottle(limitMbps float64, activeJobs int, pendingStart bool) int {
	if limitMbps <= 0 || math.IsNaN(limitMbps) {
		return 0
	}
	jobs := activeJobs
	if pendingStart {
		jobs++
	}
	jobs = max(1, jobs)

	perJobBytesPerSec := (limitMbps * 1_000_000 / 8) / float64(jobs)
	ms := math.Ceil(PacketSizeBytes / perJobBytesPerSec * 1000)
	switch {
	case ms < minThrottleMs:
		return minThrottleMs
	case ms > maxThrottleMs:
		return maxThrottleMs
	}
	return int(ms)
}
