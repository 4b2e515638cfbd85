// Package bandwidth computes the per-job inter-packet gap the copier
// argument builder attaches to each invocation, so the sum of per-job
// caps approximates a configured aggregate bandwidth limit.
package bandwidth

import "math"

// packetSize is the fixed packet size, in bytes, the copier's inter-packet
// gap throttling assumes.
const packetSize = 512

// Gap returns the inter-packet gap, in milliseconds, a newly started job
// should use so that limitMbps (megabits/sec) is approximately shared
// across activeJobs currently running plus one more if pendingNew is set.
// Returns 0 (no throttling) when limitMbps <= 0.
func Gap(limitMbps float64, activeJobs int, pendingNew bool) int {
	if limitMbps <= 0 {
		return 0
	}

	denominator := math.Max(1, float64(activeJobs))
	if pendingNew {
		denominator++
	}

	perJobBytesPerSec := (limitMbps * 125000) / denominator
	if perJobBytesPerSec <= 0 {
		return 10000
	}

	gapMS := int(math.Ceil(packetSize * 1000 / perJobBytesPerSec))
	if gapMS < 1 {
		gapMS = 1
	}
	if gapMS > 10000 {
		gapMS = 10000
	}
	return gapMS
}
