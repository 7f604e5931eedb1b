package session

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryParams are the CWMPRetryMinimumWaitInterval and
// CWMPRetryIntervalMultiplier of the ManagementServer object.
type RetryParams struct {
	// MinWait is m, the first retry waits between m and m*k.
	MinWait time.Duration
	// Multiplier is k, as a plain factor (the data model stores it per-mille).
	Multiplier float64
}

// DefaultRetryParams are the TR-069 defaults: 5 seconds, factor 2.
var DefaultRetryParams = RetryParams{MinWait: 5 * time.Second, Multiplier: 2}

// maxRetryExponent caps the backoff growth.
const maxRetryExponent = 10

// RetryParamsFromModel converts the data model units (seconds and per-mille).
func RetryParamsFromModel(minWaitSecs uint64, multiplierPerMille uint64) RetryParams {
	return RetryParams{
		MinWait:    time.Duration(minWaitSecs) * time.Second,
		Multiplier: float64(multiplierPerMille) / 1000,
	}
}

// RetryWait returns how long to wait before the retryCount-th retry.
// It is zero for the first attempt, and otherwise uniform in
// [m*k^(c-1), m*k^c] with c = min(retryCount, 10).
func RetryWait(retryCount int, p RetryParams, rnd *rand.Rand) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	c := min(retryCount, maxRetryExponent)
	m := p.MinWait.Seconds()
	start := m * math.Pow(p.Multiplier, float64(c-1))
	stop := start * p.Multiplier

	var f float64
	if rnd != nil {
		f = rnd.Float64()
	} else {
		f = rand.Float64()
	}
	lo, hi := min(start, stop), max(start, stop)
	return time.Duration((lo + f*(hi-lo)) * float64(time.Second))
}
