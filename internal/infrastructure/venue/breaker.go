package venue

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// newBreaker trips after 3 consecutive failures, or a >5% failure rate once a
// venue has seen 20 requests in the window. Venues are flaky; a tripped
// breaker just means the scanner runs with one venue fewer for a minute.
func newBreaker(name string) *cb.CircuitBreaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return cb.NewCircuitBreaker(st)
}
