// Package resilience guards outbound calls that scripts make back into the
// unit with per-host circuit breakers.
//
// A breaker starts closed. After Settings.FailureThreshold consecutive
// failures it opens and rejects calls for Settings.OpenTimeout, then lets a
// limited number of probe calls through (half-open). Enough successful
// probes close it again; any failed probe reopens it.
//
//	set := resilience.NewSet(resilience.Settings{FailureThreshold: 5})
//	done, err := set.For("unit.example.com").Allow()
//	if err != nil {
//		return err // open or saturated
//	}
//	resp, err := call()
//	done(err == nil && resp.StatusCode() < 500)
package resilience
