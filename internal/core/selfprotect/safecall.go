package selfprotect

import (
	"time"

	"github.com/quantshield/hips-sentinel/internal/core/hipserr"
	"github.com/quantshield/hips-sentinel/internal/telemetry/logsink"
)

// op is a sensitive operation guarded by the safe-call harness.
type op func() bool

// safeCall is the retry wrapper (spec.md §4.H.3): invokes op, and on
// failure waits a short backoff and tries again, making at most maxRetries
// attempts in all. Final failure logs a safety violation and returns false.
func safeCall(log *logsink.Sink, name string, maxRetries int, o op) bool {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastFailed bool
	for attempt := 0; attempt < maxRetries; attempt++ {
		if o() {
			return true
		}
		lastFailed = true
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
		}
	}
	if lastFailed && log != nil {
		log.Errorw("safety violation: operation failed after retries",
			"operation", name,
			"attempts", maxRetries,
			"kind", string(hipserr.ApiFault),
		)
	}
	return false
}

func backoff(attempt int) time.Duration {
	d := time.Duration(50<<uint(attempt)) * time.Millisecond
	if d > 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}

// withExceptionBarrier isolates op from asynchronous faults. Go has no
// structured-exception-handling equivalent; the idiomatic substitute is a
// deferred recover acting as the thread-boundary fault barrier spec.md
// §4.H.3 allows ("a thread-boundary or signal handler substitute is
// acceptable"). On a caught panic, logs and returns false.
func withExceptionBarrier(log *logsink.Sink, name string, o op) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			if log != nil {
				log.Errorw("exception barrier caught fault",
					"operation", name,
					"fault", r,
					"kind", string(hipserr.ApiFault),
				)
			}
			result = false
		}
	}()
	return o()
}

// safeExecute is every safe_* operation's shape: safe_call outside,
// with_exception_barrier inside (spec.md §4.H.3, final paragraph).
func safeExecute(log *logsink.Sink, name string, maxRetries int, o op) bool {
	return safeCall(log, name, maxRetries, func() bool {
		return withExceptionBarrier(log, name, o)
	})
}
