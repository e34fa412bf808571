package casdict

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; backends and wrappers call
// them on hot paths. See hooks/async for a non-blocking fan-out and
// sloghooks for a slog-backed implementation.
type Hooks interface {
	// A transient backend error was retried. attempt is 1-based.
	RetryScheduled(op, target string, attempt int, err error)

	// The retry budget for a transient error ran out; the original error
	// propagates to the caller.
	RetriesExhausted(op, target string, attempts int, err error)

	// A stat-read-stat read observed the entry change underneath it.
	ReadRaceDetected(target string, attempt int)

	// An insert-if-absent lost the create/delete race once more.
	CreateRaceDetected(target string, attempt int)

	// A cache refresh after a rejected write failed; the stale cache
	// entries were dropped instead.
	CacheRefreshFailed(target string, err error)

	// A write-once read-back verification failed.
	VerifyFailed(target string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) RetryScheduled(string, string, int, error)   {}
func (NopHooks) RetriesExhausted(string, string, int, error) {}
func (NopHooks) ReadRaceDetected(string, int)                {}
func (NopHooks) CreateRaceDetected(string, int)              {}
func (NopHooks) CacheRefreshFailed(string, error)            {}
func (NopHooks) VerifyFailed(string)                         {}
