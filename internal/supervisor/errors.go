package supervisor

import "errors"

// Failure taxonomy surfaced to the control surface. Callers classify
// with errors.Is and map each class to an HTTP status and error code.
var (
	// ErrNotFound: the named artifact does not exist in the store.
	ErrNotFound = errors.New("script not found")
	// ErrNotRunning: stop/status target is not tracked.
	ErrNotRunning = errors.New("script not running")
	// ErrSpawn: OS process creation failed.
	ErrSpawn = errors.New("spawn failed")
	// ErrStop: kill signal could not be delivered.
	ErrStop = errors.New("stop failed")
	// ErrProbe: PID query failed, process likely dead.
	ErrProbe = errors.New("probe failed")
)
