package script

import "errors"

var (
	// ErrAlreadyRunning is returned by ExecuteScript when a script is
	// already active; only one script runs at a time.
	ErrAlreadyRunning = errors.New("script: a script is already running")

	// ErrNoSuchScript is returned by ExecuteScript for an unknown name.
	ErrNoSuchScript = errors.New("script: no such script")

	// ErrNotRunning is returned by AbortScript when nothing is active.
	ErrNotRunning = errors.New("script: no script is running")
)
