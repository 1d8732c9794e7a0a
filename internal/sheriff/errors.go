package sheriff

import "errors"

// Sentinel errors. The sheriff's lookup, mutator and script-library
// methods report one of these, wrapped with fmt.Errorf where extra
// context helps; callers distinguish kind with errors.Is. AbortScript
// instead passes through the script package's ErrNotRunning.
var (
	// ErrModeViolation is returned by any mutator while the sheriff is
	// in observer mode, and by BroadcastOrders in the same case.
	ErrModeViolation = errors.New("sheriff: mode violation: not permitted in observer mode")

	// ErrNotFound is returned by a lookup that found nothing: an unknown
	// sheriff_id, deputy name, or script name.
	ErrNotFound = errors.New("sheriff: not found")

	// ErrInvalidArgument is returned by AddScript for a duplicate script
	// name. No sheriff method checks an action's ident_type or
	// wait_status, so neither is reported with this error.
	ErrInvalidArgument = errors.New("sheriff: invalid argument")

	// ErrResourceExhausted is returned when no free sheriff_id was found
	// after the probe limit.
	ErrResourceExhausted = errors.New("sheriff: resource exhausted: no free sheriff_id")

	// ErrScriptInUse is returned by RemoveScript for the active script.
	ErrScriptInUse = errors.New("sheriff: script is in use")
)
