// Package command implements the Command model: the unit of supervision
// tracked by a deputy, plus the pure status-derivation function.
package command

import "syscall"

// Status is the derived, non-stored state of a Command. It is always
// computed from Command's fields — never cached — so that callers must
// snapshot (before, after) at the point of mutation to detect a change.
type Status int

const (
	// StatusUnknown is returned for a desired/actual mismatch combined
	// with force_quit — a state the model does not otherwise name.
	StatusUnknown Status = iota
	TryingToStart
	Restarting
	Running
	TryingToStop
	Removing
	StoppedOk
	StoppedError
)

func (s Status) String() string {
	switch s {
	case TryingToStart:
		return "TryingToStart"
	case Restarting:
		return "Restarting"
	case Running:
		return "Running"
	case TryingToStop:
		return "TryingToStop"
	case Removing:
		return "Removing"
	case StoppedOk:
		return "StoppedOk"
	case StoppedError:
		return "StoppedError"
	default:
		return "Unknown"
	}
}

// maxRunID is the wrap boundary for desired_runid: once the counter
// exceeds 2^31-1 (the largest positive int32) it restarts at 1. Command
// stores the counter as int64 so the comparison never overflows before
// the wrap check runs; the wire's int32 runid field always carries a
// positive value.
const maxRunID = int64(1)<<31 - 1

// Command is one user process under supervision, identified by
// SheriffID. All fields are plain data; every mutator here is pure —
// no I/O, no locking. Callers (internal/deputy, internal/sheriff) own
// synchronization.
type Command struct {
	SheriffID           int32 // 30-bit positive integer; 0 = unassigned
	Name                string
	Nickname            string
	Group               string
	DesiredRunID        int64
	ActualRunID         int64
	ForceQuit           bool
	AutoRespawn         bool
	ScheduledForRemoval bool

	// Observed fields — written only via ApplyObservation.
	PID           int32
	ExitCode      int32
	CPUUsage      float64
	MemVsizeBytes uint64
	MemRSSBytes   uint64
}

// Observation is the subset of an inbound Info record pertaining to a
// single command, as reported by its owning deputy.
type Observation struct {
	PID           int32
	ActualRunID   int64
	ExitCode      int32
	CPUUsage      float64
	MemVsizeBytes uint64
	MemRSSBytes   uint64
}

// Intent mirrors the desired-state fields of a peer sheriff's Orders
// broadcast, applied in observer mode.
type Intent struct {
	SheriffID    int32
	Name         string
	Nickname     string
	Group        string
	DesiredRunID int64
	ForceQuit    bool
}

// bumpRunID implements the shared increment-with-wrap used by Start
// and Restart: desired_runid is never decremented except at wrap.
func bumpRunID(id int64) int64 {
	id++
	if id > maxRunID {
		id = 1
	}
	return id
}

// Start bumps DesiredRunID (with wrap) and clears ForceQuit, unless the
// command is already running and not being force-quit, in which case
// it is a no-op.
func (c *Command) Start() {
	if c.PID > 0 && !c.ForceQuit {
		return
	}
	c.DesiredRunID = bumpRunID(c.DesiredRunID)
	c.ForceQuit = false
}

// Restart unconditionally bumps DesiredRunID (with wrap) and clears
// ForceQuit.
func (c *Command) Restart() {
	c.DesiredRunID = bumpRunID(c.DesiredRunID)
	c.ForceQuit = false
}

// Stop requests termination by setting ForceQuit.
func (c *Command) Stop() {
	c.ForceQuit = true
}

// ApplyObservation overwrites the observed fields from a deputy report
// and applies the natural-completion invariant: if the process has
// exited at the runid the sheriff wanted, and nothing asked it to
// respawn, force_quit is set so a deputy restart won't respawn it.
func (c *Command) ApplyObservation(obs Observation) {
	c.PID = obs.PID
	c.ActualRunID = obs.ActualRunID
	c.ExitCode = obs.ExitCode
	c.CPUUsage = obs.CPUUsage
	c.MemVsizeBytes = obs.MemVsizeBytes
	c.MemRSSBytes = obs.MemRSSBytes

	if c.PID == 0 && c.ActualRunID == c.DesiredRunID && !c.AutoRespawn && !c.ForceQuit {
		c.ForceQuit = true
	}
}

// ApplyIntent mirrors a peer sheriff's desired-state fields onto this
// command (observer mode). SheriffID must already match — the caller
// looked the command up by that id, so a mismatch is an implementation
// bug rather than a user-visible error.
func (c *Command) ApplyIntent(in Intent) {
	if c.SheriffID != in.SheriffID {
		panic("command: ApplyIntent sheriff_id mismatch")
	}
	c.Name = in.Name
	c.Nickname = in.Nickname
	c.Group = in.Group
	c.DesiredRunID = in.DesiredRunID
	c.ForceQuit = in.ForceQuit
}

// terminalSignals is the set of signals that, combined with force_quit,
// still count as a clean stop.
var terminalSignals = map[syscall.Signal]bool{
	syscall.SIGTERM: true,
	syscall.SIGINT:  true,
	syscall.SIGKILL: true,
}

// wifSignaled and wtermSig decode a POSIX wait-status exit code the way
// os.ProcessState / syscall.WaitStatus do, without requiring a live
// process (the exit code here was transported across the wire, not
// produced locally).
func wifSignaled(exitCode int32) bool {
	return syscall.WaitStatus(exitCode).Signaled()
}

func wtermSig(exitCode int32) syscall.Signal {
	return syscall.WaitStatus(exitCode).Signal()
}

// Status computes the derived status. It is a pure function of
// Command's fields.
func (c *Command) Status() Status {
	if c.DesiredRunID != c.ActualRunID {
		if c.ForceQuit {
			return StatusUnknown
		}
		if c.PID == 0 {
			return TryingToStart
		}
		return Restarting
	}

	// DesiredRunID == ActualRunID from here on.
	if c.PID > 0 {
		if !c.ForceQuit && !c.ScheduledForRemoval {
			return Running
		}
		return TryingToStop
	}

	if c.ScheduledForRemoval {
		return Removing
	}
	if c.ExitCode == 0 {
		return StoppedOk
	}
	if c.ForceQuit && wifSignaled(c.ExitCode) && terminalSignals[wtermSig(c.ExitCode)] {
		return StoppedOk
	}
	return StoppedError
}
