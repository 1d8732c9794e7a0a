package script

import (
	"sync"
	"time"

	"github.com/procman-go/sheriff/internal/clock"
	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/event"
)

// waitEvalThrottle bounds wait-predicate re-evaluation to 10Hz. With
// many commands oscillating, an unthrottled predicate re-runs on every
// status change and can live-lock the event loop while a cohort
// converges.
const waitEvalThrottle = 100 * time.Millisecond

// CommandLookup resolves an action's ident (a nickname, a group, or
// "everything") to the commands it targets.
type CommandLookup interface {
	CommandsByNickname(nickname string) []*command.Command
	CommandsByGroup(group string) []*command.Command
	AllCommands() []*command.Command
}

// Mutator applies a script's start/stop/restart actions to a command.
// internal/sheriff implements this over its reconciliation state.
type Mutator interface {
	StartCommand(cmd *command.Command)
	StopCommand(cmd *command.Command)
	RestartCommand(cmd *command.Command)
}

// ActionExecuting is the ScriptActionExecuting event payload: the name
// of the running script and the action about to be dispatched.
type ActionExecuting struct {
	Script string
	Action config.Action
}

type pendingWait struct {
	targets    []*command.Command
	status     config.WaitStatus
	lastEval   time.Time
	timerArmed bool
}

// Executor drives one script's actions to completion: actions execute
// synchronously until a wait_ms or wait condition suspends the loop;
// suspension resumes from a clock timer (wait_ms) or from a
// CommandStatusChanged event (wait status), never by blocking the
// caller's goroutine.
type Executor struct {
	scripts ScriptProvider
	lookup  CommandLookup
	mutate  Mutator
	events  *event.Bus
	clk     clock.Clock

	mu         sync.Mutex
	active     *executionContext
	activeName string
	wait       *pendingWait
}

// NewExecutor wires an Executor and subscribes it to CommandStatusChanged
// events for the lifetime of the process; only one script is ever active,
// so a single standing subscription (rather than subscribe-per-run) is
// enough to drive every wait-status action.
func NewExecutor(scripts ScriptProvider, lookup CommandLookup, mutate Mutator, events *event.Bus, clk clock.Clock) *Executor {
	ex := &Executor{scripts: scripts, lookup: lookup, mutate: mutate, events: events, clk: clk}
	events.OnFunc(event.CommandStatusChanged, func(event.Event) { ex.reevaluateWait() })
	return ex
}

// ActiveScript returns the name of the currently running script, or ""
// if none is active.
func (ex *Executor) ActiveScript() string {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.activeName
}

// ExecuteScript starts running the named script. It fails if another
// script is already active or the name is unknown.
func (ex *Executor) ExecuteScript(name string) error {
	ex.mu.Lock()
	if ex.active != nil {
		ex.mu.Unlock()
		return ErrAlreadyRunning
	}
	s, ok := ex.scripts.GetScript(name)
	if !ok {
		ex.mu.Unlock()
		return ErrNoSuchScript
	}
	ex.active = newExecutionContext(s, ex.scripts)
	ex.activeName = name
	ex.mu.Unlock()

	ex.events.Emit(event.Event{Kind: event.ScriptStarted, Payload: name})
	ex.step()
	return nil
}

// AbortScript cancels the active script immediately, discarding any
// pending wait.
func (ex *Executor) AbortScript() error {
	ex.mu.Lock()
	if ex.active == nil {
		ex.mu.Unlock()
		return ErrNotRunning
	}
	name := ex.activeName
	ex.active = nil
	ex.activeName = ""
	ex.wait = nil
	ex.mu.Unlock()

	ex.events.Emit(event.Event{Kind: event.ScriptFinished, Payload: name})
	return nil
}

// step runs actions until the script finishes or a wait suspends it.
// Called with ex.mu unlocked; it takes and releases the lock itself
// around each action so event callbacks firing mid-action (e.g. a
// Mutator call that synchronously emits CommandStatusChanged) never
// deadlock against reevaluateWait.
func (ex *Executor) step() {
	for {
		ex.mu.Lock()
		if ex.active == nil || ex.wait != nil {
			ex.mu.Unlock()
			return
		}
		name := ex.activeName
		action, ok := ex.active.nextAction()
		if !ok {
			ex.active = nil
			ex.activeName = ""
			ex.mu.Unlock()
			ex.events.Emit(event.Event{Kind: event.ScriptFinished, Payload: name})
			return
		}
		ex.mu.Unlock()

		ex.events.Emit(event.Event{Kind: event.ScriptActionExecuting, Payload: ActionExecuting{Script: name, Action: action}})
		if ex.runAction(action) {
			return
		}
	}
}

func (ex *Executor) resolve(identType config.IdentType, ident string) []*command.Command {
	switch identType {
	case config.IdentEverything:
		return ex.lookup.AllCommands()
	case config.IdentGroup:
		return ex.lookup.CommandsByGroup(ident)
	default:
		return ex.lookup.CommandsByNickname(ident)
	}
}

func (ex *Executor) applyMutation(actionType config.ActionType, targets []*command.Command) {
	for _, cmd := range targets {
		switch actionType {
		case config.ActionStart:
			ex.mutate.StartCommand(cmd)
		case config.ActionStop:
			ex.mutate.StopCommand(cmd)
		case config.ActionRestart:
			ex.mutate.RestartCommand(cmd)
		}
	}
}

// runAction executes one already-dequeued action and reports whether it
// suspended the dispatch loop. For start/stop/restart with a trailing
// wait clause, for bare wait-status actions, and for wait_ms, it may arm
// ex.wait or a clock timer and return true; step's caller (a clock
// callback or reevaluateWait) resumes by calling step again once the
// wait clears.
func (ex *Executor) runAction(action config.Action) bool {
	switch action.Type {
	case config.ActionStart, config.ActionStop, config.ActionRestart:
		targets := ex.resolve(action.IdentType, action.Ident)
		ex.applyMutation(action.Type, targets)
		if !action.HasWait() {
			return false
		}
		return ex.armWait(targets, action.WaitStatus)

	case config.ActionWaitStatus:
		targets := ex.resolve(action.IdentType, action.Ident)
		return ex.armWait(targets, action.WaitStatus)

	case config.ActionWaitMs:
		d := time.Duration(action.DelayMs) * time.Millisecond
		ex.clk.AfterFunc(d, ex.step)
		return true
	}
	return false
}

// armWait installs a pending wait and reports whether the loop should
// suspend. If the condition is already satisfied it clears immediately
// and lets the caller's step loop continue; otherwise it suspends until
// a status-change event (or the throttled retry timer) finds it
// satisfied.
func (ex *Executor) armWait(targets []*command.Command, status config.WaitStatus) bool {
	if statusSatisfied(targets, status) {
		return false
	}
	ex.mu.Lock()
	ex.wait = &pendingWait{targets: targets, status: status, lastEval: ex.clk.Now()}
	ex.mu.Unlock()
	return true
}

// statusSatisfied reports whether every target command has reached the
// waited-for status: "running" means command.Running, "stopped" means
// either StoppedOk or StoppedError — a caller waiting for a process to
// go away doesn't care whether it exited cleanly.
func statusSatisfied(targets []*command.Command, status config.WaitStatus) bool {
	for _, cmd := range targets {
		s := cmd.Status()
		switch status {
		case config.WaitRunning:
			if s != command.Running {
				return false
			}
		case config.WaitStopped:
			if s != command.StoppedOk && s != command.StoppedError {
				return false
			}
		}
	}
	return true
}

// reevaluateWait is the CommandStatusChanged handler. It throttles to at
// most one real evaluation per waitEvalThrottle window; a change arriving
// inside the window arms a single catch-up timer rather than evaluating
// immediately, so a burst of N status changes costs at most one extra
// evaluation instead of N.
func (ex *Executor) reevaluateWait() {
	ex.mu.Lock()
	w := ex.wait
	if w == nil {
		ex.mu.Unlock()
		return
	}
	since := ex.clk.Now().Sub(w.lastEval)
	if since < waitEvalThrottle {
		if w.timerArmed {
			ex.mu.Unlock()
			return
		}
		w.timerArmed = true
		remaining := waitEvalThrottle - since
		ex.mu.Unlock()
		ex.clk.AfterFunc(remaining, ex.reevaluateWait)
		return
	}
	w.lastEval = ex.clk.Now()
	w.timerArmed = false
	satisfied := statusSatisfied(w.targets, w.status)
	if !satisfied {
		ex.mu.Unlock()
		return
	}
	ex.wait = nil
	ex.mu.Unlock()
	ex.step()
}
