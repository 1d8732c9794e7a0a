package script

import (
	"testing"
	"time"

	"github.com/procman-go/sheriff/internal/clock"
	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/event"
)

type fakeLookup struct {
	byNick map[string][]*command.Command
}

func (f fakeLookup) CommandsByNickname(n string) []*command.Command { return f.byNick[n] }
func (f fakeLookup) CommandsByGroup(string) []*command.Command      { return nil }
func (f fakeLookup) AllCommands() []*command.Command                { return nil }

type fakeMutator struct {
	started, stopped []*command.Command
}

func (m *fakeMutator) StartCommand(c *command.Command)   { m.started = append(m.started, c) }
func (m *fakeMutator) StopCommand(c *command.Command)    { m.stopped = append(m.stopped, c) }
func (m *fakeMutator) RestartCommand(c *command.Command) {}

func TestExecuteScriptRunsToCompletionWithNoWaits(t *testing.T) {
	scripts := fakeScripts{
		"s": {Name: "s", Actions: []config.Action{{Type: config.ActionWaitMs, DelayMs: 0}}},
	}
	clk := clock.NewFake(time.Unix(0, 0))
	events := event.New()
	finished := events.Subscribe(event.ScriptFinished)
	ex := NewExecutor(scripts, fakeLookup{}, &fakeMutator{}, events, clk)

	if err := ex.ExecuteScript("s"); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	clk.Advance(0)

	select {
	case <-finished:
	default:
		t.Fatal("expected ScriptFinished after a wait_ms 0 action")
	}
	if ex.ActiveScript() != "" {
		t.Fatal("no script should be active after completion")
	}
}

func TestExecuteScriptRejectsUnknownName(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	ex := NewExecutor(fakeScripts{}, fakeLookup{}, &fakeMutator{}, event.New(), clk)
	if err := ex.ExecuteScript("nope"); err != ErrNoSuchScript {
		t.Fatalf("err = %v, want ErrNoSuchScript", err)
	}
}

func TestExecuteScriptRejectsConcurrentRun(t *testing.T) {
	scripts := fakeScripts{
		"s": {Name: "s", Actions: []config.Action{{Type: config.ActionWaitStatus, IdentType: config.IdentCmd, Ident: "foo", WaitStatus: config.WaitRunning}}},
	}
	foo := &command.Command{Nickname: "foo", DesiredRunID: 1, ActualRunID: 0}
	lookup := fakeLookup{byNick: map[string][]*command.Command{"foo": {foo}}}
	clk := clock.NewFake(time.Unix(0, 0))
	ex := NewExecutor(scripts, lookup, &fakeMutator{}, event.New(), clk)

	if err := ex.ExecuteScript("s"); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if err := ex.ExecuteScript("s"); err != ErrAlreadyRunning {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestAbortScriptClearsActiveAndPendingWait(t *testing.T) {
	scripts := fakeScripts{
		"s": {Name: "s", Actions: []config.Action{{Type: config.ActionWaitStatus, IdentType: config.IdentCmd, Ident: "foo", WaitStatus: config.WaitRunning}}},
	}
	foo := &command.Command{Nickname: "foo", DesiredRunID: 1, ActualRunID: 0}
	lookup := fakeLookup{byNick: map[string][]*command.Command{"foo": {foo}}}
	clk := clock.NewFake(time.Unix(0, 0))
	ex := NewExecutor(scripts, lookup, &fakeMutator{}, event.New(), clk)
	if err := ex.ExecuteScript("s"); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if err := ex.AbortScript(); err != nil {
		t.Fatalf("AbortScript: %v", err)
	}
	if ex.ActiveScript() != "" {
		t.Fatal("expected no active script after abort")
	}
	if err := ex.AbortScript(); err != ErrNotRunning {
		t.Fatalf("second AbortScript err = %v, want ErrNotRunning", err)
	}
}

// TestStartWaitThenStopWaitSequence exercises the dispatch-loop scenario
// of starting a command, waiting for it to report running, waiting a
// fixed delay, then stopping it and waiting for it to report stopped —
// all suspension points driven by a clock.Fake and synthetic
// CommandStatusChanged events rather than real process state.
func TestStartWaitThenStopWaitSequence(t *testing.T) {
	scripts := fakeScripts{
		"deploy": {Name: "deploy", Actions: []config.Action{
			{Type: config.ActionStart, IdentType: config.IdentCmd, Ident: "foo", WaitStatus: config.WaitRunning},
			{Type: config.ActionWaitMs, DelayMs: 50},
			{Type: config.ActionStop, IdentType: config.IdentCmd, Ident: "foo", WaitStatus: config.WaitStopped},
		}},
	}
	foo := &command.Command{Nickname: "foo", DesiredRunID: 1, ActualRunID: 0}
	lookup := fakeLookup{byNick: map[string][]*command.Command{"foo": {foo}}}
	mutator := &fakeMutator{}
	clk := clock.NewFake(time.Unix(0, 0))
	events := event.New()
	finished := events.Subscribe(event.ScriptFinished)
	ex := NewExecutor(scripts, lookup, mutator, events, clk)

	if err := ex.ExecuteScript("deploy"); err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if len(mutator.started) != 1 || mutator.started[0] != foo {
		t.Fatalf("expected StartCommand(foo), got %+v", mutator.started)
	}
	if ex.ActiveScript() != "deploy" {
		t.Fatal("script should still be active, suspended on wait running")
	}

	// Not yet running: a status-change event should not advance the script.
	events.Emit(event.Event{Kind: event.CommandStatusChanged})
	select {
	case <-finished:
		t.Fatal("script should not finish before foo reports running")
	default:
	}

	foo.ActualRunID = 1
	foo.PID = 100
	events.Emit(event.Event{Kind: event.CommandStatusChanged})
	// Within the throttle window: reevaluateWait arms a catch-up timer
	// rather than evaluating immediately.
	clk.Advance(waitEvalThrottle)

	// wait_ms 50 should now be pending.
	clk.Advance(50 * time.Millisecond)

	if len(mutator.stopped) != 1 || mutator.stopped[0] != foo {
		t.Fatalf("expected StopCommand(foo) after the wait_ms, got %+v", mutator.stopped)
	}

	foo.PID = 0
	foo.ExitCode = 0
	events.Emit(event.Event{Kind: event.CommandStatusChanged})
	clk.Advance(waitEvalThrottle)

	select {
	case <-finished:
	default:
		t.Fatal("expected ScriptFinished once foo reports stopped")
	}
	if ex.ActiveScript() != "" {
		t.Fatal("no script should be active after completion")
	}
}
