package sheriff

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/procman-go/sheriff/internal/bus"
	"github.com/procman-go/sheriff/internal/clock"
	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/deputy"
	"github.com/procman-go/sheriff/internal/event"
	"github.com/procman-go/sheriff/internal/wire"
)

func newTestSheriff(observer bool, clk clock.Clock) *Sheriff {
	return New("test-sheriff", observer, bus.New(), event.New(), clk)
}

func TestAllocateSheriffIDAvoidsCollisionWithExistingIDs(t *testing.T) {
	s := newTestSheriff(false, clock.Real{})
	defer s.Close()

	d := deputy.New("host1")
	for i := 0; i < 1000; i++ {
		id := int32(i*37 + 1)
		d.Commands[id] = &command.Command{SheriffID: id}
	}
	s.mu.Lock()
	d.Commands[s.nextSheriffID] = &command.Command{SheriffID: s.nextSheriffID}
	s.deputies["host1"] = d
	s.mu.Unlock()

	s.mu.Lock()
	id, err := s.allocateSheriffIDLocked()
	s.mu.Unlock()
	if err != nil {
		t.Fatalf("allocateSheriffIDLocked: %v", err)
	}
	if _, used := d.Commands[id]; used {
		t.Fatalf("allocated id %d collides with an existing command", id)
	}
}

func TestAllocateSheriffIDExhaustion(t *testing.T) {
	s := newTestSheriff(false, clock.Real{})
	defer s.Close()

	d := deputy.New("host1")
	id := s.nextSheriffID
	for i := 0; i < maxProbes; i++ {
		d.Commands[id] = &command.Command{SheriffID: id}
		id = advanceID(id)
	}
	s.mu.Lock()
	s.deputies["host1"] = d
	_, err := s.allocateSheriffIDLocked()
	s.mu.Unlock()
	if !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("err = %v, want ErrResourceExhausted", err)
	}
}

func TestObserverModeRejectsMutators(t *testing.T) {
	s := newTestSheriff(true, clock.Real{})
	defer s.Close()

	if _, err := s.AddCommand("host1", "sleep 10", "", "", false); !errors.Is(err, ErrModeViolation) {
		t.Fatalf("AddCommand err = %v, want ErrModeViolation", err)
	}
	cmd := &command.Command{SheriffID: 1}
	if err := s.StartCommand(cmd); !errors.Is(err, ErrModeViolation) {
		t.Fatalf("StartCommand err = %v, want ErrModeViolation", err)
	}
	if err := s.BroadcastOrders(); !errors.Is(err, ErrModeViolation) {
		t.Fatalf("BroadcastOrders err = %v, want ErrModeViolation", err)
	}
}

func TestObserverModeMirrorsPeerOrders(t *testing.T) {
	s := newTestSheriff(true, clock.Real{})
	defer s.Close()

	orders := wire.Orders{
		Host:        "host1",
		SheriffName: "peer-sheriff",
		Cmds:        []wire.SheriffCmd{{Name: "sleep 10", SheriffID: 5, DesiredRunID: 1}},
	}
	s.handleOrders(bus.Message{Payload: wire.EncodeOrders(orders)})

	d, err := s.FindDeputy("host1")
	if err != nil {
		t.Fatalf("FindDeputy: %v", err)
	}
	if _, ok := d.Commands[5]; !ok {
		t.Fatal("expected command 5 to be mirrored from the peer's orders")
	}
}

func TestNonObserverIgnoresIncomingOrders(t *testing.T) {
	s := newTestSheriff(false, clock.Real{})
	defer s.Close()

	orders := wire.Orders{Host: "host1", Cmds: []wire.SheriffCmd{{SheriffID: 5, DesiredRunID: 1}}}
	s.handleOrders(bus.Message{Payload: wire.EncodeOrders(orders)})

	if _, err := s.FindDeputy("host1"); err == nil {
		t.Fatal("a non-observer sheriff must not act on PMD_ORDERS")
	}
}

func TestHandleInfoDropsStaleReportOutsideObserverMode(t *testing.T) {
	s := newTestSheriff(false, clock.Real{})
	defer s.Close()

	stale := wire.Info{Host: "host1", UTime: 1} // microsecond 1 — decades old
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(stale)})

	if len(s.GetDeputies()) != 0 {
		t.Fatal("a stale PMD_INFO report must be dropped, not merged")
	}
}

func TestHandleInfoNaturalCompletionEmitsStatusChanged(t *testing.T) {
	clk := clock.Real{}
	s := newTestSheriff(false, clk)
	defer s.Close()

	sub := s.events.Subscribe(event.CommandStatusChanged)

	info1 := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 10", SheriffID: 7, PID: 111, ActualRunID: 1}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(info1)})

	info2 := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 10", SheriffID: 7, PID: 0, ActualRunID: 1, ExitCode: 0}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(info2)})

	select {
	case ev := <-sub:
		sc, ok := ev.Payload.(deputy.StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want deputy.StatusChange", ev.Payload)
		}
		if sc.NewStatus == nil || *sc.NewStatus != command.StoppedOk {
			t.Fatalf("NewStatus = %v, want StoppedOk", sc.NewStatus)
		}
		if !sc.Command.ForceQuit {
			t.Fatal("natural completion with auto_respawn=false must set force_quit")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for CommandStatusChanged")
	}
}

func TestStopCommandThenSignalledExitReportsStoppedOk(t *testing.T) {
	clk := clock.Real{}
	s := newTestSheriff(false, clk)
	defer s.Close()

	cmd, err := s.AddCommand("host1", "sleep 100", "", "", false)
	if err != nil {
		t.Fatalf("AddCommand: %v", err)
	}

	running := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 100", SheriffID: cmd.SheriffID, PID: 222, ActualRunID: int32(cmd.DesiredRunID)}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(running)})
	if cmd.Status() != command.Running {
		t.Fatalf("precondition: Status() = %v, want Running", cmd.Status())
	}

	sub := s.events.Subscribe(event.CommandStatusChanged)

	if err := s.StopCommand(cmd); err != nil {
		t.Fatalf("StopCommand: %v", err)
	}
	<-sub // TryingToStop

	killed := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 100", SheriffID: cmd.SheriffID, PID: 0, ActualRunID: int32(cmd.DesiredRunID), ExitCode: int32(syscall.SIGTERM)}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(killed)})

	select {
	case ev := <-sub:
		sc := ev.Payload.(deputy.StatusChange)
		if sc.NewStatus == nil || *sc.NewStatus != command.StoppedOk {
			t.Fatalf("NewStatus = %v, want StoppedOk", sc.NewStatus)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the post-kill CommandStatusChanged")
	}
}

func TestExecuteScriptReportsCycleWithoutRunning(t *testing.T) {
	s := newTestSheriff(false, clock.Real{})
	defer s.Close()

	if err := s.AddScript(&config.Script{Name: "a", Actions: []config.Action{{Type: config.ActionRunScript, ScriptName: "b"}}}); err != nil {
		t.Fatalf("AddScript a: %v", err)
	}
	if err := s.AddScript(&config.Script{Name: "b", Actions: []config.Action{{Type: config.ActionRunScript, ScriptName: "a"}}}); err != nil {
		t.Fatalf("AddScript b: %v", err)
	}

	errs := s.ExecuteScript("a")
	if len(errs) == 0 {
		t.Fatal("expected a cycle-detection error")
	}
	if s.GetActiveScript() != "" {
		t.Fatal("a script that fails validation must not become active")
	}
}

func TestExecuteScriptAbortsActiveScriptBeforeValidation(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := newTestSheriff(false, clk)
	defer s.Close()

	if _, err := s.AddCommand("host1", "sleep 100", "worker", "", false); err != nil {
		t.Fatalf("AddCommand: %v", err)
	}
	if err := s.AddScript(&config.Script{Name: "hold", Actions: []config.Action{
		{Type: config.ActionWaitStatus, IdentType: config.IdentCmd, Ident: "worker", WaitStatus: config.WaitRunning},
	}}); err != nil {
		t.Fatalf("AddScript hold: %v", err)
	}
	if err := s.AddScript(&config.Script{Name: "bad", Actions: []config.Action{
		{Type: config.ActionRunScript, ScriptName: "bad"},
	}}); err != nil {
		t.Fatalf("AddScript bad: %v", err)
	}

	if errs := s.ExecuteScript("hold"); len(errs) != 0 {
		t.Fatalf("ExecuteScript hold: %v", errs)
	}
	if s.GetActiveScript() != "hold" {
		t.Fatal("precondition: hold should be active, suspended on its wait")
	}

	errs := s.ExecuteScript("bad")
	if len(errs) == 0 {
		t.Fatal("expected validation errors for the self-calling script")
	}
	if s.GetActiveScript() != "" {
		t.Fatal("the active script must be aborted before validation runs, even when validation then fails")
	}
}

// TestConcurrentMutatorsWithInfoReports drives operator mutators from
// the test goroutine while deputy reports are applied from another,
// the same interleaving the console and the bus pump produce. It has no
// assertion beyond not crashing: the deputy map and command fields must
// stay consistent under the sheriff's lock.
func TestConcurrentMutatorsWithInfoReports(t *testing.T) {
	clk := clock.Real{}
	s := newTestSheriff(false, clk)
	defer s.Close()

	cmd, err := s.AddCommand("host1", "sleep 1", "worker", "", false)
	if err != nil {
		t.Fatalf("AddCommand: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			info := wire.Info{
				Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
				Cmds: []wire.CmdInfo{{Name: "sleep 1", Nickname: "worker", SheriffID: cmd.SheriffID, PID: 42, ActualRunID: int32(i)}},
			}
			s.handleInfo(bus.Message{Payload: wire.EncodeInfo(info)})
		}
	}()

	for i := 0; i < 200; i++ {
		if err := s.StartCommand(cmd); err != nil {
			t.Fatalf("StartCommand: %v", err)
		}
		if err := s.StopCommand(cmd); err != nil {
			t.Fatalf("StopCommand: %v", err)
		}
	}
	<-done
}

func TestExecuteScriptEndToEndWithWaitStatus(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := newTestSheriff(false, clk)
	defer s.Close()

	cmd, err := s.AddCommand("host1", "sleep 100", "worker", "", false)
	if err != nil {
		t.Fatalf("AddCommand: %v", err)
	}
	script := &config.Script{Name: "deploy", Actions: []config.Action{
		{Type: config.ActionStart, IdentType: config.IdentCmd, Ident: "worker", WaitStatus: config.WaitRunning},
		{Type: config.ActionStop, IdentType: config.IdentCmd, Ident: "worker", WaitStatus: config.WaitStopped},
	}}
	if err := s.AddScript(script); err != nil {
		t.Fatalf("AddScript: %v", err)
	}

	finished := s.events.Subscribe(event.ScriptFinished)

	if errs := s.ExecuteScript("deploy"); len(errs) != 0 {
		t.Fatalf("ExecuteScript: %v", errs)
	}
	if s.GetActiveScript() != "deploy" {
		t.Fatal("script should be active, suspended waiting for worker to report running")
	}

	// Deputy reports the command running at the runid the script's start
	// action requested.
	running := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 100", Nickname: "worker", SheriffID: cmd.SheriffID, PID: 333, ActualRunID: int32(cmd.DesiredRunID)}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(running)})
	clk.Advance(150 * time.Millisecond) // past the wait-predicate throttle

	select {
	case <-finished:
		t.Fatal("script must not finish until the stop action's wait is also satisfied")
	default:
	}

	stopped := wire.Info{
		Host: "host1", UTime: uint64(clk.Now().UnixMicro()),
		Cmds: []wire.CmdInfo{{Name: "sleep 100", Nickname: "worker", SheriffID: cmd.SheriffID, PID: 0, ActualRunID: int32(cmd.DesiredRunID), ExitCode: 0}},
	}
	s.handleInfo(bus.Message{Payload: wire.EncodeInfo(stopped)})
	clk.Advance(150 * time.Millisecond)

	select {
	case <-finished:
	default:
		t.Fatal("expected ScriptFinished once worker reports stopped")
	}
	if s.GetActiveScript() != "" {
		t.Fatal("no script should be active after completion")
	}
}
