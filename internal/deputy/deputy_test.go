package deputy

import (
	"testing"

	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/wire"
)

func TestApplyInfoCreatesCommandAndAdoptsRunID(t *testing.T) {
	d := New("host1")
	info := wire.Info{
		Host: "host1",
		Cmds: []wire.CmdInfo{{Name: "sleep 10", Nickname: "sleeper", SheriffID: 7, PID: 123, ActualRunID: 1}},
	}
	changes := d.ApplyInfo(info)
	if len(changes) != 1 {
		t.Fatalf("len(changes) = %d, want 1", len(changes))
	}
	if changes[0].OldStatus != nil {
		t.Fatal("newly-created command must report OldStatus == nil")
	}
	cmd, ok := d.Commands[7]
	if !ok {
		t.Fatal("command not added under sheriff_id 7")
	}
	if cmd.DesiredRunID != 1 {
		t.Fatalf("DesiredRunID = %d, want adopted actual_runid 1", cmd.DesiredRunID)
	}
	if cmd.Status() != command.Running {
		t.Fatalf("Status() = %v, want Running", cmd.Status())
	}
}

func TestApplyInfoRemovesScheduledAbsentCommand(t *testing.T) {
	d := New("host1")
	d.ApplyInfo(wire.Info{Host: "host1", Cmds: []wire.CmdInfo{{SheriffID: 1, PID: 5, ActualRunID: 1}}})
	cmd := d.Commands[1]
	cmd.ScheduledForRemoval = true

	changes := d.ApplyInfo(wire.Info{Host: "host1"}) // empty report — cmd absent
	if len(changes) != 1 || changes[0].NewStatus != nil {
		t.Fatalf("expected one removal change, got %+v", changes)
	}
	if _, ok := d.Commands[1]; ok {
		t.Fatal("command should have been deleted")
	}
}

func TestApplyOrdersSchedulesAbsentCommandsForRemoval(t *testing.T) {
	d := New("host1")
	d.ApplyOrders(wire.Orders{Host: "host1", Cmds: []wire.SheriffCmd{{SheriffID: 1, DesiredRunID: 1}}})
	d.ApplyOrders(wire.Orders{Host: "host1"}) // peer no longer advertises sheriff_id 1
	cmd, ok := d.Commands[1]
	if !ok {
		t.Fatal("command should still be present, only scheduled")
	}
	if !cmd.ScheduledForRemoval {
		t.Fatal("command absent from peer orders should become scheduled_for_removal")
	}
}

func TestScheduleForRemovalImmediateBeforeFirstReport(t *testing.T) {
	d := New("host1")
	cmd := &command.Command{SheriffID: 1}
	d.AddCommand(cmd)
	changes, err := d.ScheduleForRemoval(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changes) != 1 || changes[0].NewStatus != nil {
		t.Fatalf("expected immediate removal change, got %+v", changes)
	}
	if _, ok := d.Commands[1]; ok {
		t.Fatal("never-reported command should be removed immediately")
	}
}

func TestMakeOrdersExcludesScheduledForRemoval(t *testing.T) {
	d := New("host1")
	keep := &command.Command{SheriffID: 1, Name: "a"}
	drop := &command.Command{SheriffID: 2, Name: "b", ScheduledForRemoval: true}
	d.AddCommand(keep)
	d.AddCommand(drop)
	orders := d.MakeOrders("sheriff-1")
	if len(orders.Cmds) != 1 || orders.Cmds[0].SheriffID != 1 {
		t.Fatalf("MakeOrders should exclude scheduled_for_removal commands, got %+v", orders.Cmds)
	}
}

func TestIsEmpty(t *testing.T) {
	d := New("host1")
	if !d.IsEmpty() {
		t.Fatal("fresh deputy should be empty")
	}
	d.AddCommand(&command.Command{SheriffID: 1, ScheduledForRemoval: true})
	if !d.IsEmpty() {
		t.Fatal("deputy with only scheduled_for_removal commands should be empty")
	}
	d.AddCommand(&command.Command{SheriffID: 2})
	if d.IsEmpty() {
		t.Fatal("deputy with a live command should not be empty")
	}
}
