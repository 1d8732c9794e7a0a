// Package deputy implements the sheriff's view of one remote deputy:
// the per-deputy table of commands, and the merge operations that apply
// inbound Info/Orders reports and produce outbound Orders. A Deputy
// does no locking of its own; the owning sheriff serializes access.
package deputy

import (
	"fmt"
	"time"

	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/wire"
)

// StatusChange records one command's status transition for the
// reconciliation engine's fan-out. OldStatus/NewStatus use a pointer so
// "absent" (⊥, a newly-added or just-removed command) is distinguishable
// from any real command.Status value.
type StatusChange struct {
	Command   *command.Command
	OldStatus *command.Status
	NewStatus *command.Status
}

func statusPtr(s command.Status) *command.Status {
	return &s
}

// Deputy is identified by Name (the host string from inbound messages)
// and owns a table of commands keyed by SheriffID.
type Deputy struct {
	Name         string
	Commands     map[int32]*command.Command
	LastUpdate   time.Time // zero value = never reported
	CPULoad      float64
	PhysMemTotal uint64
	PhysMemFree  uint64
	Variables    map[string]string
}

// New creates an empty Deputy.
func New(name string) *Deputy {
	return &Deputy{
		Name:      name,
		Commands:  make(map[int32]*command.Command),
		Variables: make(map[string]string),
	}
}

// OwnsCommand reports whether cmd is this deputy's own record (by
// identity through SheriffID, not merely equal contents).
func (d *Deputy) OwnsCommand(cmd *command.Command) bool {
	owned, ok := d.Commands[cmd.SheriffID]
	return ok && owned == cmd
}

// AddCommand inserts newcmd into the deputy's table. SheriffID must
// already be non-zero and allocated by the caller (internal/sheriff).
func (d *Deputy) AddCommand(newcmd *command.Command) {
	if newcmd.SheriffID == 0 {
		panic("deputy: AddCommand with unassigned sheriff_id")
	}
	d.Commands[newcmd.SheriffID] = newcmd
}

// ApplyInfo merges one inbound PMD_INFO report into the command table.
// It returns one StatusChange per command whose status changed, in
// report order, followed by removal tuples for any command that was
// ScheduledForRemoval and absent from this report.
func (d *Deputy) ApplyInfo(info wire.Info) []StatusChange {
	var changes []StatusChange
	reported := make(map[int32]bool, len(info.Cmds))

	for _, ci := range info.Cmds {
		reported[ci.SheriffID] = true
		cmd, existed := d.Commands[ci.SheriffID]
		var oldStatus *command.Status
		if existed {
			oldStatus = statusPtr(cmd.Status())
		} else {
			cmd = &command.Command{
				SheriffID:    ci.SheriffID,
				Name:         ci.Name,
				Nickname:     ci.Nickname,
				Group:        ci.Group,
				DesiredRunID: int64(ci.ActualRunID),
				AutoRespawn:  ci.AutoRespawn,
			}
			d.AddCommand(cmd)
			oldStatus = nil
		}

		cmd.ApplyObservation(command.Observation{
			PID:           ci.PID,
			ActualRunID:   int64(ci.ActualRunID),
			ExitCode:      ci.ExitCode,
			CPUUsage:      float64(ci.CPUUsage),
			MemVsizeBytes: ci.MemVsizeBytes,
			MemRSSBytes:   ci.MemRSSBytes,
		})

		newStatus := cmd.Status()
		if oldStatus == nil || *oldStatus != newStatus {
			changes = append(changes, StatusChange{Command: cmd, OldStatus: oldStatus, NewStatus: statusPtr(newStatus)})
		}
	}

	for id, cmd := range d.Commands {
		if cmd.ScheduledForRemoval && !reported[id] {
			old := cmd.Status()
			changes = append(changes, StatusChange{Command: cmd, OldStatus: &old, NewStatus: nil})
			delete(d.Commands, id)
		}
	}

	// Variables on the Info side are not reconciled into the deputy
	// model; outbound orders carry the sheriff-side map only.

	d.LastUpdate = time.Now()
	d.CPULoad = float64(info.CPULoad)
	d.PhysMemTotal = info.PhysMemTotal
	d.PhysMemFree = info.PhysMemFree

	return changes
}

// ApplyOrders mirrors a peer sheriff's broadcast intent into the
// command table (observer mode only). Any local command absent from the
// peer's orders becomes ScheduledForRemoval rather than being deleted
// outright — actual deletion happens on the next ApplyInfo.
func (d *Deputy) ApplyOrders(orders wire.Orders) []StatusChange {
	var changes []StatusChange
	present := make(map[int32]bool, len(orders.Cmds))

	for _, co := range orders.Cmds {
		present[co.SheriffID] = true
		cmd, existed := d.Commands[co.SheriffID]
		var oldStatus *command.Status
		if existed {
			oldStatus = statusPtr(cmd.Status())
		} else {
			cmd = &command.Command{
				SheriffID:    co.SheriffID,
				Name:         co.Name,
				Nickname:     co.Nickname,
				Group:        co.Group,
				DesiredRunID: int64(co.DesiredRunID),
				AutoRespawn:  co.AutoRespawn,
			}
			d.AddCommand(cmd)
			oldStatus = nil
		}

		cmd.ApplyIntent(command.Intent{
			SheriffID:    co.SheriffID,
			Name:         co.Name,
			Nickname:     co.Nickname,
			Group:        co.Group,
			DesiredRunID: int64(co.DesiredRunID),
			ForceQuit:    co.ForceQuit,
		})

		newStatus := cmd.Status()
		if oldStatus == nil || *oldStatus != newStatus {
			changes = append(changes, StatusChange{Command: cmd, OldStatus: oldStatus, NewStatus: statusPtr(newStatus)})
		}
	}

	for id, cmd := range d.Commands {
		if present[id] {
			continue
		}
		old := cmd.Status()
		cmd.ScheduledForRemoval = true
		newStatus := cmd.Status()
		if old != newStatus {
			changes = append(changes, StatusChange{Command: cmd, OldStatus: &old, NewStatus: statusPtr(newStatus)})
		}
	}

	return changes
}

// ScheduleForRemoval flags cmd so it stops being advertised in outbound
// orders. If this deputy has never reported, the command is removed
// immediately instead — there is no pending report to reconcile against.
func (d *Deputy) ScheduleForRemoval(cmd *command.Command) ([]StatusChange, error) {
	if !d.OwnsCommand(cmd) {
		return nil, fmt.Errorf("deputy %q: command %d is not owned by this deputy", d.Name, cmd.SheriffID)
	}
	old := cmd.Status()
	cmd.ScheduledForRemoval = true

	if d.LastUpdate.IsZero() {
		delete(d.Commands, cmd.SheriffID)
		return []StatusChange{{Command: cmd, OldStatus: &old, NewStatus: nil}}, nil
	}
	newStatus := cmd.Status()
	if old == newStatus {
		return nil, nil
	}
	return []StatusChange{{Command: cmd, OldStatus: &old, NewStatus: statusPtr(newStatus)}}, nil
}

// MakeOrders builds the outbound PMD_ORDERS payload: every command
// except those ScheduledForRemoval, plus the deputy's variable map.
func (d *Deputy) MakeOrders(sheriffName string) wire.Orders {
	o := wire.Orders{
		UTime:       uint64(time.Now().UnixMicro()),
		Host:        d.Name,
		SheriffName: sheriffName,
	}
	for _, cmd := range d.Commands {
		if cmd.ScheduledForRemoval {
			continue
		}
		o.Cmds = append(o.Cmds, wire.SheriffCmd{
			Name:         cmd.Name,
			Nickname:     cmd.Nickname,
			SheriffID:    cmd.SheriffID,
			DesiredRunID: int32(cmd.DesiredRunID),
			ForceQuit:    cmd.ForceQuit,
			Group:        cmd.Group,
			AutoRespawn:  cmd.AutoRespawn,
		})
	}
	for name, val := range d.Variables {
		o.VarNames = append(o.VarNames, name)
		o.VarVals = append(o.VarVals, val)
	}
	return o
}

// IsEmpty reports whether the deputy has zero non-removed commands,
// i.e. is a candidate for garbage collection.
func (d *Deputy) IsEmpty() bool {
	for _, cmd := range d.Commands {
		if !cmd.ScheduledForRemoval {
			return false
		}
	}
	return true
}
