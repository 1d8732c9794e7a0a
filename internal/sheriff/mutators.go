package sheriff

import (
	"fmt"

	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/deputy"
	"github.com/procman-go/sheriff/internal/event"
)

// AddCommand allocates a fresh sheriff_id and adds a new Command to
// deputyName's table.
func (s *Sheriff) AddCommand(deputyName, name, nickname, group string, autoRespawn bool) (*command.Command, error) {
	if err := s.checkNotObserver(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	id, err := s.allocateSheriffIDLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	cmd := &command.Command{
		SheriffID:   id,
		Name:        name,
		Nickname:    nickname,
		Group:       group,
		AutoRespawn: autoRespawn,
	}
	d := s.getOrMakeDeputyLocked(deputyName)
	d.AddCommand(cmd)
	s.mu.Unlock()

	s.events.Emit(event.Event{Kind: event.CommandAdded, Payload: cmd})
	s.publishOrders()
	return cmd, nil
}

// StartCommand snapshots status, starts cmd, snapshots status again,
// emits the change (if any) and broadcasts orders.
func (s *Sheriff) StartCommand(cmd *command.Command) error {
	return s.mutateAndBroadcast(cmd, (*command.Command).Start)
}

// StopCommand is StartCommand's counterpart for stop().
func (s *Sheriff) StopCommand(cmd *command.Command) error {
	return s.mutateAndBroadcast(cmd, (*command.Command).Stop)
}

// RestartCommand is StartCommand's counterpart for restart().
func (s *Sheriff) RestartCommand(cmd *command.Command) error {
	return s.mutateAndBroadcast(cmd, (*command.Command).Restart)
}

// mutateAndBroadcast holds s.mu across the snapshot-mutate-snapshot
// sequence so the pump goroutine's ApplyInfo and the ticker's
// publishOrders never observe a half-applied mutation; the lock is
// released before Emit so handlers may re-enter mutators.
func (s *Sheriff) mutateAndBroadcast(cmd *command.Command, mutate func(*command.Command)) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	old := cmd.Status()
	mutate(cmd)
	newStatus := cmd.Status()
	s.mu.Unlock()

	if old != newStatus {
		oldCopy, newCopy := old, newStatus
		s.events.Emit(event.Event{
			Kind:    event.CommandStatusChanged,
			Payload: deputy.StatusChange{Command: cmd, OldStatus: &oldCopy, NewStatus: &newCopy},
		})
	}
	s.publishOrders()
	return nil
}

// SetCommandGroup updates cmd's group, emitting CommandGroupChanged
// only (no orders broadcast — the next periodic tick carries it).
func (s *Sheriff) SetCommandGroup(cmd *command.Command, newGroup string) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	if cmd.Group == newGroup {
		s.mu.Unlock()
		return nil
	}
	cmd.Group = newGroup
	s.mu.Unlock()
	s.events.Emit(event.Event{Kind: event.CommandGroupChanged, Payload: cmd})
	return nil
}

// SetCommandName is a silent field write.
func (s *Sheriff) SetCommandName(cmd *command.Command, name string) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	cmd.Name = name
	s.mu.Unlock()
	return nil
}

// SetCommandNickname is a silent field write.
func (s *Sheriff) SetCommandNickname(cmd *command.Command, nickname string) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	cmd.Nickname = nickname
	s.mu.Unlock()
	return nil
}

// SetAutoRespawn is a silent field write.
func (s *Sheriff) SetAutoRespawn(cmd *command.Command, autoRespawn bool) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	cmd.AutoRespawn = autoRespawn
	s.mu.Unlock()
	return nil
}

// ScheduleCommandForRemoval delegates to the owning deputy, fans out
// the resulting change(s), and broadcasts. The deputy delegation runs
// under s.mu — it may delete from the deputy's command map, which the
// pump goroutine and the orders ticker iterate concurrently.
func (s *Sheriff) ScheduleCommandForRemoval(cmd *command.Command) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	d := s.findCommandDeputyLocked(cmd)
	if d == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: command %d has no owning deputy", ErrNotFound, cmd.SheriffID)
	}
	changes, err := d.ScheduleForRemoval(cmd)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.fanOut(changes)
	s.publishOrders()
	return nil
}

// MoveCommandToDeputy schedules cmd for removal on its current deputy
// and re-adds an equivalent command under newDeputyName.
func (s *Sheriff) MoveCommandToDeputy(cmd *command.Command, newDeputyName string) (*command.Command, error) {
	if err := s.checkNotObserver(); err != nil {
		return nil, err
	}
	if err := s.ScheduleCommandForRemoval(cmd); err != nil {
		return nil, err
	}
	return s.AddCommand(newDeputyName, cmd.Name, cmd.Nickname, cmd.Group, cmd.AutoRespawn)
}

// PurgeUselessDeputies drops every deputy whose commands are all empty
// or all scheduled for removal.
func (s *Sheriff) PurgeUselessDeputies() error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	for name, d := range s.deputies {
		if d.IsEmpty() {
			delete(s.deputies, name)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Sheriff) findCommandDeputy(cmd *command.Command) (*deputy.Deputy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findCommandDeputyLocked(cmd)
	if d == nil {
		return nil, fmt.Errorf("%w: command %d has no owning deputy", ErrNotFound, cmd.SheriffID)
	}
	return d, nil
}

// findCommandDeputyLocked must be called with s.mu held.
func (s *Sheriff) findCommandDeputyLocked(cmd *command.Command) *deputy.Deputy {
	for _, d := range s.deputies {
		if d.OwnsCommand(cmd) {
			return d
		}
	}
	return nil
}
