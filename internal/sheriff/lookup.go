package sheriff

import (
	"fmt"

	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/deputy"
)

// FindDeputy looks up a deputy by name.
func (s *Sheriff) FindDeputy(name string) (*deputy.Deputy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deputies[name]
	if !ok {
		return nil, fmt.Errorf("%w: deputy %q", ErrNotFound, name)
	}
	return d, nil
}

// GetDeputies returns every known deputy, in no particular order.
func (s *Sheriff) GetDeputies() []*deputy.Deputy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*deputy.Deputy, 0, len(s.deputies))
	for _, d := range s.deputies {
		out = append(out, d)
	}
	return out
}

// CommandByID looks up a command across all deputies by sheriff_id.
func (s *Sheriff) CommandByID(id int32) (*command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deputies {
		if cmd, ok := d.Commands[id]; ok {
			return cmd, nil
		}
	}
	return nil, fmt.Errorf("%w: sheriff_id %d", ErrNotFound, id)
}

// CommandDeputy returns the deputy owning cmd.
func (s *Sheriff) CommandDeputy(cmd *command.Command) (*deputy.Deputy, error) {
	return s.findCommandDeputy(cmd)
}

// AllCommands returns every command across every deputy, in no
// particular order — used both by the console and by a script's
// "everything" ident.
func (s *Sheriff) AllCommands() []*command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*command.Command
	for _, d := range s.deputies {
		for _, cmd := range d.Commands {
			out = append(out, cmd)
		}
	}
	return out
}

// CommandsByNickname returns every command across every deputy with the
// given nickname — a script's "cmd" ident may match more than one.
func (s *Sheriff) CommandsByNickname(nickname string) []*command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*command.Command
	for _, d := range s.deputies {
		for _, cmd := range d.Commands {
			if cmd.Nickname == nickname {
				out = append(out, cmd)
			}
		}
	}
	return out
}

// CommandsByGroup returns every command across every deputy in the
// given group (exact match) — a script's "group" ident.
func (s *Sheriff) CommandsByGroup(group string) []*command.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*command.Command
	for _, d := range s.deputies {
		for _, cmd := range d.Commands {
			if cmd.Group == group {
				out = append(out, cmd)
			}
		}
	}
	return out
}
