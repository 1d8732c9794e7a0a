package sheriff

import (
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/event"
)

// LoadConfig replaces the sheriff's entire command/script population
// with cfg's: every existing command is scheduled for removal, every
// script is deleted, then cfg's commands and scripts are installed
// fresh. Forbidden in observer mode.
func (s *Sheriff) LoadConfig(cfg *config.Config) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}

	for _, cmd := range s.AllCommands() {
		_ = s.ScheduleCommandForRemoval(cmd)
	}

	s.mu.Lock()
	for name := range s.scripts {
		delete(s.scripts, name)
		s.events.Emit(event.Event{Kind: event.ScriptRemoved, Payload: name})
	}
	s.mu.Unlock()

	for _, group := range cfg.Groups {
		for _, c := range group.Commands {
			if _, err := s.AddCommand(c.Host, c.Exec, c.Nickname, c.Group, c.AutoRespawn); err != nil {
				return err
			}
		}
	}
	for _, sc := range cfg.Scripts {
		if err := s.AddScript(sc); err != nil {
			return err
		}
	}
	return nil
}

// SaveConfig produces a Config tree mirroring the sheriff's current
// commands (grouped by their Group field, keyed by host as each
// command's "host" attribute) and scripts, ready for config.Serialize.
func (s *Sheriff) SaveConfig() *config.Config {
	cfg := config.NewConfig()

	for _, d := range s.GetDeputies() {
		for _, cmd := range d.Commands {
			if cmd.ScheduledForRemoval {
				continue
			}
			c := &config.Cmd{
				Exec:        cmd.Name,
				Host:        d.Name,
				Nickname:    cmd.Nickname,
				Group:       cmd.Group,
				AutoRespawn: cmd.AutoRespawn,
			}
			if cmd.Group == "" {
				cfg.AddCommand(c)
				continue
			}
			if !cfg.HasGroup(cmd.Group) {
				cfg.AddGroup(&config.Group{Name: cmd.Group})
			}
			g := cfg.Groups[cmd.Group]
			g.Commands = append(g.Commands, c)
		}
	}

	for _, sc := range s.GetScripts() {
		cfg.AddScript(sc)
	}
	return cfg
}
