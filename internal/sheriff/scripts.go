package sheriff

import (
	"fmt"

	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/event"
	"github.com/procman-go/sheriff/internal/script"
)

// GetScript looks up a script by name, satisfying script.ScriptProvider
// via scriptProviderAdapter.
func (s *Sheriff) GetScript(name string) (*config.Script, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scripts[name]
	return sc, ok
}

// GetScripts returns every installed script, in no particular order.
func (s *Sheriff) GetScripts() []*config.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*config.Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		out = append(out, sc)
	}
	return out
}

// GetActiveScript returns the name of the currently executing script,
// or "" if none is active.
func (s *Sheriff) GetActiveScript() string {
	return s.exec.ActiveScript()
}

// AddScript installs sc. A duplicate name is ErrInvalidArgument.
func (s *Sheriff) AddScript(sc *config.Script) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, exists := s.scripts[sc.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: script %q already exists", ErrInvalidArgument, sc.Name)
	}
	s.scripts[sc.Name] = sc
	s.mu.Unlock()

	s.events.Emit(event.Event{Kind: event.ScriptAdded, Payload: sc.Name})
	return nil
}

// RemoveScript deletes the named script. Removing the currently active
// script is ErrScriptInUse; removing an unknown name is ErrNotFound.
func (s *Sheriff) RemoveScript(name string) error {
	if err := s.checkNotObserver(); err != nil {
		return err
	}
	if s.exec.ActiveScript() == name {
		return fmt.Errorf("%w: script %q is running", ErrScriptInUse, name)
	}
	s.mu.Lock()
	if _, exists := s.scripts[name]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: script %q", ErrNotFound, name)
	}
	delete(s.scripts, name)
	s.mu.Unlock()

	s.events.Emit(event.Event{Kind: event.ScriptRemoved, Payload: name})
	return nil
}

// ExecuteScript aborts any active script, then validates and starts
// the named one; see script.CheckScriptForErrors for the validation
// pass. Validation problems are returned as data, one message per
// problem, and nothing new is started — but the abort has already
// happened by then.
func (s *Sheriff) ExecuteScript(name string) []string {
	sc, ok := s.GetScript(name)
	if !ok {
		return []string{fmt.Sprintf("no such script %q", name)}
	}
	if s.exec.ActiveScript() != "" {
		_ = s.exec.AbortScript()
	}
	if errs := script.CheckScriptForErrors(scriptProviderAdapter{s}, lookupAdapter{s}, sc); len(errs) > 0 {
		return errs
	}
	if err := s.exec.ExecuteScript(name); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// AbortScript cancels the active script, if any.
func (s *Sheriff) AbortScript() error {
	return s.exec.AbortScript()
}
