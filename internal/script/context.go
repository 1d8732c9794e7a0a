// Package script implements the cooperative script interpreter:
// pre-execution validation, a linked execution-context frame chain for
// inline RunScript calls, and an event-driven dispatch loop with
// wait-for-status and wait-for-time primitives. Command lookup and
// mutation come in through narrow interfaces so internal/sheriff can
// supply them without an import cycle.
package script

import "github.com/procman-go/sheriff/internal/config"

// ScriptProvider resolves a script by name, as needed to follow
// RunScript actions.
type ScriptProvider interface {
	GetScript(name string) (*config.Script, bool)
}

// executionContext is one activation frame, tracking which action is
// current and (if a RunScript action is active) the nested frame for
// the called script. The validator guarantees the RunScript graph is
// acyclic before execution starts.
type executionContext struct {
	script     *config.Script
	current    int // -1 initially; advanced by nextAction
	subContext *executionContext
	scripts    ScriptProvider
}

func newExecutionContext(s *config.Script, scripts ScriptProvider) *executionContext {
	return &executionContext{script: s, current: -1, scripts: scripts}
}

// nextAction returns the next non-RunScript action to execute, or
// (Action{}, false) when the whole chain — including all nested
// sub-script frames — is exhausted. RunScript actions are resolved and
// pushed as a nested frame; they are never themselves returned.
func (c *executionContext) nextAction() (config.Action, bool) {
	if c.subContext != nil {
		if a, ok := c.subContext.nextAction(); ok {
			return a, true
		}
		c.subContext = nil
	}

	c.current++
	if c.current >= len(c.script.Actions) {
		return config.Action{}, false
	}
	action := c.script.Actions[c.current]

	if action.Type == config.ActionRunScript {
		sub, ok := c.scripts.GetScript(action.ScriptName)
		if !ok {
			// The validator guarantees this can't happen for a script
			// that passed CheckScriptForErrors; treat it as "no
			// more actions" defensively rather than panicking mid-run.
			return config.Action{}, false
		}
		c.subContext = newExecutionContext(sub, c.scripts)
		return c.nextAction()
	}
	return action, true
}
