package script

import "github.com/procman-go/sheriff/internal/config"

// CheckScriptForErrors walks script and every script it reaches via
// run_script, looking for a cycle, a dangling command/group reference,
// a negative wait_ms, and an unresolvable run_script target. It
// accumulates every problem found rather than stopping at the first.
//
// Each run_script call back into a script already on the current call
// path adds one "infinite loop" report and is not descended into; the
// walk then goes on with the remaining actions, so a script with
// multiple back-edges reports each one. lookup may be nil to skip the command/group reference
// check (tests that exercise only cycle detection have no commands to
// look up).
func CheckScriptForErrors(scripts ScriptProvider, lookup CommandLookup, s *config.Script) []string {
	var errs []string
	visiting := map[string]bool{s.Name: true}
	walkScriptActions(scripts, lookup, s, visiting, &errs)
	return errs
}

func walkScriptActions(scripts ScriptProvider, lookup CommandLookup, s *config.Script, visiting map[string]bool, errs *[]string) {
	for _, a := range s.Actions {
		switch a.Type {
		case config.ActionStart, config.ActionStop, config.ActionRestart, config.ActionWaitStatus:
			checkIdentReference(lookup, a, errs)

		case config.ActionWaitMs:
			if a.DelayMs < 0 {
				*errs = append(*errs, "Wait times must be nonnegative")
			}

		case config.ActionRunScript:
			if visiting[a.ScriptName] {
				*errs = append(*errs, "Infinite loop: script "+a.ScriptName+" eventually calls itself")
				continue
			}
			sub, ok := scripts.GetScript(a.ScriptName)
			if !ok {
				*errs = append(*errs, "Unknown script \""+a.ScriptName+"\"")
				continue
			}
			visiting[a.ScriptName] = true
			walkScriptActions(scripts, lookup, sub, visiting, errs)
			delete(visiting, a.ScriptName)

		default:
			*errs = append(*errs, "Unrecognized action \""+string(a.Type)+"\"")
		}
	}
}

// checkIdentReference reports a missing command/group reference. An
// "everything" ident needs no lookup — it always matches everything,
// including nothing.
func checkIdentReference(lookup CommandLookup, a config.Action, errs *[]string) {
	if lookup == nil {
		return
	}
	switch a.IdentType {
	case config.IdentCmd:
		if len(lookup.CommandsByNickname(a.Ident)) == 0 {
			*errs = append(*errs, "No such command: "+a.Ident)
		}
	case config.IdentGroup:
		if len(lookup.CommandsByGroup(a.Ident)) == 0 {
			*errs = append(*errs, "No such group: "+a.Ident)
		}
	}
}
