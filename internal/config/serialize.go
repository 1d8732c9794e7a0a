package config

import (
	"fmt"
	"sort"
	"strings"
)

// escapeString applies the string-literal escaping rule that the lexer's
// unescape reverses: backslash and double-quote are backslash-escaped,
// and newline, carriage return and tab are written as \n, \r and \t (the
// lexer rejects a raw newline inside a string literal). Everything else
// passes through unchanged.
func escapeString(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\', '"':
			sb.WriteByte('\\')
		case '\n':
			sb.WriteString(`\n`)
			continue
		case '\r':
			sb.WriteString(`\r`)
			continue
		case '\t':
			sb.WriteString(`\t`)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func quote(s string) string {
	return "\"" + escapeString(s) + "\""
}

// serializeCmd renders one cmd block at the given indent depth (number
// of 4-space levels): attributes sorted alphabetically, excluding group
// and nickname (nickname is the block head; group is reconstructed from
// the enclosing Group).
func serializeCmd(c *Cmd, indent int) string {
	pad := strings.Repeat("    ", indent)
	var lines []string
	if c.Nickname != "" {
		lines = append(lines, pad+"cmd "+quote(c.Nickname)+" {")
	} else {
		lines = append(lines, pad+"cmd {")
	}

	type attr struct {
		key, val string
	}
	var attrs []attr
	if c.Exec != "" {
		attrs = append(attrs, attr{"exec", c.Exec})
	}
	if c.Host != "" {
		attrs = append(attrs, attr{"host", c.Host})
	}
	if c.AutoRespawn {
		attrs = append(attrs, attr{"auto_respawn", "true"})
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].key < attrs[j].key })
	for _, a := range attrs {
		lines = append(lines, pad+"    "+a.key+" = "+quote(a.val)+";")
	}
	lines = append(lines, pad+"}")
	return strings.Join(lines, "\n")
}

func serializeGroup(g *Group) string {
	if g.Name == "" {
		var parts []string
		for _, c := range g.Commands {
			parts = append(parts, serializeCmd(c, 0))
		}
		return strings.Join(parts, "\n")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "group %s {\n", quote(g.Name))
	var parts []string
	for _, c := range g.Commands {
		parts = append(parts, serializeCmd(c, 1))
	}
	sb.WriteString(strings.Join(parts, "\n"))
	sb.WriteString("\n}\n")
	return sb.String()
}

func serializeAction(a Action) string {
	switch a.Type {
	case ActionStart, ActionStop, ActionRestart:
		identStr := string(a.IdentType)
		if a.IdentType != IdentEverything {
			identStr = fmt.Sprintf("%s %s", a.IdentType, quote(a.Ident))
		}
		if a.HasWait() {
			return fmt.Sprintf("%s %s wait %s;", a.Type, identStr, quote(string(a.WaitStatus)))
		}
		return fmt.Sprintf("%s %s;", a.Type, identStr)
	case ActionWaitMs:
		return fmt.Sprintf("wait ms %d;", a.DelayMs)
	case ActionWaitStatus:
		return fmt.Sprintf("wait %s %s status %s;", a.IdentType, quote(a.Ident), quote(string(a.WaitStatus)))
	case ActionRunScript:
		return fmt.Sprintf("run_script %s;", quote(a.ScriptName))
	default:
		return ""
	}
}

func serializeScript(s *Script) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "script %s {", quote(s.Name))
	for _, a := range s.Actions {
		sb.WriteString("\n    " + serializeAction(a))
	}
	sb.WriteString("\n}\n")
	return sb.String()
}

// Serialize produces the canonical text form of cfg: groups sorted
// case-insensitively by name (the unnamed group prints as bare cmd
// blocks at top level), then scripts sorted case-insensitively by name.
// parse(Serialize(cfg)) is structurally equal to cfg for any validly
// constructed cfg.
func Serialize(cfg *Config) string {
	groups := make([]*Group, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})

	scripts := make([]*Script, 0, len(cfg.Scripts))
	for _, s := range cfg.Scripts {
		scripts = append(scripts, s)
	}
	sort.Slice(scripts, func(i, j int) bool {
		return strings.ToLower(scripts[i].Name) < strings.ToLower(scripts[j].Name)
	})

	var sb strings.Builder
	var groupParts []string
	for _, g := range groups {
		groupParts = append(groupParts, serializeGroup(g))
	}
	sb.WriteString(strings.Join(groupParts, "\n"))
	sb.WriteString("\n")

	var scriptParts []string
	for _, s := range scripts {
		scriptParts = append(scriptParts, serializeScript(s))
	}
	sb.WriteString(strings.Join(scriptParts, "\n"))
	return sb.String()
}
