package config

// IdentType selects what an action's ident field names.
type IdentType string

const (
	IdentCmd        IdentType = "cmd"
	IdentGroup      IdentType = "group"
	IdentEverything IdentType = "everything"
)

// WaitStatus is the status an action waits for.
type WaitStatus string

const (
	WaitRunning WaitStatus = "running"
	WaitStopped WaitStatus = "stopped"
)

// ActionType discriminates the Action tagged union.
type ActionType string

const (
	ActionStart      ActionType = "start"
	ActionStop       ActionType = "stop"
	ActionRestart    ActionType = "restart"
	ActionWaitMs     ActionType = "wait_ms"
	ActionWaitStatus ActionType = "wait_status"
	ActionRunScript  ActionType = "run_script"
)

// Action is one step in a Script, a tagged variant discriminated by
// Type. Only the fields relevant to Type are populated.
type Action struct {
	Type ActionType

	// start | stop | restart | wait_status
	IdentType  IdentType
	Ident      string     // empty when IdentType == IdentEverything
	WaitStatus WaitStatus // WaitStatus-zero value means "no wait" for start/stop/restart

	// wait_ms
	DelayMs int

	// run_script
	ScriptName string
}

// HasWait reports whether a start/stop/restart action carries a
// trailing "wait <status>" clause.
func (a Action) HasWait() bool {
	return a.WaitStatus != ""
}

// Cmd is one `cmd { ... }` block's parsed attributes.
type Cmd struct {
	Exec        string
	Host        string
	Nickname    string
	Group       string
	AutoRespawn bool
}

// Group is a named collection of commands; Name == "" is the root group.
type Group struct {
	Name     string
	Commands []*Cmd
}

// Script is a named ordered sequence of actions.
type Script struct {
	Name    string
	Actions []Action
}

// Config is the parsed tree: groups (always including the unnamed root
// group) and scripts, keyed by name.
type Config struct {
	Groups  map[string]*Group
	Scripts map[string]*Script
}

// NewConfig creates an empty Config with the root group pre-populated.
func NewConfig() *Config {
	c := &Config{
		Groups:  make(map[string]*Group),
		Scripts: make(map[string]*Script),
	}
	c.Groups[""] = &Group{Name: ""}
	return c
}

// AddCommand appends cmd to the root (unnamed) group.
func (c *Config) AddCommand(cmd *Cmd) {
	cmd.Group = ""
	c.Groups[""].Commands = append(c.Groups[""].Commands, cmd)
}

// HasGroup reports whether a group with this name has already been
// declared (used by the parser to reject a duplicate `group` block).
func (c *Config) HasGroup(name string) bool {
	_, ok := c.Groups[name]
	return ok
}

// AddGroup registers group under its own name. Callers must check
// HasGroup first; a duplicate name is a parse error, not silently
// merged.
func (c *Config) AddGroup(group *Group) {
	c.Groups[group.Name] = group
}

// AddScript registers script under its own name.
func (c *Config) AddScript(script *Script) {
	c.Scripts[script.Name] = script
}
