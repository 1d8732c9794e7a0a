// Package console implements the interactive operator REPL:
// readline-based line editing with history, Ctrl+C/Ctrl+D handling, and
// ANSI-colored output, dispatching on the first word of each line over
// a *sheriff.Sheriff.
package console

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-runewidth"

	"github.com/procman-go/sheriff/internal/command"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/sheriff"
)

// Console is the operator-facing readline REPL over one Sheriff.
type Console struct {
	sh       *sheriff.Sheriff
	rl       *readline.Instance
	cacheDir string
}

// New builds a Console with its history file under cacheDir.
func New(sh *sheriff.Sheriff, cacheDir string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "\033[36msheriff>\033[0m ",
		HistoryFile:       filepath.Join(cacheDir, "history"),
		HistorySearchFold: true,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("console: readline init: %w", err)
	}
	return &Console{sh: sh, rl: rl, cacheDir: cacheDir}, nil
}

// Close releases the readline instance.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Run drives the REPL until "exit"/"quit"/Ctrl+D.
func (c *Console) Run() {
	fmt.Printf("\033[1m\033[36msheriffd\033[0m %s — observer=%v  (debug: %s/debug.log)\n",
		c.sh.Name(), c.sh.IsObserver(), c.cacheDir)

	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			return
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}
		c.dispatch(input)
	}
}

func (c *Console) dispatch(input string) {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "help":
		c.printHelp()
	case "deputies":
		c.printDeputies()
	case "commands":
		c.printCommands()
	case "start":
		c.withCommand(args, c.sh.StartCommand)
	case "stop":
		c.withCommand(args, c.sh.StopCommand)
	case "restart":
		c.withCommand(args, c.sh.RestartCommand)
	case "scripts":
		c.printScripts()
	case "run":
		c.runScript(args)
	case "abort":
		if err := c.sh.AbortScript(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "load":
		c.loadConfig(args)
	case "save":
		c.saveConfig(args)
	default:
		fmt.Printf("unknown command %q — type 'help'\n", cmd)
	}
}

func (c *Console) printHelp() {
	fmt.Println(`commands:
  deputies                 list known deputies
  commands                 list all commands with derived status
  start <sheriff_id>       start a command
  stop <sheriff_id>        stop a command
  restart <sheriff_id>     restart a command
  scripts                  list installed scripts
  run <script>             execute a script
  abort                    abort the active script
  load <file>              replace config from file
  save <file>              write current config to file
  exit | quit`)
}

func (c *Console) withCommand(args []string, action func(*command.Command) error) {
	if len(args) != 1 {
		fmt.Println("usage: <start|stop|restart> <sheriff_id>")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Printf("invalid sheriff_id %q\n", args[0])
		return
	}
	cmd, err := c.sh.CommandByID(int32(id))
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if err := action(cmd); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (c *Console) runScript(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: run <script_name>")
		return
	}
	if errs := c.sh.ExecuteScript(args[0]); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  %s\n", e)
		}
	}
}

func (c *Console) loadConfig(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: load <file>")
		return
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	cfg, err := config.Parse(string(data))
	if err != nil {
		fmt.Printf("parse error: %v\n", err)
		return
	}
	if err := c.sh.LoadConfig(cfg); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (c *Console) saveConfig(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: save <file>")
		return
	}
	cfg := c.sh.SaveConfig()
	if err := os.WriteFile(args[0], []byte(config.Serialize(cfg)), 0644); err != nil {
		fmt.Printf("error: %v\n", err)
	}
}

func (c *Console) printDeputies() {
	rows := [][]string{{"NAME", "COMMANDS", "CPU", "MEM FREE"}}
	for _, d := range c.sh.GetDeputies() {
		rows = append(rows, []string{
			d.Name,
			strconv.Itoa(len(d.Commands)),
			fmt.Sprintf("%.2f", d.CPULoad),
			strconv.FormatUint(d.PhysMemFree, 10),
		})
	}
	printTable(rows)
}

func (c *Console) printCommands() {
	rows := [][]string{{"ID", "NICKNAME", "GROUP", "STATUS", "PID"}}
	cmds := c.sh.AllCommands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].SheriffID < cmds[j].SheriffID })
	for _, cmd := range cmds {
		rows = append(rows, []string{
			strconv.Itoa(int(cmd.SheriffID)),
			cmd.Nickname,
			cmd.Group,
			cmd.Status().String(),
			strconv.Itoa(int(cmd.PID)),
		})
	}
	printTable(rows)
}

func (c *Console) printScripts() {
	active := c.sh.GetActiveScript()
	for _, sc := range c.sh.GetScripts() {
		mark := " "
		if sc.Name == active {
			mark = "*"
		}
		fmt.Printf("%s %s (%d actions)\n", mark, sc.Name, len(sc.Actions))
	}
}

// printTable renders rows with columns aligned by display width, using
// runewidth.StringWidth so multi-byte nicknames and group names still
// line up.
func printTable(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for _, row := range rows {
		var sb strings.Builder
		for i, cell := range row {
			sb.WriteString(cell)
			sb.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)+2))
		}
		fmt.Println(strings.TrimRight(sb.String(), " "))
	}
}
