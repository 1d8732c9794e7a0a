// Command sheriffd is the process entrypoint: it wires the bus, event
// registry, clock, and reconciliation engine, then runs either a
// one-shot config/script load or the interactive operator console.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/procman-go/sheriff/internal/bus"
	"github.com/procman-go/sheriff/internal/clock"
	"github.com/procman-go/sheriff/internal/config"
	"github.com/procman-go/sheriff/internal/console"
	"github.com/procman-go/sheriff/internal/event"
	"github.com/procman-go/sheriff/internal/sheriff"
)

const usageTrailer = `With no arguments, sheriffd starts the interactive operator console.
With a config_file, it loads that configuration and, if script_name is
also given, runs that script to completion before exiting.`

// envOr reads name from the environment, falling back to def when unset
// or empty.
func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envDurationOr(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: sheriffd [-h] [config_file [script_name]]\n\n%s\n", usageTrailer)
		flag.PrintDefaults()
	}
	flag.Parse()

	_ = godotenv.Load(".env")

	homeDir, _ := os.UserHomeDir()
	cacheDir := envOr("SHERIFFD_CACHE_DIR", filepath.Join(homeDir, ".cache", "sheriffd"))
	_ = os.MkdirAll(cacheDir, 0755)

	if f, err := os.OpenFile(filepath.Join(cacheDir, "debug.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
		log.SetOutput(f)
		defer f.Close()
	}

	b := bus.New()
	events := event.New()
	clk := clock.Real{}

	observer := envOr("SHERIFFD_OBSERVER", "false") == "true"
	tick := envDurationOr("SHERIFFD_TICK_SECONDS", time.Second)

	name := sheriff.InstanceName(clk)
	sh := sheriff.New(name, observer, b, events, clk)
	defer sh.Close()

	if !observer {
		go sh.RunOrdersTicker(tick)
	}

	args := flag.Args()
	if len(args) > 0 {
		runOneShot(sh, args)
		return
	}
	runConsole(sh, cacheDir)
}

func runOneShot(sh *sheriff.Sheriff, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Parse(string(data))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}
	if err := sh.LoadConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(args) < 2 {
		return
	}

	// Subscribe before starting the script so its ScriptFinished can't
	// fire (and be missed) between ExecuteScript returning and the
	// subscription being established.
	done := sh.Events().Subscribe(event.ScriptFinished)
	if errs := sh.ExecuteScript(args[1]); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(1)
	}
	<-done
}

func runConsole(sh *sheriff.Sheriff, cacheDir string) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		sh.Close()
		os.Exit(0)
	}()

	c, err := console.New(sh, cacheDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	c.Run()
}
