package config

import (
	"reflect"
	"testing"
)

func normalize(cfg *Config) *Config {
	out := NewConfig()
	for name, g := range cfg.Groups {
		ng := &Group{Name: g.Name}
		for _, c := range g.Commands {
			cc := *c
			ng.Commands = append(ng.Commands, &cc)
		}
		out.Groups[name] = ng
	}
	for name, s := range cfg.Scripts {
		ns := &Script{Name: s.Name, Actions: append([]Action(nil), s.Actions...)}
		out.Scripts[name] = ns
	}
	return out
}

func TestSerializeParseRoundTrip(t *testing.T) {
	src := `cmd "lonely" {
    exec = "echo root";
    host = "localhost";
}

group "workers" {
    cmd "w1" {
        auto_respawn = "true";
        exec = "worker --id 1";
        host = "host-a";
    }
    cmd {
        exec = "worker --id 2";
        host = "host-b";
    }
}

script "deploy" {
    start group "workers" wait "running";
    wait ms 250;
    stop cmd "lonely";
    wait cmd "lonely" status "stopped";
    run_script "cleanup";
}

script "cleanup" {
    stop everything;
}
`
	cfg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(src): %v", err)
	}

	out := Serialize(cfg)
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Serialize(cfg)): %v\n--- serialized ---\n%s", err, out)
	}

	if !reflect.DeepEqual(normalize(cfg), normalize(reparsed)) {
		t.Fatalf("round-trip mismatch:\noriginal: %+v\nreparsed: %+v\nserialized:\n%s", cfg, reparsed, out)
	}
}

func TestSerializeEscapesSpecialCharacters(t *testing.T) {
	cfg := NewConfig()
	cfg.AddCommand(&Cmd{Exec: `echo "hi" \ there`, Host: "localhost"})
	out := Serialize(cfg)
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Serialize(cfg)): %v\n%s", err, out)
	}
	if reparsed.Groups[""].Commands[0].Exec != cfg.Groups[""].Commands[0].Exec {
		t.Fatalf("exec round-trip mismatch: got %q want %q",
			reparsed.Groups[""].Commands[0].Exec, cfg.Groups[""].Commands[0].Exec)
	}
}

func TestSerializeSortsGroupsAndScriptsCaseInsensitively(t *testing.T) {
	cfg := NewConfig()
	cfg.AddGroup(&Group{Name: "Bravo"})
	cfg.AddGroup(&Group{Name: "alpha"})
	cfg.AddScript(&Script{Name: "Zeta"})
	cfg.AddScript(&Script{Name: "alpha-script"})

	out := Serialize(cfg)
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Serialize(cfg)): %v\n%s", err, out)
	}
	if _, ok := reparsed.Groups["Bravo"]; !ok {
		t.Fatal("expected group Bravo to survive round-trip")
	}
	if _, ok := reparsed.Scripts["alpha-script"]; !ok {
		t.Fatal("expected script alpha-script to survive round-trip")
	}
}
