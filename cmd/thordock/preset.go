package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/preset"
)

func printPresetUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  thordock preset list [--json]")
	fmt.Fprintln(w, "  thordock preset load <name>")
	fmt.Fprintln(w, "  thordock preset save <name> [--tx N --ty N --bx N --by N]")
	fmt.Fprintln(w, "  thordock preset delete <name>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "save without offsets stores the daemon's current layout.")
}

func runPreset(args []string) int {
	if len(args) == 0 {
		printPresetUsage(os.Stderr)
		return 2
	}
	switch args[0] {
	case "list":
		return runPresetList(args[1:])
	case "load":
		return runPresetLoad(args[1:])
	case "save":
		return runPresetSave(args[1:])
	case "delete":
		return runPresetDelete(args[1:])
	case "help", "-h", "--help":
		printPresetUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown preset command: %s\n\n", args[0])
		printPresetUsage(os.Stderr)
		return 2
	}
}

func runPresetList(args []string) int {
	fs := newFlagSet("preset list", "preset list [--path PATH] [--json]")
	path := fs.String("path", "", "Config file path")
	asJSON := fs.Bool("json", false, "Print presets as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	store, code := openPresetStore(*path)
	if store == nil {
		return code
	}
	all, err := store.LoadAll()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		data, err := json.MarshalIndent(all, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	names, _ := store.List()
	if len(names) == 0 {
		fmt.Printf("no presets in %s\n", store.Path())
		return 0
	}
	for _, name := range names {
		o := all[name]
		fmt.Printf("%-20s top=%d,%d bottom=%d,%d\n", name, o.TX, o.TY, o.BX, o.BY)
	}
	return 0
}

func runPresetLoad(args []string) int {
	fs := newFlagSet("preset load", "preset load <name>")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	if err := ipc.NewClient().LoadPreset(fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("preset load: accepted")
	return 0
}

func runPresetSave(args []string) int {
	fs := newFlagSet("preset save", "preset save <name> [--path PATH] [--tx N --ty N --bx N --by N]")
	path := fs.String("path", "", "Config file path")
	tx := fs.Int("tx", 0, "Top window x offset")
	ty := fs.Int("ty", 0, "Top window y offset")
	bx := fs.Int("bx", 0, "Bottom window x offset")
	by := fs.Int("by", 0, "Bottom window y offset")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	name := fs.Arg(0)
	if err := preset.ValidateName(name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	var o preset.Offsets
	explicit := fs.Changed("tx") || fs.Changed("ty") || fs.Changed("bx") || fs.Changed("by")
	if explicit {
		o = preset.Offsets{TX: *tx, TY: *ty, BX: *bx, BY: *by}
	} else {
		st, err := ipc.NewClient().GetStatus()
		if err != nil {
			fmt.Fprintf(os.Stderr, "no offsets given and daemon unavailable: %v\n", err)
			return 1
		}
		o = preset.Offsets{TX: st.Layout.TX, TY: st.Layout.TY, BX: st.Layout.BX, BY: st.Layout.BY}
	}

	store, code := openPresetStore(*path)
	if store == nil {
		return code
	}
	if err := store.Save(name, o); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("saved %q (top=%d,%d bottom=%d,%d)\n", name, o.TX, o.TY, o.BX, o.BY)
	return 0
}

func runPresetDelete(args []string) int {
	fs := newFlagSet("preset delete", "preset delete <name> [--path PATH]")
	path := fs.String("path", "", "Config file path")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	store, code := openPresetStore(*path)
	if store == nil {
		return code
	}
	deleted, err := store.Delete(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !deleted {
		fmt.Fprintf(os.Stderr, "preset %q not found\n", fs.Arg(0))
		return 1
	}
	fmt.Printf("deleted %q\n", fs.Arg(0))
	return 0
}

func openPresetStore(configPath string) (*preset.FileStore, int) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, 1
	}
	store, err := presetStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, 1
	}
	return store, 0
}
