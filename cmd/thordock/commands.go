package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/thordock/thordock/internal/engine"
	"github.com/thordock/thordock/internal/events"
	"github.com/thordock/thordock/internal/ipc"
	"github.com/thordock/thordock/internal/layout"
	"github.com/thordock/thordock/internal/session"
)

func runStatus(args []string) int {
	fs := newFlagSet("status", "status [--json]")
	asJSON := fs.Bool("json", false, "Print the raw status as JSON")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	st, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(st); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	printStatus(os.Stdout, st)
	return 0
}

func printStatus(w io.Writer, st *engine.Status) {
	fmt.Fprintf(w, "dock:      %s\n", st.Dock)
	fmt.Fprintf(w, "sync:      %s\n", st.Sync)
	fmt.Fprintf(w, "layout:    %s\n", st.Layout)
	if st.Container != 0 {
		fmt.Fprintf(w, "container: 0x%x\n", st.Container)
	}
	if len(st.Sessions) == 0 {
		fmt.Fprintln(w, "sessions:  none")
		return
	}
	fmt.Fprintln(w, "sessions:")
	for _, s := range st.Sessions {
		line := fmt.Sprintf("  %-6s display=%s status=%s", s.Role, s.DisplayID, s.Status)
		if s.PID != 0 {
			line += fmt.Sprintf(" pid=%d", s.PID)
		}
		if s.WindowID != 0 {
			line += fmt.Sprintf(" window=0x%x", s.WindowID)
		}
		if s.Cause != "" {
			line += " cause=" + s.Cause
		}
		fmt.Fprintln(w, line)
	}
}

// parseRoles validates role arguments. No arguments means both.
func parseRoles(args []string) ([]string, error) {
	roles := make([]string, 0, len(args))
	for _, arg := range args {
		role, err := session.ParseRole(strings.ToLower(arg))
		if err != nil {
			return nil, err
		}
		roles = append(roles, string(role))
	}
	return roles, nil
}

func runRoleCommand(name string, args []string, fn func(roles ...string) error) int {
	fs := newFlagSet(name, name+" [top] [bottom]")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	roles, err := parseRoles(fs.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := fn(roles...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: accepted\n", name)
	return 0
}

func runSimpleCommand(name string, args []string, fn func() error) int {
	fs := newFlagSet(name, name)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "%s takes no arguments\n", name)
		fs.Usage()
		return 2
	}
	if err := fn(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: accepted\n", name)
	return 0
}

func runLayout(args []string) int {
	if len(args) == 0 || args[0] != "set" {
		fmt.Fprintln(os.Stderr, "Usage: thordock layout set [--tx N] [--ty N] [--bx N] [--by N] [--scale F]")
		if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
			return 0
		}
		return 2
	}

	fs := newFlagSet("layout set", "layout set [--tx N] [--ty N] [--bx N] [--by N] [--scale F]")
	tx := fs.Int("tx", 0, "Top window x offset")
	ty := fs.Int("ty", 0, "Top window y offset")
	bx := fs.Int("bx", 0, "Bottom window x offset")
	by := fs.Int("by", 0, "Bottom window y offset")
	scale := fs.Float64("scale", 0, "Window scale (omit to keep current)")
	if code, ok := parseFlags(fs, args[1:]); !ok {
		return code
	}
	if fs.NFlag() == 0 {
		fmt.Fprintln(os.Stderr, "layout set needs at least one of --tx --ty --bx --by --scale")
		return 2
	}

	client := ipc.NewClient()
	st, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	p := mergeLayout(st.Layout, fs.Changed, *tx, *ty, *bx, *by, *scale)
	if err := client.SetLayout(p); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("layout: accepted (top %d,%d bottom %d,%d)\n", p.TX, p.TY, p.BX, p.BY)
	return 0
}

// mergeLayout builds a payload from current, replacing only the flags the
// user set. A zero scale keeps the daemon's current scale.
func mergeLayout(current layout.Spec, changed func(string) bool, tx, ty, bx, by int, scale float64) ipc.LayoutPayload {
	p := ipc.LayoutPayload{TX: current.TX, TY: current.TY, BX: current.BX, BY: current.BY}
	if changed("tx") {
		p.TX = tx
	}
	if changed("ty") {
		p.TY = ty
	}
	if changed("bx") {
		p.BX = bx
	}
	if changed("by") {
		p.BY = by
	}
	if changed("scale") {
		p.Scale = scale
	}
	return p
}

func runScale(args []string) int {
	fs := newFlagSet("scale", "scale <value>")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	scale, err := strconv.ParseFloat(fs.Arg(0), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid scale %q\n", fs.Arg(0))
		return 2
	}
	if scale < layout.MinScale || scale > layout.MaxScale {
		fmt.Fprintf(os.Stderr, "scale must be between %.1f and %.1f\n", layout.MinScale, layout.MaxScale)
		return 2
	}
	if err := ipc.NewClient().SetScale(scale); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("scale: accepted")
	return 0
}

func runEvents(args []string) int {
	fs := newFlagSet("events", "events [--json]")
	asJSON := fs.Bool("json", false, "Print events as JSON lines (default when stdout is not a terminal)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	raw := *asJSON || !term.IsTerminal(int(os.Stdout.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	err := ipc.NewClient().Subscribe(ctx, func(ev events.Event) error {
		if raw {
			return enc.Encode(ev)
		}
		_, err := fmt.Fprintln(os.Stdout, formatEvent(ev))
		return err
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// formatEvent renders one event as a human-readable line.
func formatEvent(ev events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", ev.Time.Format("15:04:05.000"), ev.Kind)
	if ev.Role != "" {
		fmt.Fprintf(&b, " [%s]", ev.Role)
	}
	if ev.Status != "" {
		b.WriteString(" status=" + ev.Status)
	}
	if ev.State != "" {
		b.WriteString(" state=" + ev.State)
	}
	if ev.Fault != "" {
		b.WriteString(" fault=" + ev.Fault)
	}
	if l := ev.Layout; l != nil {
		fmt.Fprintf(&b, " top=%d,%d bottom=%d,%d scale=%.2f", l.TX, l.TY, l.BX, l.BY, l.Scale)
	}
	if s := ev.Screenshot; s != nil {
		fmt.Fprintf(&b, " %dx%d %s", s.Width, s.Height, humanize.Bytes(uint64(s.Bytes)))
		if s.Clipboard != "" {
			b.WriteString(" clipboard=" + s.Clipboard)
		}
		if s.Path != "" {
			b.WriteString(" path=" + s.Path)
		}
	}
	if ev.Message != "" {
		b.WriteString(": " + ev.Message)
	}
	return b.String()
}
