package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thordock/thordock/internal/config"
)

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  thordock config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  thordock config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  thordock config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := newFlagSet("config validate", "config validate [--path PATH]")
		path := fs.String("path", "", "Config file path (default: ~/.config/thordock/config.yaml)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		res, err := loadResult(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if res.File == "" {
			fmt.Println("config: ok (no file, using defaults)")
			return 0
		}
		fmt.Printf("config: ok (%s)\n", res.File)
		return 0

	case "print":
		fs := newFlagSet("config print", "config print [--path PATH] [--defaults]")
		path := fs.String("path", "", "Config file path (default: ~/.config/thordock/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadResult(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := newFlagSet("config explain", "config explain [--path PATH] <yaml.path>")
		path := fs.String("path", "", "Config file path (default: ~/.config/thordock/config.yaml)")
		if code, ok := parseFlags(fs, args[1:]); !ok {
			return code
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadResult(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func loadResult(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceEnv:
		return "env:" + src.Name
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return string(src.Kind)
	}
}
