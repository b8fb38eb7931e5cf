package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
	SourceEnv     SourceKind = "env"
)

type Source struct {
	Kind   SourceKind
	Name   string // env variable name for env sources
	File   string
	Line   int
	Column int
}

func (s Source) String() string {
	switch s.Kind {
	case SourceFile:
		return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
	case SourceEnv:
		return "env " + s.Name
	default:
		return "default"
	}
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // YAML path -> last writer
	File    string            // empty when no config file exists
}

func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "thordock", "config.yaml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "thordock", "config.yaml"), nil
}

// Load reads the configuration from the standard location with environment
// overrides applied.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath starts from DefaultConfig, overlays the YAML file at path (a
// missing file is not an error), then overlays THORDOCK_* environment
// variables and validates the result.
func LoadFromPath(path string) (*LoadResult, error) {
	cfg := DefaultConfig()
	sources := map[string]Source{}
	res := &LoadResult{Config: cfg, Sources: sources}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := decodeStrictYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err == nil {
			for key, src := range collectSources(&doc, path) {
				sources[key] = src
			}
		}
		res.File = path
	}

	if err := applyEnv(cfg, sources); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, attachSourceContext(err, sources)
	}
	return res, nil
}

// envOverrides mirrors the subset of keys that may be set from the
// environment. Nil fields were not set.
type envOverrides struct {
	Scale            *float64 `envconfig:"THORDOCK_SCALE"`
	Serial           *string  `envconfig:"THORDOCK_SERIAL"`
	LogLevel         *string  `envconfig:"THORDOCK_LOG_LEVEL"`
	ScrcpyPath       *string  `envconfig:"THORDOCK_SCRCPY_PATH"`
	ADBPath          *string  `envconfig:"THORDOCK_ADB_PATH"`
	ReparentStrategy *string  `envconfig:"THORDOCK_REPARENT_STRATEGY"`
}

func applyEnv(cfg *Config, sources map[string]Source) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	set := func(path, name string) {
		sources[path] = Source{Kind: SourceEnv, Name: name}
	}
	if env.Scale != nil {
		cfg.Scale = *env.Scale
		set("scale", "THORDOCK_SCALE")
	}
	if env.Serial != nil {
		cfg.Serial = *env.Serial
		set("serial", "THORDOCK_SERIAL")
	}
	if env.LogLevel != nil {
		cfg.LogLevel = *env.LogLevel
		set("log_level", "THORDOCK_LOG_LEVEL")
	}
	if env.ScrcpyPath != nil {
		cfg.ScrcpyPath = *env.ScrcpyPath
		set("scrcpy_path", "THORDOCK_SCRCPY_PATH")
	}
	if env.ADBPath != nil {
		cfg.ADBPath = *env.ADBPath
		set("adb_path", "THORDOCK_ADB_PATH")
	}
	if env.ReparentStrategy != nil {
		cfg.ReparentStrategy = *env.ReparentStrategy
		set("reparent_strategy", "THORDOCK_REPARENT_STRATEGY")
	}
	return nil
}

func decodeStrictYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return nil
}

func collectSources(doc *yaml.Node, file string) map[string]Source {
	out := make(map[string]Source)
	if doc == nil {
		return out
	}
	node := doc
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	collectSourcesRec(node, file, "", out)
	return out
}

func collectSourcesRec(node *yaml.Node, file string, prefix string, out map[string]Source) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			val := node.Content[i+1]
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			out[path] = Source{Kind: SourceFile, File: file, Line: val.Line, Column: val.Column}
			collectSourcesRec(val, file, path, out)
		}
	case yaml.SequenceNode:
		if prefix != "" {
			out[prefix] = Source{Kind: SourceFile, File: file, Line: node.Line, Column: node.Column}
		}
	}
}

func attachSourceContext(err error, sources map[string]Source) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path == "" {
		return err
	}
	if src, ok := sources[verr.Path]; ok {
		verr.Source = src
	}
	return verr
}
