package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Explain returns the effective value at a dotted YAML path (for example
// "scale", "top.display_id", "sync.debounce_ms") and where it came from.
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault}, nil
}

// lookupValue walks the config through its YAML form so every key the file
// accepts can be explained without a hand-written switch.
func lookupValue(cfg *Config, path string) (any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}

	var cur any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		next, ok := m[part]
		if !ok {
			if optional(path) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		cur = next
	}
	return cur, nil
}

// optional reports whether path names a key omitted from output when unset.
func optional(path string) bool {
	switch path {
	case "serial", "layout", "log_dir", "presets_file", "metrics_listen",
		"top.extra_args", "bottom.extra_args":
		return true
	}
	return false
}
