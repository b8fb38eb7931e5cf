package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thordock/thordock/internal/runtimepath"
)

// ValidationError pins a config error to the YAML path that caused it. When
// the path was set in a file, Error reports file:line:col.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Source.Kind == SourceEnv && e.Source.Name != "" {
		return fmt.Sprintf("%s (from %s): %v", e.Path, e.Source.Name, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Screen configures one mirroring session.
type Screen struct {
	DisplayID    string   `yaml:"display_id"`
	TitlePrefix  string   `yaml:"title_prefix"`
	Audio        bool     `yaml:"audio"`
	ExtraArgs    []string `yaml:"extra_args,omitempty"`
	BaseWidth    int      `yaml:"base_width"`
	BaseHeight   int      `yaml:"base_height"`
	BitrateMin   int      `yaml:"bitrate_min"`
	BitrateScale int      `yaml:"bitrate_scale"`
}

// Offsets are the initial window offsets inside the container.
type Offsets struct {
	TX int `yaml:"tx"`
	TY int `yaml:"ty"`
	BX int `yaml:"bx"`
	BY int `yaml:"by"`
}

type SyncConfig struct {
	DebounceMS    int `yaml:"debounce_ms"`
	MinIntervalMS int `yaml:"min_interval_ms"`
}

type LocateConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
	TimeoutMS      int `yaml:"timeout_ms"`
}

// ContainerConfig places the host window. With FollowPointer set, X and Y
// are offsets from the monitor under the pointer at daemon start.
type ContainerConfig struct {
	X             int    `yaml:"x"`
	Y             int    `yaml:"y"`
	Title         string `yaml:"title"`
	FollowPointer bool   `yaml:"follow_pointer"`
}

// HotkeyConfig holds X11 key sequences. Empty disables the binding.
type HotkeyConfig struct {
	DockToggle string `yaml:"dock_toggle"`
	Screenshot string `yaml:"screenshot"`
}

type ScreenshotConfig struct {
	// SaveDir additionally writes every capture as PNG when set.
	SaveDir string `yaml:"save_dir"`
}

type Config struct {
	ScrcpyPath       string           `yaml:"scrcpy_path"`
	ADBPath          string           `yaml:"adb_path"`
	Serial           string           `yaml:"serial,omitempty"`
	Scale            float64          `yaml:"scale"`
	MaxFPS           int              `yaml:"max_fps"`
	RenderDriver     string           `yaml:"render_driver"`
	Top              Screen           `yaml:"top"`
	Bottom           Screen           `yaml:"bottom"`
	Layout           *Offsets         `yaml:"layout,omitempty"`
	Sync             SyncConfig       `yaml:"sync"`
	Locate           LocateConfig     `yaml:"locate"`
	TerminateGraceMS int              `yaml:"terminate_grace_ms"`
	Container        ContainerConfig  `yaml:"container"`
	AutoDock         bool             `yaml:"auto_dock"`
	ReparentStrategy string           `yaml:"reparent_strategy"`
	Hotkeys          HotkeyConfig     `yaml:"hotkeys"`
	Screenshot       ScreenshotConfig `yaml:"screenshot"`
	LogLevel         string           `yaml:"log_level"`
	LogDir           string           `yaml:"log_dir,omitempty"`
	PresetsFile      string           `yaml:"presets_file,omitempty"`
	MetricsListen    string           `yaml:"metrics_listen,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		ScrcpyPath:   "scrcpy",
		ADBPath:      "adb",
		Scale:        0.6,
		MaxFPS:       120,
		RenderDriver: "opengl",
		Top: Screen{
			DisplayID:    "0",
			TitlePrefix:  "Thordock Top Screen",
			Audio:        true,
			BaseWidth:    1920,
			BaseHeight:   1080,
			BitrateMin:   8,
			BitrateScale: 32,
		},
		Bottom: Screen{
			DisplayID:    "4",
			TitlePrefix:  "Thordock Bottom Screen",
			BaseWidth:    1083,
			BaseHeight:   943,
			BitrateMin:   6,
			BitrateScale: 24,
		},
		Sync: SyncConfig{
			DebounceMS:    150,
			MinIntervalMS: 50,
		},
		Locate: LocateConfig{
			PollIntervalMS: 100,
			TimeoutMS:      15000,
		},
		TerminateGraceMS: 2000,
		Container: ContainerConfig{
			X:     100,
			Y:     100,
			Title: "Thordock",
		},
		AutoDock:         true,
		ReparentStrategy: "auto",
		Hotkeys: HotkeyConfig{
			DockToggle: "Mod4-Mod1-d",
			Screenshot: "Mod4-Mod1-s",
		},
		LogLevel: "info",
	}
}

func (c *Config) Debounce() time.Duration { return ms(c.Sync.DebounceMS) }

func (c *Config) MinInterval() time.Duration { return ms(c.Sync.MinIntervalMS) }

func (c *Config) PollInterval() time.Duration { return ms(c.Locate.PollIntervalMS) }

func (c *Config) LocateTimeout() time.Duration { return ms(c.Locate.TimeoutMS) }

func (c *Config) TerminateGrace() time.Duration { return ms(c.TerminateGraceMS) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// ResolvedPresetsFile returns presets_file or ~/.config/thordock/presets.json.
func (c *Config) ResolvedPresetsFile() (string, error) {
	if c.PresetsFile != "" {
		return expandHome(c.PresetsFile)
	}
	path, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(path), "presets.json"), nil
}

// ResolvedLogDir returns log_dir or the per-user state log directory.
func (c *Config) ResolvedLogDir() (string, error) {
	if c.LogDir != "" {
		return expandHome(c.LogDir)
	}
	return runtimepath.LogDir()
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Save writes the config to the standard location.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ScrcpyPath) == "" {
		return &ValidationError{Path: "scrcpy_path", Err: fmt.Errorf("scrcpy_path is required")}
	}
	if strings.TrimSpace(c.ADBPath) == "" {
		return &ValidationError{Path: "adb_path", Err: fmt.Errorf("adb_path is required")}
	}
	if c.Scale < 0.3 || c.Scale > 1.0 {
		return &ValidationError{Path: "scale", Err: fmt.Errorf("scale must be within [0.3, 1.0], got %g", c.Scale)}
	}
	if c.MaxFPS <= 0 {
		return &ValidationError{Path: "max_fps", Err: fmt.Errorf("max_fps must be > 0")}
	}
	if strings.TrimSpace(c.RenderDriver) == "" {
		return &ValidationError{Path: "render_driver", Err: fmt.Errorf("render_driver is required")}
	}
	for _, s := range []struct {
		name   string
		screen Screen
	}{{"top", c.Top}, {"bottom", c.Bottom}} {
		if err := validateScreen(s.name, s.screen); err != nil {
			return err
		}
	}
	if c.Top.DisplayID == c.Bottom.DisplayID {
		return &ValidationError{Path: "bottom.display_id", Err: fmt.Errorf("top and bottom must use different display ids")}
	}
	if c.Sync.DebounceMS < 0 {
		return &ValidationError{Path: "sync.debounce_ms", Err: fmt.Errorf("debounce_ms must be >= 0")}
	}
	if c.Sync.MinIntervalMS < 0 {
		return &ValidationError{Path: "sync.min_interval_ms", Err: fmt.Errorf("min_interval_ms must be >= 0")}
	}
	if c.Locate.PollIntervalMS <= 0 {
		return &ValidationError{Path: "locate.poll_interval_ms", Err: fmt.Errorf("poll_interval_ms must be > 0")}
	}
	if c.Locate.TimeoutMS < c.Locate.PollIntervalMS {
		return &ValidationError{Path: "locate.timeout_ms", Err: fmt.Errorf("timeout_ms must be >= poll_interval_ms")}
	}
	if c.TerminateGraceMS < 0 {
		return &ValidationError{Path: "terminate_grace_ms", Err: fmt.Errorf("terminate_grace_ms must be >= 0")}
	}
	switch c.ReparentStrategy {
	case "auto", "direct", "safe":
	default:
		return &ValidationError{Path: "reparent_strategy", Err: fmt.Errorf("reparent_strategy must be one of: auto, direct, safe")}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	return nil
}

func validateScreen(name string, s Screen) error {
	if strings.TrimSpace(s.DisplayID) == "" {
		return &ValidationError{Path: name + ".display_id", Err: fmt.Errorf("display_id is required")}
	}
	if s.BaseWidth <= 0 {
		return &ValidationError{Path: name + ".base_width", Err: fmt.Errorf("base_width must be > 0")}
	}
	if s.BaseHeight <= 0 {
		return &ValidationError{Path: name + ".base_height", Err: fmt.Errorf("base_height must be > 0")}
	}
	if s.BitrateMin <= 0 {
		return &ValidationError{Path: name + ".bitrate_min", Err: fmt.Errorf("bitrate_min must be > 0")}
	}
	if s.BitrateScale <= 0 {
		return &ValidationError{Path: name + ".bitrate_scale", Err: fmt.Errorf("bitrate_scale must be > 0")}
	}
	return nil
}
