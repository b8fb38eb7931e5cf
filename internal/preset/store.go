// Package preset stores named layout offsets in a JSON file.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/tidwall/jsonc"
)

// MaxNameLength is the longest accepted preset name.
const MaxNameLength = 50

// ErrNotFound is returned for unknown preset names.
var ErrNotFound = errors.New("preset not found")

// Offsets are the per-window offsets stored in a preset. The scale is
// process configuration and is never part of a preset.
type Offsets struct {
	TX int `json:"tx"`
	TY int `json:"ty"`
	BX int `json:"bx"`
	BY int `json:"by"`
}

// Source is the read-only view the engine uses.
type Source interface {
	Get(name string) (Offsets, error)
}

// NotFoundError carries close matches for an unknown name.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("preset %q not found", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidateName rejects names that are empty, too long, contain path or
// control characters, or could escape a directory.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("preset name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("preset name too long (max %d characters)", MaxNameLength)
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r) {
			return errors.New("preset name contains invalid characters")
		}
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") {
		return errors.New("invalid preset name format")
	}
	return nil
}

// FileStore keeps presets in a single JSON object keyed by name. Comments
// and trailing commas in the file are tolerated on read.
type FileStore struct {
	mu   sync.Mutex
	path string
}

var _ Source = (*FileStore)(nil)

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll reads every preset. A missing file is an empty store.
func (s *FileStore) LoadAll() (map[string]Offsets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileStore) loadLocked() (map[string]Offsets, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Offsets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}
	presets := map[string]Offsets{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return presets, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), &presets); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", s.path, err)
	}
	return presets, nil
}

func (s *FileStore) writeLocked(presets map[string]Offsets) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preset directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(presets, "", "    ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write presets: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write presets: %w", err)
	}
	return nil
}

// Get returns one preset. Unknown names yield a *NotFoundError that
// matches ErrNotFound.
func (s *FileStore) Get(name string) (Offsets, error) {
	presets, err := s.LoadAll()
	if err != nil {
		return Offsets{}, err
	}
	if p, ok := presets[name]; ok {
		return p, nil
	}
	return Offsets{}, &NotFoundError{Name: name, Suggestions: suggest(name, names(presets))}
}

// List returns preset names sorted alphabetically.
func (s *FileStore) List() ([]string, error) {
	presets, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	return names(presets), nil
}

// Save creates or replaces a preset.
func (s *FileStore) Save(name string, o Offsets) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	presets, err := s.loadLocked()
	if err != nil {
		return err
	}
	presets[name] = o
	return s.writeLocked(presets)
}

// Delete removes a preset, reporting whether it existed.
func (s *FileStore) Delete(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	presets, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	if _, ok := presets[name]; !ok {
		return false, nil
	}
	delete(presets, name)
	return true, s.writeLocked(presets)
}

func names(presets map[string]Offsets) []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func suggest(name string, candidates []string) []string {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		// Try the other direction for names that are longer than the target.
		lower := strings.ToLower(name)
		for _, c := range candidates {
			if strings.Contains(lower, strings.ToLower(c)) {
				matches = append(matches, fuzzy.Match{Str: c})
			}
		}
	}
	out := make([]string, 0, 3)
	for _, m := range matches {
		if len(out) == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}
