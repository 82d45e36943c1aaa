package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// SettingsStore is a flat key/value settings document persisted as YAML,
// standing in for the editor's workspace configuration.
//
//	typescript.updateImportsOnFileMove.enabled: always
//	editor.tabSize: 2
type SettingsStore struct {
	mu       sync.RWMutex
	filePath string
	values   map[string]any
}

// OpenSettings loads path, starting empty when the file does not exist yet.
func OpenSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{filePath: path, values: make(map[string]any)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	return s, nil
}

func (s *SettingsStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// All returns a copy of every setting.
func (s *SettingsStore) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

func (s *SettingsStore) Set(key string, value any) error {
	return s.SetMany(map[string]any{key: value})
}

// SetMany applies every update and saves once. Nothing changes in memory if
// the save fails.
func (s *SettingsStore) SetMany(updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	maps.Copy(next, updates)
	if err := s.save(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

// save writes through a temp file and rename so readers never see a torn file.
func (s *SettingsStore) save(values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.filePath)
}
