package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Settings is the persisted projection of the UI's durable fields.
// The JSON shape is load-bearing: older installs already have these files.
type Settings struct {
	Hue           float64 `json:"hue"`
	BrightnessPct int     `json:"brightness"`
	Language      string  `json:"language"`
	SavedAt       int64   `json:"saved_at"`
}

// SettingsStore loads and saves the settings record. Saves are atomic
// (temp file + rename) so a crash mid-write never destroys the previous
// valid record.
type SettingsStore struct {
	path           string
	bootConfigPath string
	logger         *slog.Logger
}

func NewSettingsStore(path, bootConfigPath string, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{path: path, bootConfigPath: bootConfigPath, logger: logger}
}

// Load reads the settings record. The second return is false when no record
// exists yet; that is not an error.
func (s *SettingsStore) Load() (Settings, bool, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, false, nil
		}
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}
	var st Settings
	if err := json.Unmarshal(b, &st); err != nil {
		return Settings{}, false, fmt.Errorf("decode settings: %w", err)
	}
	return st, true, nil
}

// Save writes the record atomically, then mirrors the language choice into
// the boot config so the next boot picks it up before settings load.
func (s *SettingsStore) Save(st Settings) error {
	if st.SavedAt == 0 {
		st.SavedAt = time.Now().Unix()
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}

	if err := s.persistLanguageToBootConfig(st.Language); err != nil {
		// Non-fatal: the JSON record is authoritative, the boot config line
		// only pre-seeds the language before settings load.
		s.logger.Warn("failed to mirror language into boot config", "error", err)
	}
	return nil
}

// persistLanguageToBootConfig rewrites line 4 of the boot config file
// (ssid, password, country, language) without touching the other lines.
// A missing boot config is left alone.
func (s *SettingsStore) persistLanguageToBootConfig(code string) error {
	if s.bootConfigPath == "" || code == "" {
		return nil
	}
	b, err := os.ReadFile(s.bootConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read boot config: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	for len(lines) < 4 {
		lines = append(lines, "")
	}
	lines[3] = code
	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(s.bootConfigPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write boot config: %w", err)
	}
	return nil
}
