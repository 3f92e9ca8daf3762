package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestSettingsStore_RoundTrip tests save-then-load fidelity
func TestSettingsStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewSettingsStore(filepath.Join(dir, "settings.json"), "", testLogger())

	in := Settings{Hue: 0.42, BrightnessPct: 73, Language: "fr", SavedAt: 1_700_000_123}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, found, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected record to exist")
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

// TestSettingsStore_LoadAbsent tests that a missing record is not an error
func TestSettingsStore_LoadAbsent(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.json"), "", testLogger())
	_, found, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error for absent record, got %v", err)
	}
	if found {
		t.Error("expected found=false for absent record")
	}
}

// TestSettingsStore_LoadCorrupt tests that a garbled record surfaces as an
// error rather than zero-value settings
func TestSettingsStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewSettingsStore(path, "", testLogger())
	if _, _, err := store.Load(); err == nil {
		t.Error("expected error for corrupt record")
	}
}

// TestSettingsStore_NoTempLeftover tests that the atomic write leaves no
// temp file behind
func TestSettingsStore_NoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	store := NewSettingsStore(path, "", testLogger())

	if err := store.Save(Settings{Hue: 0.1, BrightnessPct: 10, Language: "en"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}

// TestSettingsStore_CreatesDirectory tests that save creates the parent
// directory on first use
func TestSettingsStore_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "settings.json")
	store := NewSettingsStore(path, "", testLogger())
	if err := store.Save(Settings{Language: "en"}); err != nil {
		t.Fatalf("save into missing directory: %v", err)
	}
	if _, found, err := store.Load(); err != nil || !found {
		t.Errorf("expected record after save, found=%v err=%v", found, err)
	}
}

// TestSettingsStore_MirrorsLanguageToBootConfig tests that saving rewrites
// exactly line 4 of the boot config and leaves the rest intact
func TestSettingsStore_MirrorsLanguageToBootConfig(t *testing.T) {
	dir := t.TempDir()
	bootPath := filepath.Join(dir, "wifi_config.txt")
	if err := os.WriteFile(bootPath, []byte("MySSID\nhunter2\nDE\nen\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewSettingsStore(filepath.Join(dir, "settings.json"), bootPath, testLogger())

	if err := store.Save(Settings{Hue: 0.5, BrightnessPct: 50, Language: "de"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	b, err := os.ReadFile(bootPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 boot config lines, got %d: %q", len(lines), lines)
	}
	if lines[0] != "MySSID" || lines[1] != "hunter2" || lines[2] != "DE" {
		t.Errorf("boot config lines 1-3 changed: %q", lines)
	}
	if lines[3] != "de" {
		t.Errorf("expected language line de, got %q", lines[3])
	}
}

// TestSettingsStore_ShortBootConfig tests that a boot config with fewer
// than 4 lines is padded rather than corrupted
func TestSettingsStore_ShortBootConfig(t *testing.T) {
	dir := t.TempDir()
	bootPath := filepath.Join(dir, "wifi_config.txt")
	if err := os.WriteFile(bootPath, []byte("MySSID\nhunter2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewSettingsStore(filepath.Join(dir, "settings.json"), bootPath, testLogger())

	if err := store.Save(Settings{Language: "fr"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, _ := os.ReadFile(bootPath)
	lines := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(lines) != 4 || lines[3] != "fr" {
		t.Errorf("expected padded 4-line boot config ending in fr, got %q", lines)
	}
}

// TestSettingsStore_MissingBootConfig tests that a device without a boot
// config still saves settings cleanly
func TestSettingsStore_MissingBootConfig(t *testing.T) {
	dir := t.TempDir()
	store := NewSettingsStore(filepath.Join(dir, "settings.json"), filepath.Join(dir, "absent.txt"), testLogger())
	if err := store.Save(Settings{Language: "en"}); err != nil {
		t.Fatalf("save with missing boot config: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "absent.txt")); !os.IsNotExist(err) {
		t.Error("missing boot config must not be created")
	}
}
