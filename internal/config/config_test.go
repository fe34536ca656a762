// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Backend.URL != "http://127.0.0.1:5002" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Storage.Backend = %q, want file", cfg.Storage.Backend)
	}
	if cfg.History.MaxSessions != 10 {
		t.Errorf("History.MaxSessions = %d, want 10", cfg.History.MaxSessions)
	}
	if cfg.SilenceTimeout() != 5*time.Second {
		t.Errorf("SilenceTimeout() = %v, want 5s", cfg.SilenceTimeout())
	}
	if cfg.Voice.ConfidenceFloor != 0.3 {
		t.Errorf("Voice.ConfidenceFloor = %v, want 0.3", cfg.Voice.ConfidenceFloor)
	}
	if cfg.UI.TriggerIntervalSecs != 15 {
		t.Errorf("UI.TriggerIntervalSecs = %d, want 15", cfg.UI.TriggerIntervalSecs)
	}
	if len(cfg.Server.AllowedOrigins) != 5 || cfg.Server.AllowedOrigins[4] != "http://localhost:3004" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[backend]
url = "https://veda.example.com"
legacy = true

[storage]
backend = "sqlite"
sqlite_path = "/tmp/veda.db"

[voice]
url = "wss://speech.example.com/asr"
audio_source = "arecord -q -f S16_LE -r 16000 -c 1 -t raw"

[history]
max_sessions = 0
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Backend.URL != "https://veda.example.com" || !cfg.Backend.Legacy {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.KVOptions().SQLitePath != "/tmp/veda.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if got := cfg.AudioCommand(); len(got) != 10 || got[0] != "arecord" {
		t.Errorf("AudioCommand() = %v", got)
	}
	// Zeroed values are restored from defaults.
	if cfg.History.MaxSessions != 10 {
		t.Errorf("History.MaxSessions = %d, want default 10", cfg.History.MaxSessions)
	}
	if cfg.Backend.TimeoutSecs != 30 {
		t.Errorf("Backend.TimeoutSecs = %d, want default 30", cfg.Backend.TimeoutSecs)
	}

	info, err := os.Stat(path)
	if err == nil && info.Mode().Perm() != 0600 {
		t.Logf("permissions not tightened on this platform: %o", info.Mode().Perm())
	}
}

func TestLoadFromPathInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[storage]\nbackend = \"floppy\"\n[logging]\nlevel = \"loud\"\n"), 0600)

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs ValidateErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want ValidateErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}
	if !strings.Contains(err.Error(), "storage.backend") || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestLoadFromPathMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[backend\nurl="), 0600)

	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VEDA_BACKEND_URL", "http://localhost:8080/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.URL != "http://localhost:8080" {
		t.Errorf("Backend.URL = %q", cfg.Backend.URL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad url", func(c *Config) { c.Backend.URL = "localhost:5002" }, "backend.url"},
		{"ftp url", func(c *Config) { c.Backend.URL = "ftp://host" }, "backend.url"},
		{"storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"history low", func(c *Config) { c.History.MaxSessions = 0 }, "history.max_sessions"},
		{"voice url", func(c *Config) { c.Voice.URL = "http://speech" }, "voice.url"},
		{"confidence", func(c *Config) { c.Voice.ConfidenceFloor = 1.5 }, "voice.confidence_floor"},
		{"log mode", func(c *Config) { c.Logging.Mode = "syslog" }, "logging.mode"},
		{"session backend", func(c *Config) { c.Server.SessionBackend = "file" }, "server.session_backend"},
		{"delay", func(c *Config) { c.Server.StreamDelayMs = -1 }, "server.stream_delay_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() = %v, want ValidateErrors", err)
			}
			if verrs[0].Field != tt.field {
				t.Errorf("field = %q, want %q", verrs[0].Field, tt.field)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("VEDA_LEGACY", "true")
	t.Setenv("VEDA_USER_ID", "u-42")
	t.Setenv("VEDA_STORAGE", "REDIS")
	t.Setenv("VEDA_REDIS_ADDR", "redis:6379")
	t.Setenv("VEDA_REDIS_PASSWORD", "hunter2")
	t.Setenv("VEDA_VOICE_URL", "ws://localhost:2700")
	t.Setenv("VEDA_LOG_LEVEL", "debug")
	t.Setenv("VEDA_SERVER_ADDR", ":6000")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if !cfg.Backend.Legacy || cfg.Backend.UserID != "u-42" {
		t.Errorf("Backend = %+v", cfg.Backend)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisAddr != "redis:6379" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.Voice.Enabled || cfg.Voice.URL != "ws://localhost:2700" {
		t.Errorf("Voice = %+v", cfg.Voice)
	}
	if cfg.Logging.Level != "debug" || cfg.Server.Addr != ":6000" {
		t.Errorf("Logging.Level = %q, Server.Addr = %q", cfg.Logging.Level, cfg.Server.Addr)
	}
	if strings.Contains(cfg.String(), "hunter2") {
		t.Error("String() leaked the redis password")
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	if err := cfg.Set("storage.backend", "memory"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cfg.Set("history.max_sessions", "5"); err != nil {
		t.Fatalf("Set int failed: %v", err)
	}
	if err := cfg.Set("backend.legacy", "yes"); err != nil {
		t.Fatalf("Set bool failed: %v", err)
	}
	if err := cfg.Set("server.allowed_origins", "http://a, http://b"); err != nil {
		t.Fatalf("Set slice failed: %v", err)
	}

	if v, _ := cfg.Get("storage.backend"); v != "memory" {
		t.Errorf("storage.backend = %v", v)
	}
	if cfg.History.MaxSessions != 5 || !cfg.Backend.Legacy {
		t.Errorf("Set did not apply: %+v %+v", cfg.History, cfg.Backend)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "http://b" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}

	if _, err := cfg.Get("backend.nope"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := cfg.Set("history.max_sessions", "many"); err == nil {
		t.Error("expected error for bad integer")
	}
	if err := cfg.Set("backend.url.host", "x"); err == nil {
		t.Error("expected error when descending into a scalar")
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	want := []string{"backend.url", "storage.redis_db", "voice.confidence_floor", "server.allowed_origins"}
	for _, w := range want {
		found := false
		for _, k := range keys {
			if k == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Keys() missing %q", w)
		}
	}

	cfg := Default()
	for _, k := range keys {
		if _, err := cfg.Get(k); err != nil {
			t.Errorf("Get(%q) failed: %v", k, err)
		}
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Backend.UserID = "saved-user"
	cfg.Storage.Namespace = "work"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Backend.UserID != "saved-user" || loaded.Storage.Namespace != "work" {
		t.Errorf("round trip lost values: %+v %+v", loaded.Backend, loaded.Storage)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Server.AllowedOrigins[0] = "http://evil"

	if cfg.Server.AllowedOrigins[0] == "http://evil" {
		t.Error("Clone shares AllowedOrigins")
	}
}
