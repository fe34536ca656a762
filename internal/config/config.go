// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/logging"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete veda configuration.
type Config struct {
	Backend BackendConfig `toml:"backend" json:"backend"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	History HistoryConfig `toml:"history" json:"history"`
	Voice   VoiceConfig   `toml:"voice" json:"voice"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Server  ServerConfig  `toml:"server" json:"server"`
}

// BackendConfig points the client at the chat service.
type BackendConfig struct {
	// URL is the base URL of the chat backend (no trailing /chat)
	URL string `toml:"url" json:"url"`
	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// Legacy uses the single-JSON /chat contract instead of the stream
	Legacy bool `toml:"legacy" json:"legacy"`
	// UserID is sent with chat, feedback and ticket requests when set
	UserID string `toml:"user_id" json:"user_id"`
}

// StorageConfig selects where the session id and history are kept.
type StorageConfig struct {
	// Backend is one of "file", "sqlite", "memory", "redis"
	Backend       string `toml:"backend" json:"backend"`
	Path          string `toml:"path" json:"path"`
	SQLitePath    string `toml:"sqlite_path" json:"sqlite_path"`
	RedisAddr     string `toml:"redis_addr" json:"redis_addr"`
	RedisPassword string `toml:"redis_password" json:"redis_password"`
	RedisDB       int    `toml:"redis_db" json:"redis_db"`
	// Namespace prefixes every key, so several profiles can share a store
	Namespace string `toml:"namespace" json:"namespace"`
}

// HistoryConfig bounds the saved chat list.
type HistoryConfig struct {
	MaxSessions int `toml:"max_sessions" json:"max_sessions"`
}

// VoiceConfig configures speech input.
type VoiceConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// URL is the websocket endpoint of the speech service
	URL string `toml:"url" json:"url"`
	// AudioSource is the capture command, e.g. "arecord -q -f S16_LE -r 16000 -c 1 -t raw"
	AudioSource     string  `toml:"audio_source" json:"audio_source"`
	Language        string  `toml:"language" json:"language"`
	SilenceTimeout  int     `toml:"silence_timeout_ms" json:"silence_timeout_ms"`
	ConfidenceFloor float64 `toml:"confidence_floor" json:"confidence_floor"`
}

// UIConfig contains widget display settings.
type UIConfig struct {
	// Markdown renders assistant replies through glamour
	Markdown bool `toml:"markdown" json:"markdown"`
	// TriggerIntervalSecs is how often the closed widget rotates its message
	TriggerIntervalSecs int `toml:"trigger_interval_secs" json:"trigger_interval_secs"`
	// StartOpen skips the closed trigger state
	StartOpen bool `toml:"start_open" json:"start_open"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Mode       string `toml:"mode" json:"mode"`
	Level      string `toml:"level" json:"level"`
	File       string `toml:"file" json:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
}

// ServerConfig configures the local development backend.
type ServerConfig struct {
	Addr           string   `toml:"addr" json:"addr"`
	StreamDelayMs  int      `toml:"stream_delay_ms" json:"stream_delay_ms"`
	RateLimitRPS   float64  `toml:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int      `toml:"rate_limit_burst" json:"rate_limit_burst"`
	SQLitePath     string   `toml:"sqlite_path" json:"sqlite_path"`
	SessionBackend string   `toml:"session_backend" json:"session_backend"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	log := logging.DefaultConfig()
	return &Config{
		Backend: BackendConfig{
			URL:         "http://127.0.0.1:5002",
			TimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Backend: kv.BackendFile,
		},
		History: HistoryConfig{
			MaxSessions: 10,
		},
		Voice: VoiceConfig{
			Language:        "en-US",
			SilenceTimeout:  5000,
			ConfidenceFloor: 0.3,
		},
		UI: UIConfig{
			Markdown:            true,
			TriggerIntervalSecs: 15,
		},
		Logging: LoggingConfig{
			Mode:       log.Mode,
			Level:      log.Level,
			MaxSizeMB:  log.MaxSizeMB,
			MaxBackups: log.MaxBackups,
			MaxAgeDays: log.MaxAgeDays,
		},
		Server: ServerConfig{
			Addr:           ":5002",
			StreamDelayMs:  40,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			SessionBackend: kv.BackendMemory,
			AllowedOrigins: DefaultAllowedOrigins(),
		},
	}
}

// DefaultAllowedOrigins are the local frontend dev ports.
func DefaultAllowedOrigins() []string {
	origins := make([]string, 0, 5)
	for port := 3000; port <= 3004; port++ {
		origins = append(origins, fmt.Sprintf("http://localhost:%d", port))
	}
	return origins
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the veda configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".veda"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens the config file to 0600. It may hold a
// redis password.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.veda/config.toml when it exists and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg and fills unset values.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadFromPath loads and validates a specific config file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults restores defaults for values a file explicitly zeroed.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Backend.URL == "" {
		cfg.Backend.URL = defaults.Backend.URL
	}
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}

	if cfg.History.MaxSessions == 0 {
		cfg.History.MaxSessions = defaults.History.MaxSessions
	}

	if cfg.Voice.SilenceTimeout == 0 {
		cfg.Voice.SilenceTimeout = defaults.Voice.SilenceTimeout
	}
	if cfg.Voice.ConfidenceFloor == 0 {
		cfg.Voice.ConfidenceFloor = defaults.Voice.ConfidenceFloor
	}
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = defaults.Voice.Language
	}

	if cfg.UI.TriggerIntervalSecs == 0 {
		cfg.UI.TriggerIntervalSecs = defaults.UI.TriggerIntervalSecs
	}

	if cfg.Logging.Mode == "" {
		cfg.Logging.Mode = defaults.Logging.Mode
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaults.Server.Addr
	}
	if cfg.Server.SessionBackend == "" {
		cfg.Server.SessionBackend = defaults.Server.SessionBackend
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# veda configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if u, err := url.Parse(c.Backend.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		add("backend.url", "must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.TimeoutSecs < 0 {
		add("backend.timeout_secs", "must not be negative")
	}

	switch c.Storage.Backend {
	case kv.BackendFile, kv.BackendSQLite, kv.BackendMemory, kv.BackendRedis:
	default:
		add("storage.backend", "must be one of file, sqlite, memory, redis; got %q", c.Storage.Backend)
	}
	if c.Storage.RedisDB < 0 {
		add("storage.redis_db", "must not be negative")
	}

	if c.History.MaxSessions < 1 || c.History.MaxSessions > 100 {
		add("history.max_sessions", "must be between 1 and 100")
	}

	if c.Voice.URL != "" {
		if u, err := url.Parse(c.Voice.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			add("voice.url", "must be a ws(s) URL, got %q", c.Voice.URL)
		}
	}
	if c.Voice.SilenceTimeout < 0 {
		add("voice.silence_timeout_ms", "must not be negative")
	}
	if c.Voice.ConfidenceFloor < 0 || c.Voice.ConfidenceFloor > 1 {
		add("voice.confidence_floor", "must be between 0 and 1")
	}

	if c.UI.TriggerIntervalSecs < 0 {
		add("ui.trigger_interval_secs", "must not be negative")
	}

	switch c.Logging.Mode {
	case logging.ModeFile, logging.ModeConsole, logging.ModeTee:
	default:
		add("logging.mode", "must be one of file, console, tee; got %q", c.Logging.Mode)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}

	if c.Server.StreamDelayMs < 0 {
		add("server.stream_delay_ms", "must not be negative")
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		add("server.rate_limit", "must not be negative")
	}
	switch c.Server.SessionBackend {
	case kv.BackendMemory, kv.BackendRedis:
	default:
		add("server.session_backend", "must be memory or redis; got %q", c.Server.SessionBackend)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - VEDA_BACKEND_URL: overrides backend.url
//   - VEDA_LEGACY: "1" or "true" selects the single-JSON backend contract
//   - VEDA_USER_ID: overrides backend.user_id
//   - VEDA_STORAGE: overrides storage.backend
//   - VEDA_STORAGE_PATH: overrides storage.path
//   - VEDA_REDIS_ADDR, VEDA_REDIS_PASSWORD: override the redis connection
//   - VEDA_VOICE_URL: overrides voice.url and enables voice input
//   - VEDA_LOG_LEVEL: overrides logging.level
//   - VEDA_SERVER_ADDR: overrides server.addr
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("VEDA_BACKEND_URL"); v != "" {
		c.Backend.URL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("VEDA_LEGACY"); v != "" {
		c.Backend.Legacy = parseBool(v)
	}
	if v := os.Getenv("VEDA_USER_ID"); v != "" {
		c.Backend.UserID = v
	}
	if v := os.Getenv("VEDA_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("VEDA_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("VEDA_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("VEDA_REDIS_PASSWORD"); v != "" {
		c.Storage.RedisPassword = v
	}
	if v := os.Getenv("VEDA_VOICE_URL"); v != "" {
		c.Voice.URL = v
		c.Voice.Enabled = true
	}
	if v := os.Getenv("VEDA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VEDA_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes"
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// Timeout returns the backend timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSecs) * time.Second
}

// KVOptions returns the key/value store options for the client.
func (c *Config) KVOptions() kv.Options {
	return kv.Options{
		Backend:       c.Storage.Backend,
		Path:          c.Storage.Path,
		SQLitePath:    c.Storage.SQLitePath,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		Namespace:     c.Storage.Namespace,
	}
}

// LogConfig returns the logger settings.
func (c *Config) LogConfig() logging.Config {
	return logging.Config{
		Mode:       c.Logging.Mode,
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// SilenceTimeout returns voice.silence_timeout_ms as a duration.
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.Voice.SilenceTimeout) * time.Millisecond
}

// AudioCommand splits voice.audio_source into argv.
func (c *Config) AudioCommand() []string {
	return strings.Fields(c.Voice.AudioSource)
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "backend.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "storage.backend").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]; tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			field.SetBool(parseBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &clone
}

// String returns the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Storage.RedisPassword != "" {
		safe.Storage.RedisPassword = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
