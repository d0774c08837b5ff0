package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7480"
	DefaultDBFileName = ".inkboard.db"
	DefaultLogLevel   = "info"
	ConfigFileName    = ".inkboard.toml"

	DefaultSessionTTL     = 7 * 24 * time.Hour
	DefaultResetTokenTTL  = time.Hour
	DefaultMaxSceneBytes  = 4 << 20  // 4 MiB
	DefaultMaxUploadBytes = 25 << 20 // 25 MiB
	DefaultClientBuffer   = 64
	DefaultPersistDelay   = 2 * time.Second

	configDirEnvKey          = "INKBOARD_CONFIG_DIR"
	trustProjectConfigEnvKey = "INKBOARD_TRUST_PROJECT_CONFIG"
	apiURLEnvKey             = "INKBOARD_API_URL"
	dbPathEnvKey             = "INKBOARD_DB"
	assetsDirEnvKey          = "INKBOARD_ASSETS_DIR"
)

// Duration wraps time.Duration so TOML files can use strings like "2s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AuthConfig controls accounts and sessions.
type AuthConfig struct {
	SessionTTL    Duration `toml:"session_ttl"`
	ResetTokenTTL Duration `toml:"reset_token_ttl"`
	AllowSignup   bool     `toml:"allow_signup"`
}

// SyncConfig controls the real-time collaboration hub.
type SyncConfig struct {
	MaxSceneBytes   int64    `toml:"max_scene_bytes"`
	ClientBuffer    int      `toml:"client_buffer"`
	PersistDebounce Duration `toml:"persist_debounce"`
}

// FilesConfig controls binary files attached to boards.
type FilesConfig struct {
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// Config defines runtime configuration for inkboard.
type Config struct {
	APIURL                   string      `toml:"api_url"`
	DBPath                   string      `toml:"db_path"`
	DataDir                  string      `toml:"data_dir"`
	AssetsDir                string      `toml:"assets_dir"`
	LogLevel                 string      `toml:"log_level"`
	CORSAllowedOrigins       []string    `toml:"cors_allowed_origins"`
	Auth                     AuthConfig  `toml:"auth"`
	Sync                     SyncConfig  `toml:"sync"`
	Files                    FilesConfig `toml:"files"`
	TrustedProjectConfigPath string      `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Auth: AuthConfig{
			SessionTTL:    Duration(DefaultSessionTTL),
			ResetTokenTTL: Duration(DefaultResetTokenTTL),
			AllowSignup:   true,
		},
		Sync: SyncConfig{
			MaxSceneBytes:   DefaultMaxSceneBytes,
			ClientBuffer:    DefaultClientBuffer,
			PersistDebounce: Duration(DefaultPersistDelay),
		},
		Files: FilesConfig{
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, ConfigFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"data_dir",
	"assets_dir",
	"log_level",
	"cors_allowed_origins",
	"auth.session_ttl",
	"auth.reset_token_ttl",
	"auth.allow_signup",
	"sync.max_scene_bytes",
	"sync.client_buffer",
	"sync.persist_debounce",
	"files.max_upload_bytes",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "data_dir":
		return c.DataDir, nil
	case "assets_dir":
		return c.AssetsDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "cors_allowed_origins":
		return strings.Join(c.CORSAllowedOrigins, ","), nil
	case "auth.session_ttl":
		return c.Auth.SessionTTL.Std().String(), nil
	case "auth.reset_token_ttl":
		return c.Auth.ResetTokenTTL.Std().String(), nil
	case "auth.allow_signup":
		return strconv.FormatBool(c.Auth.AllowSignup), nil
	case "sync.max_scene_bytes":
		return strconv.FormatInt(c.Sync.MaxSceneBytes, 10), nil
	case "sync.client_buffer":
		return strconv.Itoa(c.Sync.ClientBuffer), nil
	case "sync.persist_debounce":
		return c.Sync.PersistDebounce.Std().String(), nil
	case "files.max_upload_bytes":
		return strconv.FormatInt(c.Files.MaxUploadBytes, 10), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, ConfigFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, ConfigFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, ConfigFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if assetsDir := os.Getenv(assetsDirEnvKey); assetsDir != "" {
		cfg.AssetsDir = assetsDir
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.DataDir == "" && cfg.DBPath != "" {
		cfg.DataDir = filepath.Join(filepath.Dir(cfg.DBPath), ".inkboard")
	}

	cfg.normalize()

	return &cfg, nil
}

// BlobRoot returns the directory holding uploaded board files.
func (c *Config) BlobRoot() string {
	return filepath.Join(c.DataDir, "blobs")
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "sync.max_scene_bytes", "files.max_upload_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "sync.client_buffer":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "auth.session_ttl", "auth.reset_token_ttl", "sync.persist_debounce":
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration", key)
		}
		return parsed.String(), nil
	case "auth.allow_signup":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "cors_allowed_origins":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalize() {
	if c.Auth.SessionTTL <= 0 {
		c.Auth.SessionTTL = Duration(DefaultSessionTTL)
	}
	if c.Auth.ResetTokenTTL <= 0 {
		c.Auth.ResetTokenTTL = Duration(DefaultResetTokenTTL)
	}
	if c.Sync.MaxSceneBytes <= 0 {
		c.Sync.MaxSceneBytes = DefaultMaxSceneBytes
	}
	if c.Sync.ClientBuffer <= 0 {
		c.Sync.ClientBuffer = DefaultClientBuffer
	}
	if c.Sync.PersistDebounce <= 0 {
		c.Sync.PersistDebounce = Duration(DefaultPersistDelay)
	}
	if c.Files.MaxUploadBytes <= 0 {
		c.Files.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
}
