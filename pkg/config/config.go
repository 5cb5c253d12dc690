package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the profile config file inside a profile directory.
const FileName = "config.toml"

// IPCConfig defines socket settings.
type IPCConfig struct {
	SocketPath string `toml:"socketPath"`
}

// StorageConfig defines SQLite tuning options.
type StorageConfig struct {
	Backend       string `toml:"backend"`
	DBPath        string `toml:"dbPath"`
	JournalMode   string `toml:"journalMode"`
	Synchronous   string `toml:"synchronous"`
	BusyTimeoutMs int    `toml:"busyTimeoutMs"`
}

// VCSConfig controls the git history of snapshot.json.
type VCSConfig struct {
	Enabled     bool   `toml:"enabled"`
	Branch      string `toml:"branch"`
	AuthorName  string `toml:"authorName"`
	AuthorEmail string `toml:"authorEmail"`
}

// LoggingConfig defines logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	Format      string `toml:"format"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
	FileBackups int    `toml:"fileMaxBackups"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string        `toml:"profileName"`
	Storage     StorageConfig `toml:"storage"`
	VCS         VCSConfig     `toml:"vcs"`
	IPC         IPCConfig     `toml:"ipc"`
	Logging     LoggingConfig `toml:"logging"`
}

// DefaultProfile returns a config with every field populated.
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Storage: StorageConfig{
			Backend:       "sqlite",
			DBPath:        "state.db",
			JournalMode:   "WAL",
			Synchronous:   "NORMAL",
			BusyTimeoutMs: 5000,
		},
		VCS: VCSConfig{
			Branch:      "main",
			AuthorName:  "ordod",
			AuthorEmail: "ordod@localhost",
		},
		IPC: IPCConfig{SocketPath: "ordo.sock"},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			FilePath:    "logs/ordod.log",
			FileMaxSize: 10,
			FileBackups: 3,
		},
	}
}

// Load reads a config file from path.
func Load(path string) (*ProfileConfig, error) {
	var cfg ProfileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadProfile reads config.toml from a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes cfg as TOML, creating parent directories as needed.
func Save(path string, cfg *ProfileConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath makes p absolute relative to the profile directory.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

var (
	journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
	syncModes    = []string{"OFF", "NORMAL", "FULL", "EXTRA"}
	backends     = []string{"sqlite", "memory"}
	levels       = []string{"debug", "info", "warn", "error"}
	formats      = []string{"text", "json"}
)

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if !oneOf(cfg.Storage.Backend, backends) {
		return fmt.Errorf("storage.backend %q must be one of %v", cfg.Storage.Backend, backends)
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.Storage.JournalMode == "" {
		cfg.Storage.JournalMode = "WAL"
	}
	cfg.Storage.JournalMode = strings.ToUpper(cfg.Storage.JournalMode)
	if !oneOf(cfg.Storage.JournalMode, journalModes) {
		return fmt.Errorf("storage.journalMode %q must be one of %v", cfg.Storage.JournalMode, journalModes)
	}
	if cfg.Storage.Synchronous == "" {
		cfg.Storage.Synchronous = "NORMAL"
	}
	cfg.Storage.Synchronous = strings.ToUpper(cfg.Storage.Synchronous)
	if !oneOf(cfg.Storage.Synchronous, syncModes) {
		return fmt.Errorf("storage.synchronous %q must be one of %v", cfg.Storage.Synchronous, syncModes)
	}
	if cfg.Storage.BusyTimeoutMs < 0 {
		return fmt.Errorf("storage.busyTimeoutMs must not be negative")
	}
	if cfg.VCS.Branch == "" {
		cfg.VCS.Branch = "main"
	}
	if cfg.VCS.AuthorName == "" {
		cfg.VCS.AuthorName = "ordod"
	}
	if cfg.VCS.AuthorEmail == "" {
		cfg.VCS.AuthorEmail = "ordod@localhost"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if !oneOf(cfg.Logging.Level, levels) {
		return fmt.Errorf("logging.level %q must be one of %v", cfg.Logging.Level, levels)
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if !oneOf(cfg.Logging.Format, formats) {
		return fmt.Errorf("logging.format %q must be one of %v", cfg.Logging.Format, formats)
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
