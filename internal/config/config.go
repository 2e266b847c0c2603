// Package config loads the agentlock runtime configuration: where to listen,
// which proposer to call and where policy, inventory and records live.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/agentlock/internal/logger"
)

var log = logger.New("config")

const (
	DefaultConfigDir  = ".agentlock"
	DefaultConfigFile = "config.yaml"
	DefaultPolicyFile = "policy.yaml"
	DefaultLogFile    = "audit.jsonl"
	DefaultPacksDir   = "packs"

	// EnvPrefix prefixes every environment override, e.g. AGENTLOCK_SERVER_ADDR.
	EnvPrefix = "agentlock"
)

type Config struct {
	ConfigDir string `yaml:"-" ignored:"true"`

	Server    ServerConfig    `yaml:"server"`
	Proposer  ProposerConfig  `yaml:"proposer"`
	Storage   StorageConfig   `yaml:"storage"`
	Audit     AuditConfig     `yaml:"audit"`
	Policy    PolicyConfig    `yaml:"policy"`
	Inventory InventoryConfig `yaml:"inventory"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the decision API settings.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"max_body_bytes" split_words:"true"`
}

// ProposerConfig selects the service that proposes candidate actions.
type ProposerConfig struct {
	Kind    string        `yaml:"kind"` // stub, http or grpc
	URL     string        `yaml:"url"`  // http URL or grpc host:port
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig enables durable trust scores and the decision ledger.
// An empty DBPath keeps all state in memory.
type StorageConfig struct {
	DBPath string `yaml:"db_path" split_words:"true"`
}

type AuditConfig struct {
	Path string `yaml:"path"`
}

type PolicyConfig struct {
	Path     string `yaml:"path"`
	PacksDir string `yaml:"packs_dir" split_words:"true"`
}

// InventoryConfig points at the asset inventory. Empty uses the built-in one.
type InventoryConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultDir returns ~/.agentlock, or a relative .agentlock when there is no
// home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// DefaultConfigPath returns the default config file path (~/.agentlock/config.yaml).
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), DefaultConfigFile)
}

func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		ConfigDir: dir,
		Server: ServerConfig{
			Addr:         ":8000",
			MaxBodyBytes: 1 << 20,
		},
		Proposer: ProposerConfig{
			Kind:    "stub",
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Path: filepath.Join(dir, DefaultLogFile),
		},
		Policy: PolicyConfig{
			Path:     filepath.Join(dir, DefaultPolicyFile),
			PacksDir: filepath.Join(dir, DefaultPacksDir),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// isUnknownFieldError reports whether err came from KnownFields(true)
// rejecting an unrecognized key.
func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}

// Load reads the YAML config at path over the defaults, then applies
// environment overrides. A missing file is not an error. Load does not
// validate; apply CLI overrides first, then call Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Debugf("config file %s not found, using defaults", path)
	case err != nil:
		return nil, err
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			if !isUnknownFieldError(err) {
				return nil, fmt.Errorf("config parse error: %w", err)
			}
			log.Warnf("config has unknown fields (ignored): %v", err)
			cfg = DefaultConfig()
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config parse error: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from AGENTLOCK_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("config env overrides: %w", err)
	}
	return nil
}

// Validate checks all fields and returns a multi-error report.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, "server.addr: must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_bytes: must be positive (got %d)", c.Server.MaxBodyBytes))
	}

	switch c.Proposer.Kind {
	case "stub":
	case "http":
		if u, err := url.Parse(c.Proposer.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("proposer.url: must be a valid http/https URL (got %q)", c.Proposer.URL))
		}
	case "grpc":
		if c.Proposer.URL == "" {
			errs = append(errs, "proposer.url: grpc proposer needs host:port")
		}
	default:
		errs = append(errs, fmt.Sprintf("proposer.kind: unknown kind %q (valid: stub, http, grpc)", c.Proposer.Kind))
	}
	if c.Proposer.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("proposer.timeout: must be positive (got %s)", c.Proposer.Timeout))
	}

	if c.Audit.Path == "" {
		errs = append(errs, "audit.path: must not be empty")
	}
	if c.Inventory.Watch && c.Inventory.Path == "" {
		errs = append(errs, "inventory.watch: requires inventory.path")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, "log.level: "+err.Error())
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("log.format: unknown format %q (valid: text, json)", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(sb.String())
}

// EnsureDirs creates the directories that hold the audit log and database.
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.Audit.Path, c.Storage.DBPath} {
		if p == "" || p == ":memory:" {
			continue
		}
		if err := ensureDir(filepath.Dir(p)); err != nil {
			return err
		}
	}
	return nil
}

func ensureDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, 0700)
	}
	return nil
}
