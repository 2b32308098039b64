package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/metadata"
	"github.com/grendel/clipseal/pkg/patterns"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Session     SessionConfig     `yaml:"session"`
	Metadata    MetadataConfig    `yaml:"metadata"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Detector    DetectorConfig    `yaml:"detector"`
	Bridge      BridgeConfig      `yaml:"bridge"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SessionConfig holds the fingerprint execution context.
type SessionConfig struct {
	ExecContext string `yaml:"exec_context"` // empty = agent|host|user|os/arch
}

// MetadataConfig holds binding settings.
type MetadataConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	PayloadFile string        `yaml:"payload_file"` // side-channel sidecar for the system clipboard
}

// MonitorConfig holds clipboard polling settings.
type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Quarantine   bool          `yaml:"quarantine"`
}

// FingerprintConfig holds fingerprint settings.
type FingerprintConfig struct {
	Length int `yaml:"length"` // hex characters shown to users
}

// DetectorConfig holds detection policy.
type DetectorConfig struct {
	GenericMinLength int    `yaml:"generic_min_length"`
	Keccak           string `yaml:"keccak"` // EIP-55 digest: geth or sha3
}

// BridgeConfig holds local HTTP bridge settings.
type BridgeConfig struct {
	Addr      string `yaml:"addr"`
	TokenFile string `yaml:"token_file"`
	PortFile  string `yaml:"port_file"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Path string `yaml:"path"` // empty disables the audit log
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

const (
	DefaultPollInterval = 750 * time.Millisecond
	DefaultBridgeAddr   = "127.0.0.1:0"
)

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads a .env file into the environment. A missing file is not an
// error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

func (c *AppConfig) applyDefaults() {
	if c.Metadata.TTL == 0 {
		c.Metadata.TTL = metadata.DefaultTTL
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = DefaultPollInterval
	}
	if c.Fingerprint.Length == 0 {
		c.Fingerprint.Length = crypto.DefaultFingerprintLength
	}
	if c.Detector.GenericMinLength == 0 {
		c.Detector.GenericMinLength = patterns.DefaultGenericMinLength
	}
	if c.Detector.Keccak == "" {
		c.Detector.Keccak = crypto.KeccakGeth
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = DefaultBridgeAddr
	}
	if c.Bridge.TokenFile == "" {
		c.Bridge.TokenFile = filepath.Join(RuntimeDir(), "clipseal_token")
	}
	if c.Bridge.PortFile == "" {
		c.Bridge.PortFile = filepath.Join(RuntimeDir(), "clipseal_port")
	}
	if c.Metadata.PayloadFile == "" {
		c.Metadata.PayloadFile = filepath.Join(RuntimeDir(), "clipseal_payload.json")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings the agent cannot run with.
func (c *AppConfig) Validate() error {
	if c.Metadata.TTL < 0 {
		return fmt.Errorf("metadata.ttl must be positive, got %s", c.Metadata.TTL)
	}
	if c.Monitor.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("monitor.poll_interval too short: %s", c.Monitor.PollInterval)
	}
	if c.Fingerprint.Length < crypto.MinFingerprintLength || c.Fingerprint.Length > crypto.MaxFingerprintLength {
		return fmt.Errorf("fingerprint.length must be in [%d, %d], got %d",
			crypto.MinFingerprintLength, crypto.MaxFingerprintLength, c.Fingerprint.Length)
	}
	if c.Detector.GenericMinLength < 26 {
		return fmt.Errorf("detector.generic_min_length must be at least 26, got %d", c.Detector.GenericMinLength)
	}
	if _, err := crypto.KeccakByName(c.Detector.Keccak); err != nil {
		return fmt.Errorf("detector.keccak: %w", err)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}
	return nil
}

// RuntimeDir is where the agent keeps its token, port and payload files:
// $XDG_RUNTIME_DIR, else ~/.local/share.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".local", "share")
}
