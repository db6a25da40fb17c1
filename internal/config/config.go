// Package config loads tether configuration from YAML or CUE files.
//
// Files only need to name the settings they change; everything else keeps
// the value from Default. Unknown keys are rejected in both formats.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tether/internal/peersync"
	"github.com/roach88/tether/internal/rtc"
)

//go:embed schema.cue
var schemaSource string

// Transport names.
const (
	TransportWebRTC = "webrtc"
	TransportMemory = "memory"
)

// Anchor backends.
const (
	BackendBolt = "bolt"
	BackendS3   = "s3"
)

// Default file names under the home directory.
const (
	DefaultStoreFile  = "tether.db"
	DefaultAnchorFile = "anchor.db"
)

// Duration is a time.Duration written as "30s" in config files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage" json:"storage"`
	Sync    SyncConfig    `yaml:"sync" json:"sync"`
	Anchor  AnchorConfig  `yaml:"anchor" json:"anchor"`
	Export  ExportConfig  `yaml:"export" json:"export"`
}

// StorageConfig configures the local store.
type StorageConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Path            string `yaml:"path" json:"path"`
	BackupRetention int    `yaml:"backup_retention" json:"backup_retention"`
}

// SyncConfig configures peer sync.
type SyncConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	AutoSync          bool     `yaml:"auto_sync" json:"auto_sync"`
	Interval          Duration `yaml:"interval" json:"interval"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	ConflictStrategy  string   `yaml:"conflict_strategy" json:"conflict_strategy"`
	Transport         string   `yaml:"transport" json:"transport"`
	ICEServers        []string `yaml:"ice_servers" json:"ice_servers"`
}

// AnchorConfig configures the content anchor.
type AnchorConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Backend string   `yaml:"backend" json:"backend"`
	Path    string   `yaml:"path" json:"path"`
	S3      S3Config `yaml:"s3" json:"s3"`
}

// S3Config mirrors anchor.S3Config.
type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style" json:"use_path_style"`
	GatewayURL      string `yaml:"gateway_url" json:"gateway_url"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// ExportConfig configures snapshot export.
type ExportConfig struct {
	Encrypt bool `yaml:"encrypt" json:"encrypt"`
}

// Default returns the built-in configuration: every feature on except
// export encryption, a 60s sync interval and a 30s heartbeat.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Enabled:         true,
			Path:            DefaultStoreFile,
			BackupRetention: 10,
		},
		Sync: SyncConfig{
			Enabled:           true,
			AutoSync:          true,
			Interval:          Duration(60 * time.Second),
			HeartbeatInterval: Duration(peersync.DefaultHeartbeatInterval),
			ConflictStrategy:  string(peersync.StrategyNewest),
			Transport:         TransportWebRTC,
			ICEServers:        slices.Clone(rtc.DefaultICEServers),
		},
		Anchor: AnchorConfig{
			Enabled: true,
			Backend: BackendBolt,
			Path:    DefaultAnchorFile,
		},
	}
}

// Load reads path over Default. The format follows the extension: .yaml and
// .yml are YAML, .cue is CUE checked against the embedded schema.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &cfg)
	case ".cue":
		err = decodeCUE(data, path, &cfg)
	default:
		err = fmt.Errorf("unsupported config format %q (want .yaml, .yml or .cue)", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func decodeCUE(data []byte, path string, cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile cue: %w", err)
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate cue: %w", err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return fmt.Errorf("export cue: %w", err)
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("decode cue: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error

	if c.Storage.BackupRetention < 1 {
		errs = append(errs, fmt.Errorf("storage.backup_retention must be at least 1, got %d", c.Storage.BackupRetention))
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage is enabled"))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Sync.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("sync.heartbeat_interval must be positive"))
	}
	if _, err := peersync.ParseStrategy(c.Sync.ConflictStrategy); err != nil {
		errs = append(errs, fmt.Errorf("sync.conflict_strategy: %w", err))
	}
	switch c.Sync.Transport {
	case TransportWebRTC, TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("sync.transport must be %q or %q, got %q", TransportWebRTC, TransportMemory, c.Sync.Transport))
	}
	if c.Anchor.Enabled {
		switch c.Anchor.Backend {
		case BackendBolt:
			if c.Anchor.Path == "" {
				errs = append(errs, errors.New("anchor.path is required for the bolt backend"))
			}
		case BackendS3:
			if c.Anchor.S3.Bucket == "" {
				errs = append(errs, errors.New("anchor.s3.bucket is required for the s3 backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("anchor.backend must be %q or %q, got %q", BackendBolt, BackendS3, c.Anchor.Backend))
		}
	}
	return errors.Join(errs...)
}

// Resolve returns a copy with relative file paths joined onto home.
func (c Config) Resolve(home string) Config {
	out := c
	out.Sync.ICEServers = slices.Clone(c.Sync.ICEServers)
	if out.Storage.Path != "" && !filepath.IsAbs(out.Storage.Path) {
		out.Storage.Path = filepath.Join(home, out.Storage.Path)
	}
	if out.Anchor.Path != "" && !filepath.IsAbs(out.Anchor.Path) {
		out.Anchor.Path = filepath.Join(home, out.Anchor.Path)
	}
	return out
}
