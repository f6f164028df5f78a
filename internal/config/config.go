// Package config loads workpal settings from an optional YAML file and the
// WORKPAL_* environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"workpal/internal/blob"
	"workpal/internal/core"
)

// Config is the full runtime configuration.
type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	LockTimeout Duration      `yaml:"lock_timeout"`
	Departments []string      `yaml:"departments,omitempty"`
	Log         LogConfig     `yaml:"log"`
	Storage     StorageConfig `yaml:"storage"`
	Blob        BlobConfig    `yaml:"blob"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
	Tables      string `yaml:"tables"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root,omitempty"`
	S3     S3Config `yaml:"s3,omitempty"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

type MetricsConfig struct {
	// Prometheus exposes /metrics on the HTTP server.
	Prometheus bool `yaml:"prometheus"`
	// Expvar publishes counters under /debug/vars.
	Expvar bool `yaml:"expvar"`
}

// Tracing exporters. Tracing is off unless one is chosen.
const (
	TraceExporterNone = ""
	TraceExporterLog  = "log"
	TraceExporterJSON = "json"
)

type TracingConfig struct {
	// Exporter is "log" for OpenTelemetry spans logged through zap or "json"
	// for one JSON line per operation.
	Exporter string `yaml:"exporter,omitempty"`
	// SampleRatio is the fraction of root traces the log exporter keeps.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
	// JSONPath receives json spans; empty or "-" means stderr.
	JSONPath string `yaml:"json_path,omitempty"`
}

// Duration accepts Go duration strings ("750ms", "5s") in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:    ":8080",
		LockTimeout: Duration(core.DefaultLockTimeout),
		Log:         LogConfig{Level: "info", Encoding: "json"},
		Storage:     StorageConfig{Driver: string(core.StorageSQLite), SQLitePath: "workpal.db", Tables: string(core.TablesWorkbook)},
		Blob:        BlobConfig{Driver: string(blob.DriverFilesystem), FSRoot: "./blobdata"},
		Metrics:     MetricsConfig{Prometheus: true},
		Tracing:     TracingConfig{SampleRatio: 1},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("WORKPAL_HTTP_ADDR", &c.HTTPAddr)
	str("WORKPAL_LOG_LEVEL", &c.Log.Level)
	str("WORKPAL_LOG_ENCODING", &c.Log.Encoding)
	str("WORKPAL_STORAGE_DRIVER", &c.Storage.Driver)
	str("WORKPAL_SQLITE_PATH", &c.Storage.SQLitePath)
	str("WORKPAL_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("WORKPAL_TABLE_DRIVER", &c.Storage.Tables)
	str("WORKPAL_BLOB_DRIVER", &c.Blob.Driver)
	str("WORKPAL_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("WORKPAL_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("WORKPAL_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("WORKPAL_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	if v, ok := os.LookupEnv("WORKPAL_BLOB_S3_PATH_STYLE"); ok {
		c.Blob.S3.PathStyle = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v, ok := os.LookupEnv("WORKPAL_METRICS_PROMETHEUS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("WORKPAL_METRICS_PROMETHEUS: %w", err)
		}
		c.Metrics.Prometheus = b
	}
	str("WORKPAL_TRACING_EXPORTER", &c.Tracing.Exporter)
	str("WORKPAL_TRACING_JSON_PATH", &c.Tracing.JSONPath)
	if v, ok := os.LookupEnv("WORKPAL_TRACING_SAMPLE_RATIO"); ok && strings.TrimSpace(v) != "" {
		r, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("WORKPAL_TRACING_SAMPLE_RATIO: %w", err)
		}
		c.Tracing.SampleRatio = r
	}
	if v, ok := os.LookupEnv("WORKPAL_LOCK_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("WORKPAL_LOCK_TIMEOUT: %w", err)
		}
		c.LockTimeout = Duration(d)
	}
	if v, ok := os.LookupEnv("WORKPAL_DEPARTMENTS"); ok {
		c.Departments = splitList(v)
	}
	return nil
}

// Validate rejects settings no backend can serve.
func (c Config) Validate() error {
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	switch core.StorageDriver(strings.ToLower(c.Storage.Driver)) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch core.TableDriver(strings.ToLower(c.Storage.Tables)) {
	case core.TablesMemory, core.TablesWorkbook:
	default:
		return fmt.Errorf("unknown table driver %q", c.Storage.Tables)
	}
	switch blob.Driver(strings.ToLower(c.Blob.Driver)) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("blob.s3.bucket required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case TraceExporterNone, TraceExporterLog, TraceExporterJSON:
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be in (0, 1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// StorageOptions converts the storage and blob sections for core.OpenRuleRepository
// and core.OpenTableStore.
func (c Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(strings.ToLower(c.Storage.Driver)),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		Tables:      core.TableDriver(strings.ToLower(c.Storage.Tables)),
		Blob: blob.Options{
			Driver: blob.Driver(strings.ToLower(c.Blob.Driver)),
			FSRoot: c.Blob.FSRoot,
			S3: blob.S3Config{
				Bucket:    c.Blob.S3.Bucket,
				Region:    c.Blob.S3.Region,
				Endpoint:  c.Blob.S3.Endpoint,
				PathStyle: c.Blob.S3.PathStyle,
			},
		},
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
