// Package config loads and validates the importer's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the root of the importer configuration file.
type Config struct {
	// Job names the batch job; together with the launch parameters it
	// identifies the job instance in the metadata tables.
	Job string `json:"job"`

	Source    Source    `json:"source"`
	Feed      Feed      `json:"feed"`
	Storage   Storage   `json:"storage"`
	Warehouse Warehouse `json:"warehouse"`
	Metadata  Metadata  `json:"metadata"`
	Runtime   Runtime   `json:"runtime"`
}

type Source struct {
	File FileSource `json:"file"`
}

type FileSource struct {
	Path string `json:"path"`
}

// Feed controls parsing of the delimited feed file.
type Feed struct {
	HasHeader  bool              `json:"has_header"`
	Comma      string            `json:"comma"`
	TrimSpace  bool              `json:"trim_space"`
	LazyQuotes bool              `json:"lazy_quotes"`
	HeaderMap  map[string]string `json:"header_map"`
	Encoding   string            `json:"encoding"`
}

type Storage struct {
	// Dialect selects the registered backend: "postgres" | "mssql" | "sqlite".
	Dialect string `json:"dialect"`

	// DSN is the backend connection string. Environment references like
	// ${PGPASSWORD} are expanded at load time.
	DSN string `json:"dsn"`
}

type Warehouse struct {
	// TablePrefix prefixes the dimension/fact tables and their sequences.
	TablePrefix string `json:"table_prefix"`
}

type Metadata struct {
	// TablePrefix prefixes the job instance/execution tables (default "batch_").
	TablePrefix string `json:"table_prefix"`
}

// Runtime controls batch execution behavior.
type Runtime struct {
	// ChunkSize is the number of records per transaction.
	ChunkSize int `json:"chunk_size"`

	// SkipInvalid skips records that fail validation instead of failing the
	// chunk.
	SkipInvalid bool `json:"skip_invalid"`

	// MaxChunkRetries bounds retries of chunks that hit transient backend
	// errors or concurrent fact updates.
	MaxChunkRetries int `json:"max_chunk_retries"`

	// Restartable permits resuming a failed or stopped job instance.
	Restartable bool `json:"restartable"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Job: "price-import",
		Feed: Feed{
			HasHeader: true,
			Comma:     ",",
			TrimSpace: true,
		},
		Warehouse: Warehouse{TablePrefix: "dw"},
		Metadata:  Metadata{TablePrefix: "batch_"},
		Runtime: Runtime{
			ChunkSize:       100,
			SkipInvalid:     true,
			MaxChunkRetries: 3,
			Restartable:     true,
		},
	}
}

// Load reads the file at path, decoding over Default() so absent keys keep
// their defaults. The storage DSN is env-expanded.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	cfg.Storage.DSN = os.ExpandEnv(cfg.Storage.DSN)
	return cfg, nil
}

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding of Validate. Path addresses the offending key with
// JSON-ish dots, e.g. "storage.dialect".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var knownDialects = map[string]bool{
	"postgres": true,
	"mssql":    true,
	"sqlite":   true,
}

// Validate reports configuration problems. Errors make the config unusable;
// warnings flag suspicious but workable values.
func Validate(cfg Config) []Issue {
	var issues []Issue
	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if cfg.Job == "" {
		errf("job", "must not be empty")
	}
	if cfg.Source.File.Path == "" {
		errf("source.file.path", "must not be empty")
	}
	if len([]rune(cfg.Feed.Comma)) > 1 {
		errf("feed.comma", "must be a single character, got %q", cfg.Feed.Comma)
	}
	if cfg.Storage.Dialect == "" {
		errf("storage.dialect", "must not be empty")
	} else if !knownDialects[cfg.Storage.Dialect] {
		warnf("storage.dialect", "unknown dialect %q; the backend must be registered at build time", cfg.Storage.Dialect)
	}
	if cfg.Storage.DSN == "" {
		errf("storage.dsn", "must not be empty")
	}
	if cfg.Warehouse.TablePrefix == "" {
		errf("warehouse.table_prefix", "must not be empty")
	}
	if cfg.Runtime.ChunkSize < 0 {
		errf("runtime.chunk_size", "must not be negative")
	} else if cfg.Runtime.ChunkSize == 0 {
		warnf("runtime.chunk_size", "0 falls back to the default of 100")
	}
	if cfg.Runtime.MaxChunkRetries < 0 {
		errf("runtime.max_chunk_retries", "must not be negative")
	}
	return issues
}
