package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"source": {"file": {"path": "feed.csv"}},
		"storage": {"dialect": "sqlite", "dsn": ":memory:"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Job != "price-import" {
		t.Fatalf("Job = %q, want default price-import", cfg.Job)
	}
	if !cfg.Feed.HasHeader || cfg.Feed.Comma != "," || !cfg.Feed.TrimSpace {
		t.Fatalf("Feed defaults = %+v", cfg.Feed)
	}
	if cfg.Warehouse.TablePrefix != "dw" || cfg.Metadata.TablePrefix != "batch_" {
		t.Fatalf("prefix defaults = %q/%q", cfg.Warehouse.TablePrefix, cfg.Metadata.TablePrefix)
	}
	r := cfg.Runtime
	if r.ChunkSize != 100 || !r.SkipInvalid || r.MaxChunkRetries != 3 || !r.Restartable {
		t.Fatalf("Runtime defaults = %+v", r)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"job": "nightly-prices",
		"source": {"file": {"path": "feed.csv"}},
		"feed": {"has_header": false, "comma": ";"},
		"storage": {"dialect": "postgres", "dsn": "postgres://dw"},
		"runtime": {"chunk_size": 500, "skip_invalid": false, "restartable": false}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Job != "nightly-prices" {
		t.Fatalf("Job = %q", cfg.Job)
	}
	if cfg.Feed.HasHeader || cfg.Feed.Comma != ";" {
		t.Fatalf("Feed = %+v", cfg.Feed)
	}
	if cfg.Runtime.ChunkSize != 500 || cfg.Runtime.SkipInvalid || cfg.Runtime.Restartable {
		t.Fatalf("Runtime = %+v", cfg.Runtime)
	}
	// Untouched keys keep defaults.
	if cfg.Runtime.MaxChunkRetries != 3 {
		t.Fatalf("MaxChunkRetries = %d, want default 3", cfg.Runtime.MaxChunkRetries)
	}
}

func TestLoadExpandsDSNEnv(t *testing.T) {
	t.Setenv("TEST_DW_PASSWORD", "hunter2")

	path := writeConfig(t, `{
		"source": {"file": {"path": "feed.csv"}},
		"storage": {"dialect": "postgres", "dsn": "postgres://dw:${TEST_DW_PASSWORD}@db/warehouse"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := "postgres://dw:hunter2@db/warehouse"; cfg.Storage.DSN != want {
		t.Fatalf("DSN = %q, want %q", cfg.Storage.DSN, want)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{"sorce": {"file": {"path": "feed.csv"}}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load = nil error, want unknown-field failure")
	}
}

func TestValidateFlagsMissingEssentials(t *testing.T) {
	t.Parallel()

	issues := Validate(Config{})
	paths := map[string]Severity{}
	for _, iss := range issues {
		paths[iss.Path] = iss.Severity
	}
	for _, want := range []string{"job", "source.file.path", "storage.dialect", "storage.dsn", "warehouse.table_prefix"} {
		if paths[want] != SeverityError {
			t.Errorf("no error issue for %s (got %v)", want, paths[want])
		}
	}
}

func TestValidateCleanConfig(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Source.File.Path = "feed.csv"
	cfg.Storage.Dialect = "sqlite"
	cfg.Storage.DSN = ":memory:"
	if issues := Validate(cfg); len(issues) != 0 {
		t.Fatalf("Validate = %v, want no issues", issues)
	}
}

func TestValidateWarnsOnOddities(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Source.File.Path = "feed.csv"
	cfg.Storage.Dialect = "oracle"
	cfg.Storage.DSN = "oracle://x"
	cfg.Runtime.ChunkSize = 0

	var warnPaths []string
	for _, iss := range Validate(cfg) {
		if iss.Severity != SeverityWarning {
			t.Errorf("unexpected %s issue: %+v", iss.Severity, iss)
			continue
		}
		warnPaths = append(warnPaths, iss.Path)
	}
	joined := strings.Join(warnPaths, ",")
	for _, want := range []string{"storage.dialect", "runtime.chunk_size"} {
		if !strings.Contains(joined, want) {
			t.Errorf("no warning for %s (warnings: %v)", want, warnPaths)
		}
	}
}

func TestValidateRejectsMultiCharComma(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Source.File.Path = "feed.csv"
	cfg.Storage.Dialect = "sqlite"
	cfg.Storage.DSN = ":memory:"
	cfg.Feed.Comma = ",,"

	found := false
	for _, iss := range Validate(cfg) {
		if iss.Path == "feed.comma" && iss.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatal("no error issue for feed.comma")
	}
}
