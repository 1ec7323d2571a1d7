package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"priceimporter/internal/config"
	feedcsv "priceimporter/internal/feed/csv"
	"priceimporter/internal/importer"
	"priceimporter/internal/job"
	"priceimporter/internal/metrics"
	"priceimporter/internal/metrics/datadog"
	"priceimporter/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "priceimporter/internal/storage/all"
)

// main only maps run's result onto the process exit code. os.Exit skips
// deferred calls, so everything that must unwind (final metrics flush,
// connection close) lives inside run.
func main() {
	os.Exit(run(os.Args[1:]))
}

// run loads the importer config, optionally initializes a metrics backend,
// and launches one execution of the import job. Remaining arguments are job
// parameters as key=value pairs; they identify the job instance together with
// the job name.
//
// Exit codes: 0 completed, 1 failed, 2 stopped, 3 launch refused.
func run(args []string) int {
	var (
		cfgPath           string
		metricsBackendFlg string
		validate          bool
	)

	fs := flag.NewFlagSet("priceimporter", flag.ContinueOnError)
	fs.StringVar(&cfgPath, "config", "configs/import.json", "importer config JSON path")
	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := fs.Bool("v", false, "enable verbose logs")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		return 1
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		return 0
	}

	params, err := parseParams(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if _, ok := params["input.file"]; !ok {
		params["input.file"] = cfg.Source.File.Path
	}

	// Decide metrics backend: flag → env → default (none).
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: cfg.Job,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, cfg.Job, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}
	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := storage.New(ctx, storage.Config{
		Dialect: cfg.Storage.Dialect,
		DSN:     cfg.Storage.DSN,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		return 1
	}
	defer repo.Close()

	imp := importer.New(repo, importer.NewSchema(cfg.Warehouse.TablePrefix))
	if err := imp.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ensure warehouse schema: %v\n", err)
		return 1
	}

	store := job.NewSQLStore(repo, cfg.Metadata.TablePrefix)
	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ensure metadata schema: %v\n", err)
		return 1
	}

	driver := &job.Driver{
		Importer:        imp,
		Store:           store,
		ChunkSize:       cfg.Runtime.ChunkSize,
		SkipInvalid:     cfg.Runtime.SkipInvalid,
		MaxChunkRetries: cfg.Runtime.MaxChunkRetries,
		Restartable:     cfg.Runtime.Restartable,
		Logger:          log.Default(),
	}
	launcher := &job.Launcher{Store: store, Driver: driver, Logger: log.Default()}

	// First signal stops between chunks; a second one cancels outright.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		log.Printf("signal received, stopping after the current chunk")
		driver.Stop()
		<-sigs
		log.Printf("second signal received, cancelling")
		cancel()
	}()

	open := feedcsv.FileFactory(cfg.Source.File.Path, feedOptions(cfg.Feed))

	start := time.Now()
	exec, err := launcher.Launch(ctx, cfg.Job, params, open)
	if err != nil {
		log.Printf("job=%s: %v", cfg.Job, err)
	}
	if *verbose && exec != nil {
		log.Printf("job=%s status=%s read=%d skipped=%d facts=%d duration=%s",
			cfg.Job, exec.Status, exec.ReadCount, exec.SkipCount, exec.FactCount,
			time.Since(start).Truncate(time.Millisecond))
	}
	return job.ExitCode(exec, err)
}

func feedOptions(f config.Feed) feedcsv.Options {
	opts := feedcsv.Options{
		HasHeader:  f.HasHeader,
		TrimSpace:  f.TrimSpace,
		LazyQuotes: f.LazyQuotes,
		HeaderMap:  f.HeaderMap,
		Encoding:   f.Encoding,
	}
	for _, r := range f.Comma {
		opts.Comma = r
		break
	}
	return opts
}

// parseParams turns trailing key=value arguments into job parameters.
func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("job parameter %q is not key=value", a)
		}
		params[k] = v
	}
	return params, nil
}
