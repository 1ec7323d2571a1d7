// Package job drives batches of composite records through the importer with
// durable progress checkpoints and restart semantics.
package job

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"priceimporter/internal/record"
)

// Status of one job execution.
//
// State machine:
//
//	CREATED -> STARTED -> (COMPLETED | FAILED | STOPPED)
//
// After each committed chunk the execution row is checkpointed; a restart of a
// FAILED or STOPPED execution resumes at the checkpoint offset.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
)

// Launch refusals. All three map to exit code 3.
var (
	ErrAlreadyRunning    = errors.New("job: an execution of this instance is already running")
	ErrAlreadyComplete   = errors.New("job: this job instance already completed")
	ErrRestartNotAllowed = errors.New("job: restart not allowed for this job")
)

// Execution is one run of a job instance. Counts are cumulative across
// restarts of the same instance, so ReadCount doubles as the restart offset.
type Execution struct {
	ID          int64
	InstanceID  int64
	Status      Status
	ReadCount   int64
	SkipCount   int64
	FactCount   int64
	StartTime   time.Time
	EndTime     time.Time
	ExitMessage string
}

// RecordSource is a pull-based stream of composite records.
//
// Next returns io.EOF at end of stream. A consumed-but-unusable record is
// returned with a *record.ValidationError so the driver can account for it in
// the skip count; any other error is fatal to the source.
type RecordSource interface {
	Next(ctx context.Context) (record.Composite, error)
}

// SourceFactory opens a fresh source from the beginning of the stream. The
// driver reopens on restart and discards up to the checkpoint offset.
type SourceFactory func(ctx context.Context) (RecordSource, func() error, error)

// Logger is the minimal logging interface used by the driver and launcher.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// MetadataStore persists job instances and executions. Implementations must
// provide at-most-one-writer semantics per running instance: CreateExecution
// fails with ErrAlreadyRunning while a STARTED execution exists.
type MetadataStore interface {
	EnsureSchema(ctx context.Context) error
	FindOrCreateInstance(ctx context.Context, jobName, jobKey string) (int64, error)
	LastExecution(ctx context.Context, instanceID int64) (*Execution, error)
	CreateExecution(ctx context.Context, instanceID int64, readCount, skipCount, factCount int64) (*Execution, error)
	UpdateExecution(ctx context.Context, exec *Execution) error
}

// keyEscaper keeps the pair and list separators unambiguous when they occur
// inside a parameter key or value, so distinct parameter maps never render to
// the same canonical key.
var keyEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "=", `\=`)

// CanonicalKey renders job parameters into the stable string that, together
// with the job name, identifies a job instance. Order of the input map does
// not matter.
func CanonicalKey(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(keyEscaper.Replace(k))
		b.WriteString("=")
		b.WriteString(keyEscaper.Replace(params[k]))
	}
	return b.String()
}
