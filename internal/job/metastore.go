package job

import (
	"context"
	"fmt"
	"time"

	"priceimporter/internal/storage"
)

// SQLStore is a MetadataStore on the warehouse backend. Table names carry a
// configurable prefix (default "batch_") so metadata can share a database
// with the warehouse or live in its own schema namespace.
type SQLStore struct {
	repo   storage.Repository
	prefix string
}

func NewSQLStore(repo storage.Repository, prefix string) *SQLStore {
	if prefix == "" {
		prefix = "batch_"
	}
	return &SQLStore{repo: repo, prefix: prefix}
}

func (s *SQLStore) instanceTable() string  { return s.prefix + "job_instance" }
func (s *SQLStore) executionTable() string { return s.prefix + "job_execution" }
func (s *SQLStore) instanceSeq() string    { return s.prefix + "job_instance_seq" }
func (s *SQLStore) executionSeq() string   { return s.prefix + "job_execution_seq" }

// executionColumns is the column order used by every execution read/write.
var executionColumns = []string{
	"id", "job_instance_id", "status",
	"read_count", "skip_count", "fact_count",
	"start_time", "end_time", "exit_message",
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	tables := []storage.TableSpec{
		{
			Name:       s.instanceTable(),
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "job_name", Type: "varchar(100)"},
				{Name: "job_key", Type: "varchar(2000)"},
			},
			Unique: [][]string{{"job_name", "job_key"}},
		},
		{
			Name:       s.executionTable(),
			PrimaryKey: "id",
			Columns: []storage.ColumnSpec{
				{Name: "job_instance_id", Type: "bigint", References: s.instanceTable() + "(id)"},
				{Name: "status", Type: "varchar(20)"},
				{Name: "read_count", Type: "bigint"},
				{Name: "skip_count", Type: "bigint"},
				{Name: "fact_count", Type: "bigint"},
				{Name: "start_time", Type: "varchar(40)"},
				{Name: "end_time", Type: "varchar(40)", Nullable: true},
				{Name: "exit_message", Type: "varchar(2000)", Nullable: true},
			},
		},
	}
	if err := s.repo.EnsureTables(ctx, tables); err != nil {
		return err
	}
	return s.repo.EnsureSequences(ctx, []string{s.instanceSeq(), s.executionSeq()})
}

func (s *SQLStore) FindOrCreateInstance(ctx context.Context, jobName, jobKey string) (int64, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	keyColumns := []string{"job_name", "job_key"}
	keyValues := []any{jobName, jobKey}

	id, found, err := tx.SelectID(ctx, s.instanceTable(), keyColumns, keyValues)
	if err != nil {
		return 0, err
	}
	if !found {
		id, err = tx.NextSequence(ctx, s.instanceSeq())
		if err != nil {
			return 0, err
		}
		err = tx.Insert(ctx, s.instanceTable(),
			[]string{"id", "job_name", "job_key"}, []any{id, jobName, jobKey})
		if storage.IsUniqueViolation(err) {
			// Another launcher created the instance first; use its row.
			id, found, err = tx.SelectID(ctx, s.instanceTable(), keyColumns, keyValues)
			if err == nil && !found {
				err = fmt.Errorf("job instance %q vanished after unique violation", jobName)
			}
		}
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// LastExecution returns the most recent execution of the instance, or nil
// when the instance has never run.
func (s *SQLStore) LastExecution(ctx context.Context, instanceID int64) (*Execution, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Select(ctx, s.executionTable(), executionColumns,
		[]string{"job_instance_id"}, []any{instanceID})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	var last *Execution
	for _, row := range rows {
		e, err := scanExecution(row)
		if err != nil {
			return nil, err
		}
		if last == nil || e.ID > last.ID {
			last = e
		}
	}
	return last, nil
}

// CreateExecution registers a new STARTED execution. It fails with
// ErrAlreadyRunning while another execution of the instance is STARTED. The
// check and the insert share one transaction, which serialises launchers in
// one process; under read-committed isolation two separate processes can
// both pass the check, so the deployment model is one importer process per
// metadata database.
func (s *SQLStore) CreateExecution(ctx context.Context, instanceID int64, readCount, skipCount, factCount int64) (*Execution, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	running, err := tx.Select(ctx, s.executionTable(), []string{"id"},
		[]string{"job_instance_id", "status"}, []any{instanceID, string(StatusStarted)})
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return nil, ErrAlreadyRunning
	}

	id, err := tx.NextSequence(ctx, s.executionSeq())
	if err != nil {
		return nil, err
	}

	exec := &Execution{
		ID:         id,
		InstanceID: instanceID,
		Status:     StatusStarted,
		ReadCount:  readCount,
		SkipCount:  skipCount,
		FactCount:  factCount,
		StartTime:  time.Now().UTC(),
	}
	err = tx.Insert(ctx, s.executionTable(), executionColumns, []any{
		exec.ID, exec.InstanceID, string(exec.Status),
		exec.ReadCount, exec.SkipCount, exec.FactCount,
		exec.StartTime.Format(time.RFC3339Nano), "", "",
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return exec, nil
}

func (s *SQLStore) UpdateExecution(ctx context.Context, exec *Execution) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	endTime := ""
	if !exec.EndTime.IsZero() {
		endTime = exec.EndTime.Format(time.RFC3339Nano)
	}
	err = tx.Update(ctx, s.executionTable(),
		[]string{"status", "read_count", "skip_count", "fact_count", "end_time", "exit_message"},
		[]any{string(exec.Status), exec.ReadCount, exec.SkipCount, exec.FactCount, endTime, exec.ExitMessage},
		[]string{"id"}, []any{exec.ID})
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// scanExecution decodes one execution row. Column value types vary by
// backend driver, so the helpers normalise them.
func scanExecution(row []any) (*Execution, error) {
	if len(row) != len(executionColumns) {
		return nil, fmt.Errorf("execution row has %d columns, want %d", len(row), len(executionColumns))
	}
	e := &Execution{
		ID:          asInt64(row[0]),
		InstanceID:  asInt64(row[1]),
		Status:      Status(asString(row[2])),
		ReadCount:   asInt64(row[3]),
		SkipCount:   asInt64(row[4]),
		FactCount:   asInt64(row[5]),
		ExitMessage: asString(row[8]),
	}
	var err error
	if e.StartTime, err = asTime(row[6]); err != nil {
		return nil, err
	}
	if e.EndTime, err = asTime(row[7]); err != nil {
		return nil, err
	}
	return e, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	}
	return 0
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return ""
}

func asTime(v any) (time.Time, error) {
	s := asString(v)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse execution time %q: %w", s, err)
	}
	return t, nil
}
