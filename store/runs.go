package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/ristretto/vm"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Run history
// ---------------------------------------------------------------------------

// Run is one recorded execution.
type Run struct {
	ID        string
	Image     string // image digest, empty when the classes were not stored
	Entry     string
	Status    string
	FaultKind string
	Fault     string
	Result    int32
	HasResult bool
	Stats     vm.Stats
	StartedAt time.Time
	Duration  time.Duration
}

// NewRun describes a finished execution. The ID is assigned by RecordRun.
func NewRun(imageDigest, entry string, started time.Time, status vm.ExitStatus) Run {
	r := Run{
		Image:     imageDigest,
		Entry:     entry,
		Status:    status.Status.String(),
		Result:    status.Result,
		HasResult: status.HasResult,
		Stats:     status.Stats,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if status.Fault != nil {
		r.FaultKind = status.Fault.Kind.String()
		r.Fault = status.Fault.Message
	}
	return r
}

// RecordRun stores r, assigning a fresh ID when it has none.
func (s *Store) RecordRun(r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO runs (id, image, entry, status, fault_kind, fault,
		result, has_result, instructions, invocations, max_depth, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Image, r.Entry, r.Status, r.FaultKind, r.Fault,
		r.Result, r.HasResult, int64(r.Stats.Instructions), int64(r.Stats.Invocations),
		r.Stats.MaxDepth, r.StartedAt.UnixNano(), int64(r.Duration),
	)
	if err != nil {
		return Run{}, fmt.Errorf("recording run: %w", err)
	}
	log.Debugf("recorded run %s: %s %s", r.ID, r.Entry, r.Status)
	return r, nil
}

const runColumns = `id, image, entry, status, fault_kind, fault, result, has_result,
	instructions, invocations, max_depth, started_at, duration_ns`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r                         Run
		instructions, invocations int64
		started, duration         int64
	)
	err := row.Scan(&r.ID, &r.Image, &r.Entry, &r.Status, &r.FaultKind, &r.Fault,
		&r.Result, &r.HasResult, &instructions, &invocations, &r.Stats.MaxDepth,
		&started, &duration)
	if err != nil {
		return Run{}, err
	}
	r.Stats.Instructions = uint64(instructions)
	r.Stats.Invocations = uint64(invocations)
	r.StartedAt = time.Unix(0, started)
	r.Duration = time.Duration(duration)
	return r, nil
}

// Run retrieves a recorded run by ID.
func (s *Store) Run(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return r, nil
}

// Runs returns up to limit runs, newest first. A limit of 0 returns all.
func (s *Store) Runs(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
