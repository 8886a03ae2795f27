package run

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmassist/pharmassist/internal/platform/db"
	"github.com/pharmassist/pharmassist/internal/platform/eventbus"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Run Repository ===========

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

const runCols = `id, kind, case_ref, patient_id, visit_id, language, status,
	input_hash, input_len, artifacts, policy_violations, error_kind,
	created_at, updated_at, finalized_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var artifacts, violations []byte
	err := row.Scan(&r.ID, &r.Kind, &r.CaseRef, &r.PatientID, &r.VisitID, &r.Language, &r.Status,
		&r.InputHash, &r.InputLen, &artifacts, &violations, &r.ErrorKind,
		&r.CreatedAt, &r.UpdatedAt, &r.FinalizedAt)
	if err != nil {
		return nil, err
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &r.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	if len(violations) > 0 {
		if err := json.Unmarshal(violations, &r.PolicyViolations); err != nil {
			return nil, fmt.Errorf("decode policy violations: %w", err)
		}
	}
	return &r, nil
}

func encodeRun(r *Run) (artifacts, violations []byte, err error) {
	artifacts, err = json.Marshal(r.Artifacts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode artifacts: %w", err)
	}
	violations, err = json.Marshal(r.PolicyViolations)
	if err != nil {
		return nil, nil, fmt.Errorf("encode policy violations: %w", err)
	}
	if r.PolicyViolations == nil {
		violations = []byte("[]")
	}
	return artifacts, violations, nil
}

func (repo *runRepoPG) Create(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}
	artifacts, violations, err := encodeRun(r)
	if err != nil {
		return err
	}
	_, err = conn(ctx, repo.pool).Exec(ctx, `
		INSERT INTO runs (id, kind, case_ref, patient_id, visit_id, language, status,
			input_hash, input_len, artifacts, policy_violations, error_kind)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		r.ID, r.Kind, r.CaseRef, r.PatientID, r.VisitID, r.Language, r.Status,
		r.InputHash, r.InputLen, artifacts, violations, r.ErrorKind)
	return err
}

func (repo *runRepoPG) GetByID(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(conn(ctx, repo.pool).QueryRow(ctx, `SELECT `+runCols+` FROM runs WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return r, err
}

func (repo *runRepoPG) Update(ctx context.Context, r *Run) error {
	cur, err := repo.GetByID(ctx, r.ID)
	if err != nil {
		return err
	}
	if cur.Status != r.Status && !cur.Status.CanTransition(r.Status) {
		return fmt.Errorf("illegal status transition %s -> %s", cur.Status, r.Status)
	}
	artifacts, violations, err := encodeRun(r)
	if err != nil {
		return err
	}
	_, err = conn(ctx, repo.pool).Exec(ctx, `
		UPDATE runs SET status=$2, artifacts=$3, policy_violations=$4, error_kind=$5,
			finalized_at=$6, updated_at=NOW()
		WHERE id = $1`,
		r.ID, r.Status, artifacts, violations, r.ErrorKind, r.FinalizedAt)
	return err
}

func (repo *runRepoPG) List(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := conn(ctx, repo.pool).QueryRow(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, repo.pool).Query(ctx,
		`SELECT `+runCols+` FROM runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectRuns(rows, total)
}

func (repo *runRepoPG) ListByPatient(ctx context.Context, patientID, kind string, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := conn(ctx, repo.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM runs WHERE patient_id = $1 AND ($2 = '' OR kind = $2)`,
		patientID, kind).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, repo.pool).Query(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE patient_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		patientID, kind, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return collectRuns(rows, total)
}

func (repo *runRepoPG) LatestByPatient(ctx context.Context, patientID, kind string) (*Run, error) {
	r, err := scanRun(conn(ctx, repo.pool).QueryRow(ctx, `
		SELECT `+runCols+` FROM runs
		WHERE patient_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC LIMIT 1`, patientID, kind))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func collectRuns(rows pgx.Rows, total int) ([]*Run, int, error) {
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// =========== Event Repository ===========

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository { return &eventRepoPG{pool: pool} }

// AppendEvent assigns the next per-run sequence number inside a
// transaction so concurrent writers cannot produce gaps or duplicates.
func (repo *eventRepoPG) AppendEvent(ctx context.Context, ev *eventbus.Event) error {
	tx, err := repo.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO run_events (run_id, seq, type, payload)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3 FROM run_events WHERE run_id = $1
		RETURNING seq, at`,
		ev.RunID, ev.Type, []byte(ev.Payload)).Scan(&ev.Seq, &ev.At)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return tx.Commit(ctx)
}

func (repo *eventRepoPG) ListAfter(ctx context.Context, runID string, afterSeq int64, limit int) ([]eventbus.Event, error) {
	rows, err := conn(ctx, repo.pool).Query(ctx, `
		SELECT run_id, seq, type, payload, at FROM run_events
		WHERE run_id = $1 AND seq > $2 ORDER BY seq LIMIT $3`,
		runID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []eventbus.Event
	for rows.Next() {
		var ev eventbus.Event
		var payload []byte
		if err := rows.Scan(&ev.RunID, &ev.Seq, &ev.Type, &payload, &ev.At); err != nil {
			return nil, err
		}
		ev.Payload = payload
		out = append(out, ev)
	}
	return out, rows.Err()
}
