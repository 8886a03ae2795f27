package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmassist/pharmassist/internal/platform/db"
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

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository { return &auditRepoPG{pool: pool} }

func (r *auditRepoPG) Insert(ctx context.Context, ev *AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO admin_audit_events (ts, endpoint, method, client_ip, action, reason, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		ev.At, ev.Endpoint, ev.Method, ev.ClientIP, ev.Action, ev.Reason, meta)
	if err := row.Scan(&ev.ID); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *auditRepoPG) List(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, ts, endpoint, method, client_ip, action, reason, meta
		FROM admin_audit_events
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var meta []byte
		if err := rows.Scan(&ev.ID, &ev.At, &ev.Endpoint, &ev.Method, &ev.ClientIP, &ev.Action, &ev.Reason, &meta); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
