package document

import (
	"context"
	"errors"
	"fmt"

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

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository {
	return &documentRepoPG{pool: pool}
}

const documentCols = "id, patient_id, status, sha256_12, page_count, text_length, redaction_replacements, primary_domain, created_at"

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.Status, &d.SHA256Short, &d.PageCount,
		&d.TextLength, &d.RedactionCount, &d.PrimaryDomain, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *documentRepoPG) Create(ctx context.Context, doc *Document) error {
	row := conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO documents (id, patient_id, status, sha256_12, page_count, text_length, redaction_replacements, primary_domain)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		doc.ID, doc.PatientID, doc.Status, doc.SHA256Short, doc.PageCount,
		doc.TextLength, doc.RedactionCount, doc.PrimaryDomain)
	if err := row.Scan(&doc.CreatedAt); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *documentRepoPG) GetByID(ctx context.Context, id string) (*Document, error) {
	doc, err := scanDocument(conn(ctx, r.pool).QueryRow(ctx,
		"SELECT "+documentCols+" FROM documents WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return doc, nil
}

func (r *documentRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Document, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		"SELECT "+documentCols+" FROM documents WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
