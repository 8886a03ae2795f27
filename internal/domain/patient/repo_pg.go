package patient

import (
	"context"
	"encoding/json"
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

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, age, sex, pregnancy_status, chronic_conditions, medications,
	allergies, latest_visit_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Age, &p.Sex, &p.PregnancyStatus, &p.ChronicConditions, &p.Medications,
		&p.Allergies, &p.LatestVisitAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patients (id, age, sex, pregnancy_status, chronic_conditions, medications, allergies, latest_visit_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			age=$2, sex=$3, pregnancy_status=$4, chronic_conditions=$5,
			medications=$6, allergies=$7, latest_visit_at=$8, updated_at=NOW()`,
		p.ID, p.Age, p.Sex, p.PregnancyStatus, p.ChronicConditions, p.Medications, p.Allergies, p.LatestVisitAt)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("patient %s not found", id)
	}
	return p, err
}

func (r *patientRepoPG) Search(ctx context.Context, prefix string, limit int) ([]*Patient, error) {
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id LIKE $1 || '%' ORDER BY id LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPatients(rows)
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectPatients(rows)
	return out, total, err
}

func collectPatients(rows pgx.Rows) ([]*Patient, error) {
	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =========== Visit Repository ===========

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewVisitRepoPG(pool *pgxpool.Pool) VisitRepository { return &visitRepoPG{pool: pool} }

const visitCols = `id, patient_id, at, intake, new_prescriptions`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var intake []byte
	if err := row.Scan(&v.ID, &v.PatientID, &v.At, &intake, &v.NewPrescriptions); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(intake, &v.Intake); err != nil {
		return nil, fmt.Errorf("decode visit intake: %w", err)
	}
	return &v, nil
}

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	intake, err := json.Marshal(v.Intake)
	if err != nil {
		return fmt.Errorf("encode visit intake: %w", err)
	}
	_, err = conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO visits (id, patient_id, at, intake, new_prescriptions)
		VALUES ($1,$2,$3,$4,$5)`,
		v.ID, v.PatientID, v.At, intake, v.NewPrescriptions)
	if err != nil {
		return err
	}
	_, err = conn(ctx, r.pool).Exec(ctx, `
		UPDATE patients SET latest_visit_at = GREATEST(COALESCE(latest_visit_at, $2), $2), updated_at = NOW()
		WHERE id = $1`, v.PatientID, v.At)
	return err
}

func (r *visitRepoPG) GetByID(ctx context.Context, id string) (*Visit, error) {
	v, err := scanVisit(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("visit %s not found", id)
	}
	return v, err
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM visits WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+visitCols+` FROM visits WHERE patient_id = $1 ORDER BY at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func (r *visitRepoPG) Latest(ctx context.Context, patientID string) (*Visit, error) {
	v, err := scanVisit(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+visitCols+` FROM visits WHERE patient_id = $1 ORDER BY at DESC LIMIT 1`, patientID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("no visits for patient %s", patientID)
	}
	return v, err
}

// =========== Inventory Repository ===========

type inventoryRepoPG struct{ pool *pgxpool.Pool }

func NewInventoryRepoPG(pool *pgxpool.Pool) InventoryRepository { return &inventoryRepoPG{pool: pool} }

const productCols = `sku, name, brand, category, ingredients, tags, in_stock, stock_qty`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.SKU, &p.Name, &p.Brand, &p.Category, &p.Ingredients, &p.Tags, &p.InStock, &p.StockQty)
	return &p, err
}

func (r *inventoryRepoPG) Upsert(ctx context.Context, p *Product) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO inventory (sku, name, brand, category, ingredients, tags, in_stock, stock_qty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (sku) DO UPDATE SET
			name=$2, brand=$3, category=$4, ingredients=$5, tags=$6, in_stock=$7, stock_qty=$8`,
		p.SKU, p.Name, p.Brand, p.Category, p.Ingredients, p.Tags, p.InStock, p.StockQty)
	return err
}

func (r *inventoryRepoPG) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	p, err := scanProduct(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+productCols+` FROM inventory WHERE sku = $1`, sku))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("product %s not found", sku)
	}
	return p, err
}

func (r *inventoryRepoPG) List(ctx context.Context) ([]*Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+productCols+` FROM inventory ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =========== Analysis State Repository ===========

type analysisStateRepoPG struct{ pool *pgxpool.Pool }

func NewAnalysisStateRepoPG(pool *pgxpool.Pool) AnalysisStateRepository {
	return &analysisStateRepoPG{pool: pool}
}

func (r *analysisStateRepoPG) Upsert(ctx context.Context, s *AnalysisState) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient_analysis_state (patient_id, status, last_run_id, last_error, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (patient_id) DO UPDATE SET
			status=$2, last_run_id=$3, last_error=$4, updated_at=NOW()`,
		s.PatientID, s.Status, s.LastRunID, s.LastError)
	return err
}

func (r *analysisStateRepoPG) Get(ctx context.Context, patientID string) (*AnalysisState, error) {
	var s AnalysisState
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT patient_id, status, last_run_id, last_error, updated_at
		FROM patient_analysis_state WHERE patient_id = $1`, patientID).
		Scan(&s.PatientID, &s.Status, &s.LastRunID, &s.LastError, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("analysis state for %s not found", patientID)
	}
	return &s, err
}

func (r *analysisStateRepoPG) List(ctx context.Context) ([]*AnalysisState, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT patient_id, status, last_run_id, last_error, updated_at
		FROM patient_analysis_state ORDER BY patient_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*AnalysisState
	for rows.Next() {
		var s AnalysisState
		if err := rows.Scan(&s.PatientID, &s.Status, &s.LastRunID, &s.LastError, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
