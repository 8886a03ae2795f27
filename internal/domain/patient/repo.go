package patient

import "context"

type PatientRepository interface {
	Upsert(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id string) (*Patient, error)
	Search(ctx context.Context, prefix string, limit int) ([]*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id string) (*Visit, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Visit, int, error)
	Latest(ctx context.Context, patientID string) (*Visit, error)
}

type InventoryRepository interface {
	Upsert(ctx context.Context, p *Product) error
	GetBySKU(ctx context.Context, sku string) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
}

type AnalysisStateRepository interface {
	Upsert(ctx context.Context, s *AnalysisState) error
	Get(ctx context.Context, patientID string) (*AnalysisState, error)
	List(ctx context.Context) ([]*AnalysisState, error)
}
