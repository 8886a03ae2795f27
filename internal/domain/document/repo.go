package document

import "context"

// DocumentRepository stores upload metadata. No implementation ever
// stores document text.
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id string) (*Document, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Document, error)
}
