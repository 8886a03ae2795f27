package document

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryDocumentRepo keeps upload metadata in process memory.
type InMemoryDocumentRepo struct {
	mu    sync.RWMutex
	docs  map[string]*Document
	order []string
}

func NewInMemoryDocumentRepo() *InMemoryDocumentRepo {
	return &InMemoryDocumentRepo{docs: make(map[string]*Document)}
}

func (r *InMemoryDocumentRepo) Create(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[doc.ID]; ok {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	clone := *doc
	r.docs[doc.ID] = &clone
	r.order = append(r.order, doc.ID)
	return nil
}

func (r *InMemoryDocumentRepo) GetByID(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	clone := *doc
	return &clone, nil
}

func (r *InMemoryDocumentRepo) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Document
	skipped := 0
	// newest first
	for i := len(r.order) - 1; i >= 0; i-- {
		doc := r.docs[r.order[i]]
		if doc.PatientID != patientID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		clone := *doc
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Reset drops all stored documents. Test isolation only.
func (r *InMemoryDocumentRepo) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = make(map[string]*Document)
	r.order = nil
}
