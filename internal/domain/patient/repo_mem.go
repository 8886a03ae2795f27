package patient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a thread-safe in-memory dataset. The Patients,
// Visits, Inventory and AnalysisStates views implement the repository
// interfaces over the shared store, so a visit insert updates the
// owning patient's latest-visit timestamp atomically. It backs tests
// and the --in-memory serve mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	patients map[string]*Patient
	visits   map[string]*Visit
	products map[string]*Product
	states   map[string]*AnalysisState
	// ordered keys for deterministic listing
	patientOrder []string
	visitOrder   []string
	productOrder []string
}

func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{}
	s.reset()
	return s
}

func (s *InMemoryStore) reset() {
	s.patients = make(map[string]*Patient)
	s.visits = make(map[string]*Visit)
	s.products = make(map[string]*Product)
	s.states = make(map[string]*AnalysisState)
	s.patientOrder = nil
	s.visitOrder = nil
	s.productOrder = nil
}

// Reset clears all stored data. Tests use it between cases.
func (s *InMemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// Patients returns the PatientRepository view of the store.
func (s *InMemoryStore) Patients() PatientRepository { return patientView{s} }

// Visits returns the VisitRepository view of the store.
func (s *InMemoryStore) Visits() VisitRepository { return visitView{s} }

// Inventory returns the InventoryRepository view of the store.
func (s *InMemoryStore) Inventory() InventoryRepository { return inventoryView{s} }

// AnalysisStates returns the AnalysisStateRepository view of the store.
func (s *InMemoryStore) AnalysisStates() AnalysisStateRepository { return stateView{s} }

type patientView struct{ s *InMemoryStore }

func clonePatient(p *Patient) *Patient {
	cp := *p
	return &cp
}

func (v patientView) Upsert(_ context.Context, p *Patient) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[p.ID]; !ok {
		s.patientOrder = append(s.patientOrder, p.ID)
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
	}
	p.UpdatedAt = time.Now().UTC()
	s.patients[p.ID] = clonePatient(p)
	return nil
}

func (v patientView) GetByID(_ context.Context, id string) (*Patient, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s not found", id)
	}
	return clonePatient(p), nil
}

func (v patientView) Search(_ context.Context, prefix string, limit int) ([]*Patient, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Patient
	for _, id := range s.patientOrder {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		out = append(out, clonePatient(s.patients[id]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (v patientView) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.patientOrder)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Patient, 0, end-offset)
	for _, id := range s.patientOrder[offset:end] {
		out = append(out, clonePatient(s.patients[id]))
	}
	return out, total, nil
}

type visitView struct{ s *InMemoryStore }

func (v visitView) Create(_ context.Context, vis *Visit) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visits[vis.ID]; ok {
		return fmt.Errorf("visit %s already exists", vis.ID)
	}
	cp := *vis
	s.visits[vis.ID] = &cp
	s.visitOrder = append(s.visitOrder, vis.ID)
	if p, ok := s.patients[vis.PatientID]; ok {
		if p.LatestVisitAt == nil || vis.At.After(*p.LatestVisitAt) {
			at := vis.At
			p.LatestVisitAt = &at
		}
	}
	return nil
}

func (v visitView) GetByID(_ context.Context, id string) (*Visit, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	vis, ok := s.visits[id]
	if !ok {
		return nil, fmt.Errorf("visit %s not found", id)
	}
	cp := *vis
	return &cp, nil
}

func (v visitView) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Visit, int, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*Visit
	for _, id := range s.visitOrder {
		if s.visits[id].PatientID == patientID {
			cp := *s.visits[id]
			all = append(all, &cp)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].At.After(all[j].At) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (v visitView) Latest(ctx context.Context, patientID string) (*Visit, error) {
	visits, _, err := v.ListByPatient(ctx, patientID, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(visits) == 0 {
		return nil, fmt.Errorf("no visits for patient %s", patientID)
	}
	return visits[0], nil
}

type inventoryView struct{ s *InMemoryStore }

func (v inventoryView) Upsert(_ context.Context, p *Product) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.SKU]; !ok {
		s.productOrder = append(s.productOrder, p.SKU)
	}
	cp := *p
	s.products[p.SKU] = &cp
	return nil
}

func (v inventoryView) GetBySKU(_ context.Context, sku string) (*Product, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok {
		return nil, fmt.Errorf("product %s not found", sku)
	}
	cp := *p
	return &cp, nil
}

func (v inventoryView) List(_ context.Context) ([]*Product, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Product, 0, len(s.productOrder))
	for _, sku := range s.productOrder {
		cp := *s.products[sku]
		out = append(out, &cp)
	}
	return out, nil
}

type stateView struct{ s *InMemoryStore }

func (v stateView) Upsert(_ context.Context, st *AnalysisState) error {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	cp := *st
	s.states[st.PatientID] = &cp
	return nil
}

func (v stateView) Get(_ context.Context, patientID string) (*AnalysisState, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[patientID]
	if !ok {
		return nil, fmt.Errorf("analysis state for %s not found", patientID)
	}
	cp := *st
	return &cp, nil
}

func (v stateView) List(_ context.Context) ([]*AnalysisState, error) {
	s := v.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*AnalysisState, 0, len(ids))
	for _, id := range ids {
		cp := *s.states[id]
		out = append(out, &cp)
	}
	return out, nil
}
