package admin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Preview limits. Previews are diagnostic, not an export path.
const (
	DefaultPreviewLimit = 20
	MaxPreviewLimit     = 50
)

// PreviewFunc returns up to limit rows of one storage table.
type PreviewFunc func(ctx context.Context, limit int) (interface{}, error)

// Service owns the inspection surface: named table previews
// registered by main, plus the audit trail.
type Service struct {
	mu       sync.RWMutex
	previews map[string]PreviewFunc
	audit    AuditRepository
	logger   zerolog.Logger
}

func NewService(audit AuditRepository, logger zerolog.Logger) *Service {
	return &Service{
		previews: make(map[string]PreviewFunc),
		audit:    audit,
		logger:   logger,
	}
}

// RegisterPreview binds a table name to its preview source.
func (s *Service) RegisterPreview(name string, fn PreviewFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[name] = fn
}

// Tables lists the registered preview names, sorted.
func (s *Service) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.previews))
	for name := range s.previews {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preview returns a bounded row preview of one table.
func (s *Service) Preview(ctx context.Context, name string, limit int) (interface{}, error) {
	s.mu.RLock()
	fn, ok := s.previews[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %s not found", name)
	}
	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if limit > MaxPreviewLimit {
		limit = MaxPreviewLimit
	}
	return fn(ctx, limit)
}

// Record stores one audit event. Audit failures are logged, never
// surfaced to the caller.
func (s *Service) Record(ctx context.Context, ev *AuditEvent) {
	if err := s.audit.Insert(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("endpoint", ev.Endpoint).Msg("audit insert failed")
		return
	}
	s.logger.Info().
		Str("endpoint", ev.Endpoint).
		Str("client_ip", ev.ClientIP).
		Str("action", ev.Action).
		Msg("admin access")
}

// Audit lists recent audit events, newest first.
func (s *Service) Audit(ctx context.Context, limit int) ([]*AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	return s.audit.List(ctx, limit)
}
