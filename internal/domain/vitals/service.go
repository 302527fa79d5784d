package vitals

import (
	"context"
	"strings"
)

// Dispatch is the read API over vitals shared by the root service and the
// scoped wrapper. Ingestion happens only through the record line service.
type Dispatch interface {
	ListByPatient(ctx context.Context, patientID string) ([]*Record, error)
	ListAll(ctx context.Context) ([]*Record, error)
}

// Service is the unscoped root Dispatch.
type Service struct {
	repo Repository
}

var _ Dispatch = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, nil
	}
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListAll(ctx context.Context) ([]*Record, error) {
	return s.repo.ListAll(ctx)
}
