package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrPatientRequired is returned when an appointment names no patient.
var ErrPatientRequired = errors.New("patient_id is required")

// CalendarDispatch is the appointment surface shared by the root service and
// its scoped wrappers. Book and cancel report false when nothing was written.
type CalendarDispatch interface {
	BookAppointment(ctx context.Context, a *Appointment) (bool, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (bool, error)
	ListAppointmentsByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	ListAllAppointments(ctx context.Context) ([]*Appointment, error)
}

// Service is the unrestricted CalendarDispatch over a repository.
type Service struct {
	appointments AppointmentRepository
	now          func() time.Time
}

var _ CalendarDispatch = (*Service)(nil)

func NewService(appt AppointmentRepository) *Service {
	return &Service{appointments: appt, now: time.Now}
}

func (s *Service) BookAppointment(ctx context.Context, a *Appointment) (bool, error) {
	if a == nil {
		return false, nil
	}
	a.PatientID = strings.TrimSpace(a.PatientID)
	if a.PatientID == "" {
		return false, ErrPatientRequired
	}
	if a.CreatedAt == nil {
		now := s.now().UTC().Truncate(time.Second)
		a.CreatedAt = &now
	}
	if _, err := s.appointments.Save(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	return s.appointments.DeleteByID(ctx, id)
}

func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}
	return s.appointments.FindByPatient(ctx, patientID)
}

func (s *Service) ListAllAppointments(ctx context.Context) ([]*Appointment, error) {
	return s.appointments.FindAll(ctx)
}

// FindAppointment looks up one appointment visible through d.
func FindAppointment(ctx context.Context, d CalendarDispatch, id uuid.UUID) (*Appointment, error) {
	all, err := d.ListAllAppointments(ctx)
	if err != nil {
		return nil, fmt.Errorf("find appointment %s: %w", id, err)
	}
	for _, a := range all {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}
