package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	// Save appends a and returns the id it was stored under.
	Save(ctx context.Context, a *Appointment) (uuid.UUID, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	FindByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	FindAll(ctx context.Context) ([]*Appointment, error)
}
