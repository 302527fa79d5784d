package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/carecircle/carecircle/internal/platform/filestore"
	"github.com/google/uuid"
)

type appointmentRepoCSV struct {
	store *filestore.Store
}

// NewAppointmentRepoCSV wraps a store opened with Schema.
func NewAppointmentRepoCSV(store *filestore.Store) AppointmentRepository {
	return &appointmentRepoCSV{store: store}
}

func (r *appointmentRepoCSV) Save(_ context.Context, a *Appointment) (uuid.UUID, error) {
	raw, err := r.store.Append(a.Fields())
	if err != nil {
		return uuid.Nil, fmt.Errorf("save appointment: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save appointment: stored id %q: %w", raw, err)
	}
	a.ID = id
	return id, nil
}

func (r *appointmentRepoCSV) DeleteByID(_ context.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	removed, err := r.store.DeleteByID(id.String())
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}
	return removed, nil
}

func (r *appointmentRepoCSV) FindByPatient(_ context.Context, patientID string) ([]*Appointment, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}
	rows, err := r.store.Scan(PatientColumn, func(k string) bool {
		return strings.EqualFold(strings.TrimSpace(k), patientID)
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return decodeRows(rows), nil
}

func (r *appointmentRepoCSV) FindAll(_ context.Context) ([]*Appointment, error) {
	rows, err := r.store.Scan(0, nil)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return decodeRows(rows), nil
}

func decodeRows(rows [][]string) []*Appointment {
	out := make([]*Appointment, 0, len(rows))
	for _, row := range rows {
		if a := FromFields(row); a != nil {
			out = append(out, a)
		}
	}
	return out
}
