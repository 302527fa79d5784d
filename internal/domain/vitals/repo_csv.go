package vitals

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/carecircle/carecircle/internal/platform/csvline"
	"github.com/carecircle/carecircle/internal/platform/filestore"
)

// RowRepo is the filestore-backed Repository. Besides typed records it hands
// out raw rows for the line protocol, which streams them back as stored.
type RowRepo struct {
	store *filestore.Store
	now   func() time.Time
}

var _ Repository = (*RowRepo)(nil)

// NewRowRepo wraps a store opened with Schema.
func NewRowRepo(store *filestore.Store) *RowRepo {
	return &RowRepo{store: store, now: time.Now}
}

// Submit decodes raw, appends the submission timestamp column and writes the
// row. The client is trusted to send columns in file order.
func (r *RowRepo) Submit(_ context.Context, raw string) (string, error) {
	fields := csvline.Split(raw)
	fields = append(fields, r.now().UTC().Format(time.RFC3339Nano))
	if _, err := r.store.Append(fields); err != nil {
		return "", fmt.Errorf("submit vitals: %w", err)
	}
	return filepath.Base(r.store.Path()), nil
}

// Header returns the column names of the vitals file.
func (r *RowRepo) Header() []string { return r.store.Header() }

// Rows returns raw rows whose leading patient id matches patientID
// case-insensitively, or every row when patientID is empty.
func (r *RowRepo) Rows(_ context.Context, patientID string) ([][]string, error) {
	var pred func(string) bool
	if patientID != "" {
		pred = func(k string) bool { return strings.EqualFold(strings.TrimSpace(k), patientID) }
	}
	rows, err := r.store.Scan(PatientColumn, pred)
	if err != nil {
		return nil, fmt.Errorf("list vitals: %w", err)
	}
	return rows, nil
}

// ListByPatient returns the records of one patient; a blank id matches none.
func (r *RowRepo) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, nil
	}
	rows, err := r.Rows(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return decodeRows(rows), nil
}

// ListAll returns every record.
func (r *RowRepo) ListAll(ctx context.Context) ([]*Record, error) {
	rows, err := r.Rows(ctx, "")
	if err != nil {
		return nil, err
	}
	return decodeRows(rows), nil
}

func decodeRows(rows [][]string) []*Record {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		if rec := FromFields(row); rec != nil {
			out = append(out, rec)
		}
	}
	return out
}
