package vitals

import "context"

// Repository reads and writes vitals rows.
type Repository interface {
	// Submit stores a raw client row with a server timestamp appended and
	// returns the destination file name.
	Submit(ctx context.Context, raw string) (string, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Record, error)
	ListAll(ctx context.Context) ([]*Record, error)
}
