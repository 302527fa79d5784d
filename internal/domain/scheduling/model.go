package scheduling

import (
	"strconv"
	"strings"
	"time"

	"github.com/carecircle/carecircle/internal/platform/csvline"
	"github.com/carecircle/carecircle/internal/platform/filestore"
	"github.com/google/uuid"
)

// TimeLayout is the wall-clock format of appointmentTimeISO. It carries no
// zone; values are read in the process's local zone.
const TimeLayout = "2006-01-02T15:04:05"

// timeLayouts are accepted when reading appointmentTimeISO. Older files omit
// zero seconds or carry fractional seconds.
var timeLayouts = []string{
	"2006-01-02T15:04",
	TimeLayout,
	"2006-01-02T15:04:05.999999999",
}

// ParseTime reads an appointment wall-clock time in loc, accepting minute,
// second and fractional-second precision.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Header is the column layout of the appointments file.
var Header = []string{
	"id", "patientId", "patientName", "professionalName", "professionalType",
	"appointmentTimeISO", "reason", "durationMinutes", "createdAt",
}

// Schema is the filestore layout for appointments. The store assigns a UUID
// in column 0 when a row is appended without one.
var Schema = filestore.Schema{
	Name:     "appointments",
	Header:   Header,
	IDColumn: 0,
}

// PatientColumn is the column holding the subject's patient id.
const PatientColumn = 1

// Appointment maps to one row of the appointments file.
type Appointment struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        string     `json:"patient_id"`
	PatientName      string     `json:"patient_name,omitempty"`
	ProfessionalName string     `json:"professional_name,omitempty"`
	ProfessionalType string     `json:"professional_type,omitempty"`
	Time             *time.Time `json:"appointment_time,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// Fields encodes a in column order. A zero ID is written blank so the store
// assigns one.
func (a *Appointment) Fields() []string {
	id := ""
	if a.ID != uuid.Nil {
		id = a.ID.String()
	}
	at := ""
	if a.Time != nil {
		at = a.Time.Format(TimeLayout)
	}
	dur := ""
	if a.DurationMinutes != nil {
		dur = strconv.Itoa(*a.DurationMinutes)
	}
	created := ""
	if a.CreatedAt != nil {
		created = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		id, a.PatientID, a.PatientName, a.ProfessionalName, a.ProfessionalType,
		at, a.Reason, dur, created,
	}
}

// FromFields decodes a stored row. Missing or unparsable values are left
// zero. It returns nil for a row without fields.
func FromFields(c []string) *Appointment {
	if len(c) == 0 {
		return nil
	}
	a := &Appointment{
		PatientID:        get(c, 1),
		PatientName:      get(c, 2),
		ProfessionalName: get(c, 3),
		ProfessionalType: get(c, 4),
		Reason:           get(c, 6),
	}
	if id, err := uuid.Parse(get(c, 0)); err == nil {
		a.ID = id
	}
	if s := get(c, 5); s != "" {
		if t, err := ParseTime(s, time.Local); err == nil {
			a.Time = &t
		}
	}
	if s := get(c, 7); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			a.DurationMinutes = &n
		}
	}
	if s := get(c, 8); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			a.CreatedAt = &t
		}
	}
	return a
}

func get(c []string, i int) string { return strings.TrimSpace(csvline.Field(c, i)) }
