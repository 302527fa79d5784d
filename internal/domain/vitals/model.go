package vitals

import (
	"strconv"
	"strings"
	"time"

	"github.com/carecircle/carecircle/internal/platform/csvline"
	"github.com/carecircle/carecircle/internal/platform/filestore"
)

// Header is the current column layout of the vitals file.
var Header = []string{
	"patientId", "patientName", "heartRateBpm", "bpSystolic", "bpDiastolic",
	"temperatureC", "mood", "dietNotes", "weightKg", "submittedAt",
}

// Schema is the filestore layout for vitals. Rows carry no generated id; the
// patient id in column 0 identifies the subject.
var Schema = filestore.Schema{
	Name:     "vitals",
	Header:   Header,
	IDColumn: -1,
}

// PatientColumn is the column holding the subject's patient id.
const PatientColumn = 0

// Record is one vitals submission. Numeric fields and SubmittedAt are nil when
// the row left them blank or unparsable.
type Record struct {
	PatientID    string     `json:"patient_id"`
	PatientName  string     `json:"patient_name,omitempty"`
	HeartRateBpm *int       `json:"heart_rate_bpm,omitempty"`
	BPSystolic   *int       `json:"bp_systolic,omitempty"`
	BPDiastolic  *int       `json:"bp_diastolic,omitempty"`
	TemperatureC *float64   `json:"temperature_c,omitempty"`
	Mood         string     `json:"mood,omitempty"`
	DietNotes    string     `json:"diet_notes,omitempty"`
	WeightKg     *float64   `json:"weight_kg,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
}

// Fields encodes r in the current column order.
func (r *Record) Fields() []string {
	ts := ""
	if r.SubmittedAt != nil {
		ts = r.SubmittedAt.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		r.PatientID, r.PatientName,
		fmtInt(r.HeartRateBpm), fmtInt(r.BPSystolic), fmtInt(r.BPDiastolic),
		fmtFloat(r.TemperatureC), r.Mood, r.DietNotes, fmtFloat(r.WeightKg),
		ts,
	}
}

// schemaVersion is one historical layout of the vitals file.
type schemaVersion struct {
	name    string
	columns int
	decode  func(c []string) *Record
}

// schemaVersions lists the known layouts, widest first. A row is decoded with
// the first version whose column count it reaches; rows shorter than every
// version fall back to the narrowest, with missing trailing fields absent.
var schemaVersions = []schemaVersion{
	{
		// v2 added patientName as column 1.
		name:    "v2",
		columns: 10,
		decode: func(c []string) *Record {
			return &Record{
				PatientID:    get(c, 0),
				PatientName:  get(c, 1),
				HeartRateBpm: parseInt(get(c, 2)),
				BPSystolic:   parseInt(get(c, 3)),
				BPDiastolic:  parseInt(get(c, 4)),
				TemperatureC: parseFloat(get(c, 5)),
				Mood:         get(c, 6),
				DietNotes:    get(c, 7),
				WeightKg:     parseFloat(get(c, 8)),
				SubmittedAt:  parseTime(get(c, 9)),
			}
		},
	},
	{
		name:    "v1",
		columns: 9,
		decode: func(c []string) *Record {
			return &Record{
				PatientID:    get(c, 0),
				HeartRateBpm: parseInt(get(c, 1)),
				BPSystolic:   parseInt(get(c, 2)),
				BPDiastolic:  parseInt(get(c, 3)),
				TemperatureC: parseFloat(get(c, 4)),
				Mood:         get(c, 5),
				DietNotes:    get(c, 6),
				WeightKg:     parseFloat(get(c, 7)),
				SubmittedAt:  parseTime(get(c, 8)),
			}
		},
	},
}

// FromFields decodes a stored row. It returns nil for a row without fields.
func FromFields(c []string) *Record {
	if len(c) == 0 {
		return nil
	}
	for _, v := range schemaVersions {
		if len(c) >= v.columns {
			return v.decode(c)
		}
	}
	return schemaVersions[len(schemaVersions)-1].decode(c)
}

// VersionOf names the schema version FromFields would use for c.
func VersionOf(c []string) string {
	for _, v := range schemaVersions {
		if len(c) >= v.columns {
			return v.name
		}
	}
	return schemaVersions[len(schemaVersions)-1].name
}

func get(c []string, i int) string { return strings.TrimSpace(csvline.Field(c, i)) }

func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func fmtInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func fmtFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
