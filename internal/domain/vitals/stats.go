package vitals

import (
	"context"
	"time"
)

// Average is the mean of the non-absent values of one measurement.
type Average struct {
	Mean    float64 `json:"mean"`
	Samples int     `json:"samples"`
}

// Valid reports whether at least one value contributed.
func (a Average) Valid() bool { return a.Samples > 0 }

func (a *Average) add(v float64) {
	a.Samples++
	a.Mean += (v - a.Mean) / float64(a.Samples)
}

// Summary aggregates a patient's records for one calendar month.
type Summary struct {
	PatientID    string     `json:"patient_id"`
	Year         int        `json:"year"`
	Month        time.Month `json:"month"`
	Records      int        `json:"records"`
	HeartRateBpm Average    `json:"heart_rate_bpm"`
	BPSystolic   Average    `json:"bp_systolic"`
	BPDiastolic  Average    `json:"bp_diastolic"`
	TemperatureC Average    `json:"temperature_c"`
	WeightKg     Average    `json:"weight_kg"`
}

// Summarize averages records submitted in year/month as seen in loc.
// Records without a submission time are ignored.
func Summarize(patientID string, records []*Record, year int, month time.Month, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	s := Summary{PatientID: patientID, Year: year, Month: month}
	for _, r := range records {
		if r.SubmittedAt == nil {
			continue
		}
		at := r.SubmittedAt.In(loc)
		if at.Year() != year || at.Month() != month {
			continue
		}
		s.Records++
		if r.HeartRateBpm != nil {
			s.HeartRateBpm.add(float64(*r.HeartRateBpm))
		}
		if r.BPSystolic != nil {
			s.BPSystolic.add(float64(*r.BPSystolic))
		}
		if r.BPDiastolic != nil {
			s.BPDiastolic.add(float64(*r.BPDiastolic))
		}
		if r.TemperatureC != nil {
			s.TemperatureC.add(*r.TemperatureC)
		}
		if r.WeightKg != nil {
			s.WeightKg.add(*r.WeightKg)
		}
	}
	return s
}

// MonthlySummary reads a patient's records through d and summarizes one
// month. Going through a scoped dispatch keeps the roster rules in force.
func MonthlySummary(ctx context.Context, d Dispatch, patientID string, year int, month time.Month, loc *time.Location) (Summary, error) {
	records, err := d.ListByPatient(ctx, patientID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(patientID, records, year, month, loc), nil
}
