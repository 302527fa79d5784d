package scheduling

import (
	"context"
	"sort"
	"time"
)

// Upcoming lists the appointments visible through d that start after now,
// earliest first. Appointments without a time are skipped.
func Upcoming(ctx context.Context, d CalendarDispatch, now time.Time) ([]*Appointment, error) {
	all, err := d.ListAllAppointments(ctx)
	if err != nil {
		return nil, err
	}
	return after(all, now), nil
}

func after(appts []*Appointment, now time.Time) []*Appointment {
	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		if a.Time != nil && a.Time.After(now) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(*out[j].Time) })
	return out
}
