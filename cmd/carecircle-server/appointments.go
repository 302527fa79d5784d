package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/carecircle/carecircle/internal/domain/scheduling"
)

// parseLocalTime reads --time in the stored layouts, or with a space instead
// of the T.
func parseLocalTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := scheduling.ParseTime(strings.Replace(s, " ", "T", 1), time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want %s", s, scheduling.TimeLayout)
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "Book, cancel and list appointments",
	}

	bookCmd := &cobra.Command{
		Use:   "book <patientId>",
		Short: "Book an appointment for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			appt := &scheduling.Appointment{PatientID: args[0]}
			appt.PatientName, _ = cmd.Flags().GetString("name")
			appt.ProfessionalName, _ = cmd.Flags().GetString("professional")
			appt.ProfessionalType, _ = cmd.Flags().GetString("type")
			appt.Reason, _ = cmd.Flags().GetString("reason")
			if s, _ := cmd.Flags().GetString("time"); s != "" {
				t, err := parseLocalTime(s)
				if err != nil {
					return err
				}
				appt.Time = &t
			}
			if cmd.Flags().Changed("duration") {
				d, _ := cmd.Flags().GetInt("duration")
				appt.DurationMinutes = &d
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			ok, err := a.CalendarFor(scope).BookAppointment(cmd.Context(), appt)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s may not book for %s", scope, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Booked %s.\n", appt.ID)
			return nil
		},
	}
	addScopeFlags(bookCmd)
	bookCmd.Flags().String("name", "", "Patient display name")
	bookCmd.Flags().String("professional", "", "Professional's name")
	bookCmd.Flags().String("type", "", "Professional type, e.g. GP")
	bookCmd.Flags().String("time", "", "Local start time ("+scheduling.TimeLayout+")")
	bookCmd.Flags().String("reason", "", "Reason for the visit")
	bookCmd.Flags().Int("duration", 0, "Duration in minutes")

	cancelCmd := &cobra.Command{
		Use:   "cancel <appointmentId>",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid appointment id: %w", err)
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			ok, err := a.CalendarFor(scope).CancelAppointment(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("appointment %s not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s.\n", id)
			return nil
		},
	}
	addScopeFlags(cancelCmd)

	listCmd := &cobra.Command{
		Use:   "list [patientId]",
		Short: "List appointments visible to the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			d := a.CalendarFor(scope)
			var appts []*scheduling.Appointment
			if len(args) == 1 {
				appts, err = d.ListAppointmentsByPatient(cmd.Context(), args[0])
			} else {
				appts, err = d.ListAllAppointments(cmd.Context())
			}
			if err != nil {
				return err
			}
			printAppointments(cmd.OutOrStdout(), appts)
			return nil
		},
	}
	addScopeFlags(listCmd)

	upcomingCmd := &cobra.Command{
		Use:   "upcoming",
		Short: "List future appointments, soonest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			appts, err := scheduling.Upcoming(cmd.Context(), a.CalendarFor(scope), time.Now())
			if err != nil {
				return err
			}
			printAppointments(cmd.OutOrStdout(), appts)
			return nil
		},
	}
	addScopeFlags(upcomingCmd)

	cmd.AddCommand(bookCmd, cancelCmd, listCmd, upcomingCmd)
	return cmd
}

func printAppointments(w io.Writer, appts []*scheduling.Appointment) {
	fmt.Fprintf(w, "%-36s %-10s %-19s %-20s %s\n", "ID", "PATIENT", "TIME", "PROFESSIONAL", "REASON")
	for _, a := range appts {
		at := ""
		if a.Time != nil {
			at = a.Time.Format(scheduling.TimeLayout)
		}
		prof := a.ProfessionalName
		if a.ProfessionalType != "" {
			prof += " (" + a.ProfessionalType + ")"
		}
		reason := a.Reason
		if a.DurationMinutes != nil {
			reason += " [" + strconv.Itoa(*a.DurationMinutes) + "m]"
		}
		fmt.Fprintf(w, "%-36s %-10s %-19s %-20s %s\n", a.ID, a.PatientID, at, prof, reason)
	}
}
