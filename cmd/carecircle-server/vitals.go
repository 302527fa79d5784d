package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/carecircle/carecircle/internal/domain/vitals"
)

func vitalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vitals",
		Short: "Read submitted vitals",
	}

	listCmd := &cobra.Command{
		Use:   "list [patientId]",
		Short: "List vitals visible to the session",
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
			d := a.VitalsFor(scope)
			var recs []*vitals.Record
			if len(args) == 1 {
				recs, err = d.ListByPatient(cmd.Context(), args[0])
			} else {
				recs, err = d.ListAll(cmd.Context())
			}
			if err != nil {
				return err
			}
			printVitals(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	addScopeFlags(listCmd)

	now := time.Now()
	monthlyCmd := &cobra.Command{
		Use:   "monthly <patientId>",
		Short: "Average a patient's vitals over one month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := scopeFromFlags(cmd)
			if err != nil {
				return err
			}
			year, _ := cmd.Flags().GetInt("year")
			month, _ := cmd.Flags().GetInt("month")
			if month < 1 || month > 12 {
				return fmt.Errorf("--month must be between 1 and 12, got %d", month)
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			s, err := vitals.MonthlySummary(cmd.Context(), a.VitalsFor(scope), args[0], year, time.Month(month), time.Local)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
	addScopeFlags(monthlyCmd)
	monthlyCmd.Flags().Int("year", now.Year(), "Calendar year")
	monthlyCmd.Flags().Int("month", int(now.Month()), "Calendar month (1-12)")

	cmd.AddCommand(listCmd, monthlyCmd)
	return cmd
}

func printVitals(w io.Writer, recs []*vitals.Record) {
	fmt.Fprintf(w, "%-10s %-20s %-5s %-7s %-6s %-6s %-10s %s\n", "PATIENT", "SUBMITTED", "HR", "BP", "TEMP", "KG", "MOOD", "DIET")
	for _, r := range recs {
		at := ""
		if r.SubmittedAt != nil {
			at = r.SubmittedAt.Local().Format("2006-01-02 15:04")
		}
		bp := optInt(r.BPSystolic) + "/" + optInt(r.BPDiastolic)
		fmt.Fprintf(w, "%-10s %-20s %-5s %-7s %-6s %-6s %-10s %s\n",
			r.PatientID, at, optInt(r.HeartRateBpm), bp,
			optFloat(r.TemperatureC), optFloat(r.WeightKg), r.Mood, r.DietNotes)
	}
}

func printSummary(w io.Writer, s vitals.Summary) {
	fmt.Fprintf(w, "%s %d-%02d: %d record(s)\n", s.PatientID, s.Year, int(s.Month), s.Records)
	for _, row := range []struct {
		label string
		avg   vitals.Average
	}{
		{"heart rate (bpm)", s.HeartRateBpm},
		{"systolic (mmHg)", s.BPSystolic},
		{"diastolic (mmHg)", s.BPDiastolic},
		{"temperature (C)", s.TemperatureC},
		{"weight (kg)", s.WeightKg},
	} {
		if !row.avg.Valid() {
			fmt.Fprintf(w, "  %-18s -\n", row.label)
			continue
		}
		fmt.Fprintf(w, "  %-18s %.1f (n=%d)\n", row.label, row.avg.Mean, row.avg.Samples)
	}
}

func optInt(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func optFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
