package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func accessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Manage provider rosters",
	}

	assignCmd := &cobra.Command{
		Use:   "assign <providerId> <patientId>",
		Short: "Give a provider access to a patient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Access.Assign(args[0], args[1]); err != nil {
				return fmt.Errorf("assign failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s.\n", args[1], args[0])
			return nil
		},
	}

	unassignCmd := &cobra.Command{
		Use:   "unassign <providerId> <patientId>",
		Short: "Revoke a provider's access to a patient",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			if err := a.Access.Unassign(args[0], args[1]); err != nil {
				return fmt.Errorf("unassign failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s.\n", args[1], args[0])
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list <providerId>",
		Short: "List the patients on a provider's roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			ids := make([]string, 0)
			for id := range a.Access.PatientsFor(args[0]) {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers with at least one patient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			for _, p := range a.Access.Providers() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", p, len(a.Access.PatientsFor(p)))
			}
			return nil
		},
	}

	discoverCmd := &cobra.Command{
		Use:   "discover <providerId>",
		Short: "List patients found in the record files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			candidates, err := a.DiscoverPatients(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, c := range candidates {
				mark := " "
				if c.Assigned {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, c.PatientID)
			}
			return nil
		},
	}

	cmd.AddCommand(assignCmd, unassignCmd, listCmd, providersCmd, discoverCmd)
	return cmd
}
