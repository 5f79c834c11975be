package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/preference"
)

func newPreferenceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preference",
		Short: "Show or change the analysis preference",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the saved preference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPreferences(cmd.Context(), func(svc *preference.Service) error {
				fmt.Fprintln(cmd.OutOrStdout(), svc.Get(cmd.Context()))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <value>",
		Short: "Save a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := preference.Parse(args[0])
			if !ok {
				return fmt.Errorf("unknown preference %q, run `preference list` for the options", args[0])
			}
			return ctx.withPreferences(cmd.Context(), func(svc *preference.Service) error {
				svc.Set(cmd.Context(), p.String())
				fmt.Fprintf(cmd.OutOrStdout(), "Preference set to %s\n", p)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPreferences(cmd.Context(), func(svc *preference.Service) error {
				current := svc.Get(cmd.Context())

				table := tablewriter.NewWriter(cmd.OutOrStdout())
				table.SetHeader([]string{"", "Value", "Label", "Focus"})
				table.SetBorder(false)
				table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
				table.SetAlignment(tablewriter.ALIGN_LEFT)
				for _, opt := range preference.Options() {
					marker := ""
					if opt.Value == current {
						marker = "*"
					}
					table.Append([]string{marker, opt.Value.String(), opt.Label, opt.Description})
				}
				table.Render()
				return nil
			})
		},
	})

	return cmd
}
