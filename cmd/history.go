package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		page  int
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := ctx.client().History(cmd.Context(), page, limit)
			if err != nil {
				return requestFailure("", err)
			}

			out := cmd.OutOrStdout()
			if len(result.Items) == 0 {
				fmt.Fprintln(out, "No analyses found.")
				return nil
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"ID", "Created At", "Health Score", "Favorite"})
			table.SetBorder(false)
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)

			for _, item := range result.Items {
				score := "-"
				if item.HealthScore != nil {
					score = strconv.Itoa(*item.HealthScore)
				}
				favorite := ""
				if item.IsFavorite {
					favorite = "yes"
				}
				table.Append([]string{item.ID, item.CreatedAt, score, favorite})
			}
			table.Render()

			fmt.Fprintf(out, "Page %d, showing %d of %d\n", result.Page, len(result.Items), result.Total)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Analyses per page")
	return cmd
}
