package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/preference"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Follow an analysis until its text is available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := sessionContext(cmd.Context(), ctx)
			defer cancel()

			id := args[0]
			out := cmd.OutOrStdout()
			client := ctx.client()

			if once {
				resp, err := client.Fetch(runCtx, id)
				if err != nil {
					return requestFailure(id, err)
				}
				renderResponse(out, resp)
				return nil
			}

			var last analysis.Status
			for status, err := range ctx.poller(client).Poll(runCtx, id) {
				if err != nil {
					ctx.log().Debug("recognition failed", zap.Error(err))
					return errRecognitionFailed
				}
				renderStatus(out, status)
				last = status
			}
			if last.Terminal {
				renderText(out, last.OCRText)
			}
			return runCtx.Err()
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Fetch the current status once instead of polling")
	return cmd
}

func newConfirmCommand(ctx *commandContext) *cobra.Command {
	var (
		text string
		pref string
	)

	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm the recognised text and start ingredient analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			client := ctx.client()
			id := args[0]

			if text == "" {
				resp, err := client.Fetch(runCtx, id)
				if err != nil {
					return requestFailure(id, err)
				}
				if resp.OCRText == "" {
					return fmt.Errorf("analysis %s has no recognised text yet", id)
				}
				text = resp.OCRText
			}

			return ctx.withPreferences(runCtx, func(svc *preference.Service) error {
				chosen := svc.Get(runCtx)
				if pref != "" {
					parsed, ok := preference.Parse(pref)
					if !ok {
						return fmt.Errorf("unknown preference %q", pref)
					}
					chosen = parsed
				}
				return confirmText(runCtx, cmd, client, id, text, chosen)
			})
		},
	}

	cmd.Flags().StringVarP(&text, "text", "t", "", "Corrected ingredient text (defaults to the recognised text)")
	cmd.Flags().StringVarP(&pref, "preference", "p", "", "Preference to analyse with (defaults to the saved one)")
	return cmd
}

func newRetryOCRCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-ocr <id>",
		Short: "Run text recognition again for an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := ctx.client().RetryOCR(cmd.Context(), args[0])
			if err != nil {
				return requestFailure(args[0], err)
			}
			renderResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}
