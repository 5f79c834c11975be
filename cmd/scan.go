package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ZHOUKAILIAN/smart-ingredients/internal/analysis"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/poller"
	"github.com/ZHOUKAILIAN/smart-ingredients/internal/preference"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Upload a label photo and wait for its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := sessionContext(cmd.Context(), ctx)
			defer cancel()

			out := cmd.OutOrStdout()
			client := ctx.client()
			logger := ctx.log()

			job, err := client.Submit(runCtx, args[0])
			if err != nil {
				logger.Debug("upload failed", zap.Error(err))
				return errUploadFailed
			}
			fmt.Fprintf(out, "Submitted analysis %s\n", job.ID)

			task := ctx.poller(client).Start(runCtx, job.ID)
			for status := range task.Updates() {
				renderStatus(out, status)
			}
			last, err := task.Wait()
			if err != nil {
				logger.Debug("recognition failed", zap.Error(err))
				return errRecognitionFailed
			}
			if task.State() == poller.StateCancelled {
				if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
					return fmt.Errorf("timed out waiting for analysis %s", task.ID())
				}
				fmt.Fprintln(out, "Cancelled.")
				return context.Canceled
			}
			renderText(out, last.OCRText)

			if !confirm || !last.HasText() {
				return nil
			}
			return ctx.withPreferences(runCtx, func(svc *preference.Service) error {
				return confirmText(runCtx, cmd, client, job.ID, last.OCRText, svc.Get(runCtx))
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the recognised text with the saved preference")
	return cmd
}

// sessionContext cancels on SIGINT/SIGTERM and after poll.timeout, if set.
func sessionContext(parent context.Context, ctx *commandContext) (context.Context, context.CancelFunc) {
	runCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	timeout := ctx.configValue().Poll.Timeout
	if timeout <= 0 {
		return runCtx, stop
	}
	timed, cancel := context.WithTimeout(runCtx, timeout)
	return timed, func() {
		cancel()
		stop()
	}
}

func confirmText(ctx context.Context, cmd *cobra.Command, client *analysis.Client, id, text string, pref preference.Preference) error {
	resp, err := client.Confirm(ctx, id, text, pref.String())
	if err != nil {
		return requestFailure(id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Confirmed with preference %s\n", pref)
	renderResponse(cmd.OutOrStdout(), resp)
	return nil
}
