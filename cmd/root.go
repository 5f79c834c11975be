package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCommand assembles the smart-ingredients CLI.
func NewRootCommand() *cobra.Command {
	var (
		configFlag   string
		apiBaseFlag  string
		logLevelFlag string
	)

	ctx := newCommandContext(&configFlag, &apiBaseFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "smart-ingredients",
		Short:         "Submit ingredient label photos and follow their analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseFlag, "api-base", "", "Analysis service base URL")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newConfirmCommand(ctx))
	rootCmd.AddCommand(newRetryOCRCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newPreferenceCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))

	return rootCmd
}
