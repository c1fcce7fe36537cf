package main

import (
	"github.com/spf13/cobra"
)

var (
	historyTemplate string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent training runs for a template",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runs, err := env.Store.ListTrainingRuns(ctx, historyTemplate, historyLimit)
		if err != nil {
			return err
		}
		return printJSON(runs)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyTemplate, "template", "", "template id (required)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show, newest first")
	_ = historyCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(historyCmd)
}
