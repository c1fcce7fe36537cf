package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	statsTemplate string
	statsReset    bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show or reset per-strategy performance statistics for a template",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if statsReset {
			n, err := env.Store.ResetPerformance(ctx, statsTemplate)
			if err != nil {
				return err
			}
			zap.L().Info("performance statistics reset",
				zap.String("template_id", statsTemplate),
				zap.Int("rows_deleted", n),
			)
			return nil
		}

		records, err := env.Store.ListPerformance(ctx, statsTemplate)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsTemplate, "template", "", "template id (required)")
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "delete the template's performance records")
	_ = statsCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(statsCmd)
}
