package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/model"
)

var (
	retrainTemplate string
	retrainAll      bool
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Retrain the sequence tagger from accumulated feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		// SIGINT aborts between stages; nothing is activated or consumed.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Retrain(ctx, retrainTemplate, retrainAll)
		if err != nil {
			if result != nil && result.Outcome == model.TrainingAborted {
				zap.L().Warn("retrain aborted", zap.String("template_id", retrainTemplate))
				return printJSON(result)
			}
			return err
		}

		return printJSON(result)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	retrainCmd.Flags().StringVar(&retrainTemplate, "template", "", "template id (required)")
	retrainCmd.Flags().BoolVar(&retrainAll, "all", false, "rebuild from the full feedback history, not just unconsumed rows")
	_ = retrainCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(retrainCmd)
}
