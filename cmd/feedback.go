package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldforge/extract-cli/internal/model"
)

var (
	fbDocID     string
	fbTemplate  string
	fbField     string
	fbOriginal  string
	fbCorrected string
	fbStrategy  string
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record a user correction for an extracted field",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		saved, err := env.Service.SubmitFeedback(ctx, model.FeedbackRecord{
			DocumentID:     fbDocID,
			TemplateID:     fbTemplate,
			FieldName:      fbField,
			OriginalValue:  fbOriginal,
			CorrectedValue: fbCorrected,
			StrategyUsed:   model.StrategyID(fbStrategy),
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(saved)
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&fbDocID, "doc", "", "document id (required)")
	feedbackCmd.Flags().StringVar(&fbTemplate, "template", "", "template id (required)")
	feedbackCmd.Flags().StringVar(&fbField, "field", "", "field name (required)")
	feedbackCmd.Flags().StringVar(&fbOriginal, "original", "", "value the system extracted")
	feedbackCmd.Flags().StringVar(&fbCorrected, "corrected", "", "value the user corrected it to (required)")
	feedbackCmd.Flags().StringVar(&fbStrategy, "strategy", "", "strategy that produced the original value")
	_ = feedbackCmd.MarkFlagRequired("doc")
	_ = feedbackCmd.MarkFlagRequired("template")
	_ = feedbackCmd.MarkFlagRequired("field")
	_ = feedbackCmd.MarkFlagRequired("corrected")
	rootCmd.AddCommand(feedbackCmd)
}
