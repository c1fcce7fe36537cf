package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldforge/extract-cli/internal/config"
	"github.com/fieldforge/extract-cli/internal/model"
)

var (
	extractDocID    string
	extractTemplate string
	extractFields   []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract configured fields from a token document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tpl, err := config.LoadTemplate(cfg.Templates.Dir, extractTemplate)
		if err != nil {
			return err
		}
		fields, err := selectFields(tpl, extractFields)
		if err != nil {
			return err
		}

		doc, err := env.Docs.Load(ctx, extractDocID)
		if err != nil {
			return eris.Wrap(err, "load document")
		}
		doc.TemplateID = tpl.TemplateID

		results, err := env.Service.ExtractFields(ctx, doc, fields)
		if err != nil {
			return err
		}

		extracted := 0
		for _, c := range results {
			if c != nil {
				extracted++
			}
		}
		zap.L().Info("extraction complete",
			zap.String("document_id", doc.DocumentID),
			zap.String("template_id", tpl.TemplateID),
			zap.Int("fields_requested", len(fields)),
			zap.Int("fields_extracted", extracted),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

// selectFields filters the template's fields to the requested names, or
// returns all of them when none were requested.
func selectFields(tpl *model.Template, names []string) ([]model.FieldConfig, error) {
	if len(names) == 0 {
		return tpl.Fields, nil
	}
	fields := make([]model.FieldConfig, 0, len(names))
	for _, name := range names {
		f := tpl.Field(name)
		if f == nil {
			return nil, eris.Errorf("template %s has no field %q", tpl.TemplateID, name)
		}
		fields = append(fields, *f)
	}
	return fields, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractDocID, "doc", "", "document id (required)")
	extractCmd.Flags().StringVar(&extractTemplate, "template", "", "template id (required)")
	extractCmd.Flags().StringSliceVar(&extractFields, "fields", nil, "subset of fields to extract (default all)")
	_ = extractCmd.MarkFlagRequired("doc")
	_ = extractCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(extractCmd)
}
