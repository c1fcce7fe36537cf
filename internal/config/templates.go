package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/fieldforge/extract-cli/internal/model"
)

// LoadTemplate reads and validates the field config for one template from
// <dir>/<templateID>.yaml.
func LoadTemplate(dir, templateID string) (*model.Template, error) {
	path := filepath.Join(dir, templateID+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read template %s", templateID)
	}

	var tpl model.Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, eris.Wrapf(err, "config: parse template %s", templateID)
	}
	if tpl.TemplateID == "" {
		tpl.TemplateID = templateID
	}

	if err := ValidateTemplate(&tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// ValidateTemplate rejects template configs that would fail at extraction
// time: duplicate field names, empty field lists, uncompilable patterns.
func ValidateTemplate(tpl *model.Template) error {
	if len(tpl.Fields) == 0 {
		return eris.Errorf("config: template %s has no fields", tpl.TemplateID)
	}
	seen := make(map[string]bool, len(tpl.Fields))
	for i := range tpl.Fields {
		f := &tpl.Fields[i]
		if f.Name == "" {
			return eris.Errorf("config: template %s field %d has no name", tpl.TemplateID, i)
		}
		if seen[f.Name] {
			return eris.Errorf("config: template %s duplicate field %q", tpl.TemplateID, f.Name)
		}
		seen[f.Name] = true
		if f.Pattern != "" {
			if _, err := regexp.Compile(f.Pattern); err != nil {
				return eris.Wrapf(err, "config: template %s field %q pattern", tpl.TemplateID, f.Name)
			}
		}
		if f.Region != nil && (f.Region.X1 <= f.Region.X0 || f.Region.Y1 <= f.Region.Y0) {
			return eris.Errorf("config: template %s field %q has an empty region", tpl.TemplateID, f.Name)
		}
	}
	return nil
}
