// internal/template/renderer.go
package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Rendered is the materialized content for one notification.
type Rendered struct {
	Subject     string
	Content     string
	HTMLContent string
}

// Renderer materializes a template version with per-recipient variables.
type Renderer struct {
	store Store
}

func NewRenderer(store Store) *Renderer {
	return &Renderer{store: store}
}

// Render loads the template, validates the variables and interpolates
// {{name}} placeholders in subject, content and HTML content.
func (r *Renderer) Render(ctx context.Context, tenantID, templateID, version string, vars map[string]interface{}) (*Rendered, *models.NotificationTemplate, error) {
	tmpl, err := r.store.Get(ctx, tenantID, templateID, version)
	if err != nil {
		return nil, nil, err
	}
	if !tmpl.IsRenderable() {
		return nil, nil, stderrors.NewTemplateValidationError(
			fmt.Sprintf("template %s version %s is %s, not APPROVED", tmpl.ID, tmpl.Version, tmpl.Status))
	}

	if err := validateVariables(tmpl, vars); err != nil {
		return nil, nil, err
	}

	out := &Rendered{
		Subject:     interpolate(tmpl.Subject, vars),
		Content:     interpolate(tmpl.Content, vars),
		HTMLContent: interpolate(tmpl.HTMLContent, vars),
	}
	return out, tmpl, nil
}

func validateVariables(tmpl *models.NotificationTemplate, vars map[string]interface{}) error {
	var missing []string
	for _, name := range tmpl.RequiredVariables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return stderrors.NewTemplateValidationError(
			fmt.Sprintf("missing required variables: %s", strings.Join(missing, ", ")))
	}

	if len(tmpl.VariablesSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(tmpl.VariablesSchema)
	documentLoader := gojsonschema.NewGoLoader(vars)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return stderrors.NewInternalError("variables schema validation", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return stderrors.NewTemplateValidationError(strings.Join(errs, "; "))
	}
	return nil
}

// interpolate replaces {{name}} placeholders. Unknown placeholders are
// left intact so a bad render is visible rather than silently empty.
func interpolate(text string, vars map[string]interface{}) string {
	if text == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}
