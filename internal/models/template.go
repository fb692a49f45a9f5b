// internal/models/template.go
package models

import "time"

// TemplateStatus controls whether a template version may be rendered.
type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "DRAFT"
	TemplateApproved TemplateStatus = "APPROVED"
	TemplateArchived TemplateStatus = "ARCHIVED"
)

// NotificationTemplate is a versioned content blueprint. Versions are
// immutable: editing produces a new version, never a rewrite.
// Read-only to the delivery engine.
type NotificationTemplate struct {
	ID                string                 `json:"id"`
	TenantID          string                 `json:"tenantId"`
	Name              string                 `json:"name"`
	Version           string                 `json:"version"`
	Channel           Channel                `json:"channel"`
	Status            TemplateStatus         `json:"status"`
	Category          string                 `json:"category,omitempty"`
	Subject           string                 `json:"subject"`
	Content           string                 `json:"content"`
	HTMLContent       string                 `json:"htmlContent,omitempty"`
	RequiredVariables []string               `json:"requiredVariables,omitempty"`
	VariablesSchema   map[string]interface{} `json:"variablesSchema,omitempty"` // JSON schema for template variables
	CreatedAt         time.Time              `json:"createdAt"`
}

// IsRenderable reports whether this version may be used for delivery.
func (t *NotificationTemplate) IsRenderable() bool {
	return t.Status == TemplateApproved
}
