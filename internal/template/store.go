// internal/template/store.go
package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/lib/pq"

	stderrors "notification-engine/internal/common/errors"
	"notification-engine/internal/models"
)

// Store loads template versions. Templates are immutable once written;
// the engine never updates them.
type Store interface {
	// Get returns one version, or the latest approved version when
	// version is empty.
	Get(ctx context.Context, tenantID, templateID, version string) (*models.NotificationTemplate, error)
	Put(ctx context.Context, tmpl *models.NotificationTemplate) error
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const templateColumns = `
	id, tenant_id, name, version, channel, status, category,
	subject, content, html_content, required_variables, variables_schema, created_at`

func (s *PostgresStore) Get(ctx context.Context, tenantID, templateID, version string) (*models.NotificationTemplate, error) {
	var row *sql.Row
	if version != "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT`+templateColumns+`
			FROM notification_templates
			WHERE tenant_id = $1 AND id = $2 AND version = $3`,
			tenantID, templateID, version,
		)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT`+templateColumns+`
			FROM notification_templates
			WHERE tenant_id = $1 AND id = $2 AND status = 'APPROVED'
			ORDER BY created_at DESC
			LIMIT 1`,
			tenantID, templateID,
		)
	}

	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewTemplateNotFoundError(templateID)
	}
	if err != nil {
		return nil, stderrors.NewDatabaseError("get template", err)
	}
	return tmpl, nil
}

func (s *PostgresStore) Put(ctx context.Context, tmpl *models.NotificationTemplate) error {
	schema, err := json.Marshal(tmpl.VariablesSchema)
	if err != nil {
		return stderrors.NewInternalError("marshal variables schema", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (
			id, tenant_id, name, version, channel, status, category,
			subject, content, html_content, required_variables, variables_schema, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tmpl.ID, tmpl.TenantID, tmpl.Name, tmpl.Version, string(tmpl.Channel),
		string(tmpl.Status), tmpl.Category, tmpl.Subject, tmpl.Content, tmpl.HTMLContent,
		pq.Array(tmpl.RequiredVariables), schema, tmpl.CreatedAt,
	)
	if err != nil {
		return stderrors.NewDatabaseError("insert template", err)
	}
	return nil
}

func scanTemplate(row *sql.Row) (*models.NotificationTemplate, error) {
	var tmpl models.NotificationTemplate
	var channel, status string
	var required pq.StringArray
	var schema []byte

	err := row.Scan(
		&tmpl.ID, &tmpl.TenantID, &tmpl.Name, &tmpl.Version, &channel, &status, &tmpl.Category,
		&tmpl.Subject, &tmpl.Content, &tmpl.HTMLContent, &required, &schema, &tmpl.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tmpl.Channel = models.Channel(channel)
	tmpl.Status = models.TemplateStatus(status)
	tmpl.RequiredVariables = []string(required)
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &tmpl.VariablesSchema); err != nil {
			return nil, err
		}
	}
	return &tmpl, nil
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[string][]*models.NotificationTemplate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{templates: make(map[string][]*models.NotificationTemplate)}
}

func templateKey(tenantID, templateID string) string {
	return tenantID + "/" + templateID
}

func (s *MemoryStore) Get(ctx context.Context, tenantID, templateID, version string) (*models.NotificationTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.templates[templateKey(tenantID, templateID)]
	if version != "" {
		for _, tmpl := range versions {
			if tmpl.Version == version {
				clone := *tmpl
				return &clone, nil
			}
		}
		return nil, stderrors.NewTemplateNotFoundError(templateID)
	}

	// Latest approved version wins.
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status == models.TemplateApproved {
			clone := *versions[i]
			return &clone, nil
		}
	}
	return nil, stderrors.NewTemplateNotFoundError(templateID)
}

func (s *MemoryStore) Put(ctx context.Context, tmpl *models.NotificationTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := templateKey(tmpl.TenantID, tmpl.ID)
	clone := *tmpl
	s.templates[key] = append(s.templates[key], &clone)
	return nil
}
