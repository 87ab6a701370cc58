// Package repositories contains the PostgreSQL data-access layer for the
// engine's configuration store.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/database"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// MappingConfigRepository defines data access for mapping configurations
// and their rules. The resolver only needs GetActive; the remaining methods
// serve the administration surface.
type MappingConfigRepository interface {
	// Create inserts a configuration with its rules. Returns ErrConflict if
	// an active configuration already exists for the same scope key.
	Create(ctx context.Context, cfg *models.MappingConfiguration) error

	// Get retrieves a configuration with its rules ordered by priority.
	Get(ctx context.Context, id uuid.UUID) (*models.MappingConfiguration, error)

	// GetActive retrieves the single active configuration for a scope key,
	// or ErrNotFound. companyID/formatID are ignored for scopes that do not
	// use them.
	GetActive(ctx context.Context, scope models.ConfigScope, companyID, formatID *uuid.UUID) (*models.MappingConfiguration, error)

	// Update replaces a configuration and its rules using optimistic
	// concurrency: cfg.Version must match the stored version or
	// ErrStaleVersion is returned. On success cfg.Version is incremented.
	Update(ctx context.Context, cfg *models.MappingConfiguration) error

	// Deactivate soft-disables a configuration without touching its rules.
	Deactivate(ctx context.Context, id uuid.UUID) error

	// Delete removes a configuration and cascades to its rules. GLOBAL
	// configurations are never hard-deleted (ErrGlobalDelete).
	Delete(ctx context.Context, id uuid.UUID) error
}

// mappingConfigRepository implements MappingConfigRepository using PostgreSQL.
type mappingConfigRepository struct {
	db *database.DB
}

// NewMappingConfigRepository creates a new mapping configuration repository.
func NewMappingConfigRepository(db *database.DB) MappingConfigRepository {
	return &mappingConfigRepository{db: db}
}

func (r *mappingConfigRepository) Create(ctx context.Context, cfg *models.MappingConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRule, err)
	}

	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO mapping_configurations
			(id, scope, company_id, document_format_id, name, version, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, query,
		cfg.ID, cfg.Scope, cfg.CompanyID, cfg.DocumentFormatID,
		cfg.Name, cfg.Version, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		// Unique partial index on (scope, company_id, document_format_id) WHERE active
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("active configuration already exists for scope key: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	if err := r.insertRules(ctx, tx, cfg.ID, cfg.Rules); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *mappingConfigRepository) Get(ctx context.Context, id uuid.UUID) (*models.MappingConfiguration, error) {
	query := `
		SELECT id, scope, company_id, document_format_id, name, version, active, created_at, updated_at
		FROM mapping_configurations
		WHERE id = $1`

	cfg, err := r.scanConfiguration(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rules, err := r.loadRules(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return cfg, nil
}

func (r *mappingConfigRepository) GetActive(ctx context.Context, scope models.ConfigScope, companyID, formatID *uuid.UUID) (*models.MappingConfiguration, error) {
	query := `
		SELECT id, scope, company_id, document_format_id, name, version, active, created_at, updated_at
		FROM mapping_configurations
		WHERE scope = $1 AND active`
	args := []any{scope}

	switch scope {
	case models.ScopeCompany:
		if companyID == nil {
			return nil, apperrors.ErrNotFound
		}
		query += ` AND company_id = $2`
		args = append(args, *companyID)
	case models.ScopeFormat:
		if formatID == nil {
			return nil, apperrors.ErrNotFound
		}
		query += ` AND document_format_id = $2`
		args = append(args, *formatID)
	}

	cfg, err := r.scanConfiguration(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	rules, err := r.loadRules(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	cfg.Rules = rules
	return cfg, nil
}

func (r *mappingConfigRepository) Update(ctx context.Context, cfg *models.MappingConfiguration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidRule, err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE mapping_configurations
		SET name = $1, active = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5`

	tag, err := tx.Exec(ctx, query, cfg.Name, cfg.Active, time.Now(), cfg.ID, cfg.Version)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a stale version.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM mapping_configurations WHERE id = $1)`,
			cfg.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check configuration existence: %w", err)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrStaleVersion
	}

	if _, err := tx.Exec(ctx, `DELETE FROM mapping_rules WHERE configuration_id = $1`, cfg.ID); err != nil {
		return fmt.Errorf("failed to replace rules: %w", err)
	}
	if err := r.insertRules(ctx, tx, cfg.ID, cfg.Rules); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	cfg.Version++
	return nil
}

func (r *mappingConfigRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE mapping_configurations SET active = false, updated_at = $1 WHERE id = $2`,
		time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate configuration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *mappingConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	var scope models.ConfigScope
	err := r.db.QueryRow(ctx,
		`SELECT scope FROM mapping_configurations WHERE id = $1`, id).Scan(&scope)
	if err == pgx.ErrNoRows {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration scope: %w", err)
	}
	if scope == models.ScopeGlobal {
		return apperrors.ErrGlobalDelete
	}

	// Rules cascade via FK.
	_, err = r.db.Exec(ctx, `DELETE FROM mapping_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	return nil
}

// insertRules inserts the rule rows for one configuration.
func (r *mappingConfigRepository) insertRules(ctx context.Context, tx pgx.Tx, configID uuid.UUID, rules []models.MappingRule) error {
	query := `
		INSERT INTO mapping_rules
			(id, configuration_id, source_fields, target_field, transform_kind,
			 params, priority, active, validation_pattern)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for i := range rules {
		rule := &rules[i]
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		rule.ConfigurationID = configID

		params, err := json.Marshal(rule.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal rule params: %w", err)
		}

		_, err = tx.Exec(ctx, query,
			rule.ID, configID, rule.SourceFields, rule.TargetField,
			rule.TransformKind, params, rule.Priority, rule.Active, rule.ValidationPattern)
		if err != nil {
			return fmt.Errorf("failed to insert rule for %s: %w", rule.TargetField, err)
		}
	}
	return nil
}

// loadRules returns a configuration's active rules ordered by priority.
func (r *mappingConfigRepository) loadRules(ctx context.Context, configID uuid.UUID) ([]models.MappingRule, error) {
	query := `
		SELECT id, configuration_id, source_fields, target_field, transform_kind,
		       params, priority, active, validation_pattern
		FROM mapping_rules
		WHERE configuration_id = $1 AND active
		ORDER BY priority, target_field`

	rows, err := r.db.Query(ctx, query, configID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	defer rows.Close()

	var rules []models.MappingRule
	for rows.Next() {
		var rule models.MappingRule
		var params []byte
		err := rows.Scan(&rule.ID, &rule.ConfigurationID, &rule.SourceFields,
			&rule.TargetField, &rule.TransformKind, &params,
			&rule.Priority, &rule.Active, &rule.ValidationPattern)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal(params, &rule.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule params: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// scanConfiguration scans one configuration row without its rules.
func (r *mappingConfigRepository) scanConfiguration(row pgx.Row) (*models.MappingConfiguration, error) {
	var cfg models.MappingConfiguration
	err := row.Scan(&cfg.ID, &cfg.Scope, &cfg.CompanyID, &cfg.DocumentFormatID,
		&cfg.Name, &cfg.Version, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan configuration: %w", err)
	}
	return &cfg, nil
}
