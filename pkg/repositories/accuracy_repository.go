package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/docuflow-inc/docuflow-engine/pkg/apperrors"
	"github.com/docuflow-inc/docuflow-engine/pkg/database"
	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

// AccuracyRepository reads historical-accuracy aggregates. The aggregates are
// maintained by the review subsystem; this side is read-only.
type AccuracyRepository interface {
	// GetStats returns the aggregate for an exact scope key (both IDs, one,
	// or neither for the global aggregate), or ErrNotFound.
	GetStats(ctx context.Context, companyID, formatID *uuid.UUID) (*models.AccuracyStats, error)

	// GetMostSpecific returns the narrowest aggregate available for the
	// pair, trying company+format, company, format, then global. Returns
	// ErrNotFound when no aggregate exists at any scope.
	GetMostSpecific(ctx context.Context, companyID, formatID uuid.UUID) (*models.AccuracyStats, error)
}

// accuracyRepository implements AccuracyRepository using PostgreSQL.
type accuracyRepository struct {
	db *database.DB
}

// NewAccuracyRepository creates a new accuracy aggregate repository.
func NewAccuracyRepository(db *database.DB) AccuracyRepository {
	return &accuracyRepository{db: db}
}

func (r *accuracyRepository) GetStats(ctx context.Context, companyID, formatID *uuid.UUID) (*models.AccuracyStats, error) {
	query := `
		SELECT company_id, document_format_id, sample_count, avg_correctness
		FROM accuracy_stats
		WHERE company_id IS NOT DISTINCT FROM $1
		  AND document_format_id IS NOT DISTINCT FROM $2`

	var stats models.AccuracyStats
	err := r.db.QueryRow(ctx, query, companyID, formatID).Scan(
		&stats.CompanyID, &stats.DocumentFormatID,
		&stats.SampleCount, &stats.AvgCorrectness)
	if err == pgx.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load accuracy stats: %w", err)
	}
	return &stats, nil
}

func (r *accuracyRepository) GetMostSpecific(ctx context.Context, companyID, formatID uuid.UUID) (*models.AccuracyStats, error) {
	keys := []struct {
		company *uuid.UUID
		format  *uuid.UUID
	}{
		{&companyID, &formatID},
		{&companyID, nil},
		{nil, &formatID},
		{nil, nil},
	}

	for _, key := range keys {
		stats, err := r.GetStats(ctx, key.company, key.format)
		if err == nil {
			return stats, nil
		}
		if err != apperrors.ErrNotFound {
			return nil, err
		}
	}
	return nil, apperrors.ErrNotFound
}
