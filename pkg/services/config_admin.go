package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
	"github.com/docuflow-inc/docuflow-engine/pkg/repositories"
)

// ConfigAdminService is the write side of mapping configurations. Every
// mutation invalidates the rule-set cache entries it could affect, so the
// resolver never serves stale merges past the invalidation.
type ConfigAdminService interface {
	Create(ctx context.Context, cfg *models.MappingConfiguration) error
	Get(ctx context.Context, id uuid.UUID) (*models.MappingConfiguration, error)
	Update(ctx context.Context, cfg *models.MappingConfiguration) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// configAdminService implements ConfigAdminService.
type configAdminService struct {
	repo     repositories.MappingConfigRepository
	resolver *RuleResolver
	logger   *zap.Logger
}

// NewConfigAdminService creates a configuration administration service.
func NewConfigAdminService(repo repositories.MappingConfigRepository, resolver *RuleResolver, logger *zap.Logger) ConfigAdminService {
	return &configAdminService{repo: repo, resolver: resolver, logger: logger}
}

func (s *configAdminService) Create(ctx context.Context, cfg *models.MappingConfiguration) error {
	if err := s.repo.Create(ctx, cfg); err != nil {
		return err
	}
	s.resolver.InvalidateFor(ctx, cfg)
	s.logger.Info("Created mapping configuration",
		zap.String("id", cfg.ID.String()),
		zap.String("scope", cfg.Scope.String()),
		zap.String("name", cfg.Name),
		zap.Int("rules", len(cfg.Rules)))
	return nil
}

func (s *configAdminService) Get(ctx context.Context, id uuid.UUID) (*models.MappingConfiguration, error) {
	return s.repo.Get(ctx, id)
}

func (s *configAdminService) Update(ctx context.Context, cfg *models.MappingConfiguration) error {
	if err := s.repo.Update(ctx, cfg); err != nil {
		return err
	}
	s.resolver.InvalidateFor(ctx, cfg)
	s.logger.Info("Updated mapping configuration",
		zap.String("id", cfg.ID.String()),
		zap.Int64("version", cfg.Version))
	return nil
}

func (s *configAdminService) Deactivate(ctx context.Context, id uuid.UUID) error {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.resolver.InvalidateFor(ctx, cfg)
	s.logger.Info("Deactivated mapping configuration", zap.String("id", id.String()))
	return nil
}

func (s *configAdminService) Delete(ctx context.Context, id uuid.UUID) error {
	cfg, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.resolver.InvalidateFor(ctx, cfg)
	s.logger.Info("Deleted mapping configuration", zap.String("id", id.String()))
	return nil
}
