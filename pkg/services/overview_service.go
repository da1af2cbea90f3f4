package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// OverviewService aggregates catalog-wide statistics.
type OverviewService interface {
	Overview(ctx context.Context) (*models.Overview, error)
}

type overviewService struct {
	datasources repositories.DatasourceRepository
	catalog     repositories.CatalogRepository
	tasks       repositories.TaskRepository
	history     repositories.HistoryRepository
	logger      *zap.Logger
}

// NewOverviewService creates an OverviewService.
func NewOverviewService(
	datasources repositories.DatasourceRepository,
	catalog repositories.CatalogRepository,
	tasks repositories.TaskRepository,
	history repositories.HistoryRepository,
	logger *zap.Logger,
) OverviewService {
	return &overviewService{
		datasources: datasources,
		catalog:     catalog,
		tasks:       tasks,
		history:     history,
		logger:      logger.Named("overview-service"),
	}
}

var _ OverviewService = (*overviewService)(nil)

func (s *overviewService) Overview(ctx context.Context) (*models.Overview, error) {
	var overview models.Overview
	var err error

	if overview.DatasourceCount, err = s.datasources.Count(ctx); err != nil {
		return nil, err
	}
	if overview.TableCount, err = s.catalog.CountTables(ctx); err != nil {
		return nil, err
	}
	if overview.ColumnCount, err = s.catalog.CountColumns(ctx); err != nil {
		return nil, err
	}
	if overview.TaskCount, err = s.tasks.Count(ctx); err != nil {
		return nil, err
	}
	if overview.Distribution, err = s.catalog.TableDistribution(ctx); err != nil {
		return nil, err
	}

	latest, err := s.history.Latest(ctx)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	overview.LatestExtraction = latest

	return &overview, nil
}
