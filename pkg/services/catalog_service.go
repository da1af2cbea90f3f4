package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// TableDetail is one table with its columns and resolved relationships.
type TableDetail struct {
	models.TableMeta
	Relations []models.RelatedTable `json:"relationships"`
}

// CatalogService reads the extracted catalog.
type CatalogService interface {
	// ListTables returns one sorted page of a datasource's tables.
	ListTables(ctx context.Context, datasourceID uuid.UUID, page, perPage int, sortBy, sortOrder string) ([]*models.TableMeta, models.Pagination, error)

	// GetTable returns a table with columns and relationships.
	GetTable(ctx context.Context, id uuid.UUID) (*TableDetail, error)

	// GetColumns returns a table's columns ordered by position.
	GetColumns(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMeta, error)
}

type catalogService struct {
	repo   repositories.CatalogRepository
	logger *zap.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(repo repositories.CatalogRepository, logger *zap.Logger) CatalogService {
	return &catalogService{
		repo:   repo,
		logger: logger.Named("catalog-service"),
	}
}

var _ CatalogService = (*catalogService)(nil)

func (s *catalogService) ListTables(ctx context.Context, datasourceID uuid.UUID, page, perPage int, sortBy, sortOrder string) ([]*models.TableMeta, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	tables, total, err := s.repo.ListTables(ctx, datasourceID, page, perPage, sortBy, sortOrder)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return tables, models.NewPagination(page, perPage, total), nil
}

func (s *catalogService) GetTable(ctx context.Context, id uuid.UUID) (*TableDetail, error) {
	table, err := s.repo.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}
	relations, err := s.repo.GetTableRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	return &TableDetail{TableMeta: *table, Relations: relations}, nil
}

func (s *catalogService) GetColumns(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMeta, error) {
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	return table.Columns, nil
}
