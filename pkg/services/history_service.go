package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// HistoryService reads the extraction ledger.
type HistoryService interface {
	Query(ctx context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, models.Pagination, error)
}

type historyService struct {
	repo   repositories.HistoryRepository
	logger *zap.Logger
}

// NewHistoryService creates a HistoryService.
func NewHistoryService(repo repositories.HistoryRepository, logger *zap.Logger) HistoryService {
	return &historyService{
		repo:   repo,
		logger: logger.Named("history-service"),
	}
}

var _ HistoryService = (*historyService)(nil)

func (s *historyService) Query(ctx context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, models.Pagination, error) {
	switch filter.Status {
	case "", models.ExtractionStatusRunning, models.ExtractionStatusSuccess, models.ExtractionStatusFailed:
	default:
		return nil, models.Pagination{}, fmt.Errorf("unknown status %q: %w", filter.Status, apperrors.ErrValidation)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = 20
	}

	records, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return records, models.NewPagination(filter.Page, filter.PerPage, total), nil
}
