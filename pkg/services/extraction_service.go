package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/logging"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// finalizeTimeout bounds the ledger write that closes an extraction record
// after the run itself has ended.
const finalizeTimeout = 10 * time.Second

// ExtractionService runs the extract-and-commit pipeline for a datasource.
// At most one extraction runs per datasource at a time; a second trigger
// gets apperrors.ErrExtractionRunning instead of queueing.
type ExtractionService interface {
	// Extract reads the source's schema and commits it as one snapshot.
	// Every attempt that starts leaves a ledger record, failures included.
	// On pipeline failure the finalized record is returned together with the
	// error so callers can surface both.
	Extract(ctx context.Context, datasourceID uuid.UUID, taskID *uuid.UUID) (*models.ExtractionRecord, error)
}

type extractionService struct {
	datasources DatasourceService
	factory     source.ConnectorFactory
	catalog     repositories.CatalogRepository
	history     repositories.HistoryRepository
	logger      *zap.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

// NewExtractionService creates an ExtractionService.
func NewExtractionService(
	datasources DatasourceService,
	factory source.ConnectorFactory,
	catalog repositories.CatalogRepository,
	history repositories.HistoryRepository,
	logger *zap.Logger,
) ExtractionService {
	return &extractionService{
		datasources: datasources,
		factory:     factory,
		catalog:     catalog,
		history:     history,
		logger:      logger.Named("extraction-service"),
		inFlight:    make(map[uuid.UUID]bool),
	}
}

var _ ExtractionService = (*extractionService)(nil)

func (s *extractionService) Extract(ctx context.Context, datasourceID uuid.UUID, taskID *uuid.UUID) (*models.ExtractionRecord, error) {
	if !s.acquire(datasourceID) {
		return nil, fmt.Errorf("datasource %s: %w", datasourceID, apperrors.ErrExtractionRunning)
	}
	defer s.release(datasourceID)

	// Resolve the datasource before opening a ledger record; an unknown id
	// is the caller's error, not an extraction attempt.
	ds, cfg, err := s.datasources.ConnConfig(ctx, datasourceID)
	if err != nil {
		return nil, err
	}

	record := &models.ExtractionRecord{
		DataSourceID: datasourceID,
		TaskID:       taskID,
		StartedAt:    time.Now().UTC(),
		Status:       models.ExtractionStatusRunning,
	}
	if err := s.history.Append(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Extraction started",
		zap.String("datasource_id", datasourceID.String()),
		zap.String("record_id", record.ID.String()),
		zap.String("type", ds.Type))

	extracted, runErr := s.run(ctx, ds.Type, datasourceID, cfg, record)
	duration := int64(time.Since(record.StartedAt) / time.Second)
	record.DurationSeconds = duration

	// The ledger must reach a terminal state even when the run was cut short
	// by shutdown, so finalize with a context detached from cancellation.
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if runErr != nil {
		record.Status = models.ExtractionStatusFailed
		// Driver errors can embed connection strings; the ledger is
		// user-visible.
		record.Message = logging.SanitizeError(runErr)
		if err := s.history.Finalize(finalizeCtx, record.ID, record.Status, duration,
			record.ExtractedTableCount, record.TotalTableCount, record.Message); err != nil {
			s.logger.Error("Failed to finalize extraction record",
				zap.String("record_id", record.ID.String()),
				zap.Error(err))
		}
		s.logger.Error("Extraction failed",
			zap.String("datasource_id", datasourceID.String()),
			zap.Int64("duration_seconds", duration),
			zap.String("error", record.Message))
		return record, runErr
	}

	record.Status = models.ExtractionStatusSuccess
	record.ExtractedTableCount = extracted.TablesWritten
	record.Message = fmt.Sprintf("extracted %d tables, %d columns, %d relationships",
		extracted.TablesWritten, extracted.ColumnsWritten, extracted.RelationshipsWritten)
	if err := s.history.Finalize(finalizeCtx, record.ID, record.Status, duration,
		record.ExtractedTableCount, record.TotalTableCount, record.Message); err != nil {
		s.logger.Error("Failed to finalize extraction record",
			zap.String("record_id", record.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("Extraction finished",
		zap.String("datasource_id", datasourceID.String()),
		zap.Int("tables", extracted.TablesWritten),
		zap.Int("columns", extracted.ColumnsWritten),
		zap.Int("versions_bumped", extracted.VersionsBumped),
		zap.Int64("duration_seconds", duration))
	return record, nil
}

func (s *extractionService) run(ctx context.Context, dsType string, datasourceID uuid.UUID, cfg source.ConnConfig, record *models.ExtractionRecord) (*repositories.SnapshotResult, error) {
	conn, err := s.factory.NewConnector(ctx, dsType, cfg)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tables, err := conn.ListSchema(ctx)
	if err != nil {
		return nil, err
	}
	record.TotalTableCount = len(tables)

	// Connectors filter system schemas in SQL already; anything that slips
	// through still counts toward the total but is never cataloged.
	kept := make([]source.ExtractedTable, 0, len(tables))
	for _, t := range tables {
		if source.IsSystemSchema(t.SchemaName) {
			continue
		}
		kept = append(kept, t)
	}

	result, err := s.catalog.CommitSnapshot(ctx, datasourceID, kept)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *extractionService) acquire(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[id] {
		return false
	}
	s.inFlight[id] = true
	return true
}

func (s *extractionService) release(id uuid.UUID) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}
