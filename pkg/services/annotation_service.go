package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// ColumnCommentEdit is one column annotation in a batch. An empty comment
// clears the annotation.
type ColumnCommentEdit struct {
	ColumnID uuid.UUID `json:"column_id"`
	Comment  string    `json:"comment"`
}

// AnnotationService applies user comments to the catalog. Annotations are
// user data: they are kept across re-extractions and never count as
// structural changes.
type AnnotationService interface {
	// UpdateTableComment sets or clears one table's comment, rejecting the
	// write when the table's version moved past expectedVersion.
	UpdateTableComment(ctx context.Context, tableID uuid.UUID, comment string, expectedVersion int64) error

	// UpdateColumnComments applies a batch of column edits all-or-nothing.
	// All columns must belong to the same table.
	UpdateColumnComments(ctx context.Context, edits []ColumnCommentEdit, expectedTableVersion int64) error
}

type annotationService struct {
	catalog repositories.CatalogRepository
	logger  *zap.Logger
}

// NewAnnotationService creates an AnnotationService.
func NewAnnotationService(catalog repositories.CatalogRepository, logger *zap.Logger) AnnotationService {
	return &annotationService{
		catalog: catalog,
		logger:  logger.Named("annotation-service"),
	}
}

var _ AnnotationService = (*annotationService)(nil)

func (s *annotationService) UpdateTableComment(ctx context.Context, tableID uuid.UUID, comment string, expectedVersion int64) error {
	if err := s.catalog.UpdateTableComment(ctx, tableID, emptyToNil(comment), expectedVersion); err != nil {
		return err
	}
	s.logger.Info("Table comment updated", zap.String("table_id", tableID.String()))
	return nil
}

func (s *annotationService) UpdateColumnComments(ctx context.Context, edits []ColumnCommentEdit, expectedTableVersion int64) error {
	if len(edits) == 0 {
		return fmt.Errorf("at least one comment edit is required: %w", apperrors.ErrValidation)
	}

	byColumn := make(map[uuid.UUID]*string, len(edits))
	for _, edit := range edits {
		if edit.ColumnID == uuid.Nil {
			return fmt.Errorf("column_id is required: %w", apperrors.ErrValidation)
		}
		if _, dup := byColumn[edit.ColumnID]; dup {
			return fmt.Errorf("duplicate column_id %s: %w", edit.ColumnID, apperrors.ErrValidation)
		}
		byColumn[edit.ColumnID] = emptyToNil(edit.Comment)
	}

	if err := s.catalog.UpdateColumnComments(ctx, byColumn, expectedTableVersion); err != nil {
		return err
	}
	s.logger.Info("Column comments updated", zap.Int("count", len(edits)))
	return nil
}

// emptyToNil maps an empty comment to NULL so cleared annotations don't
// linger as empty strings.
func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
