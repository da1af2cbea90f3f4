package handlers

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/services"
)

func authFailedErr() error {
	return &source.ConnectorError{Kind: source.KindAuthFailed, Err: errors.New("password authentication failed")}
}

// mockDatasourceService is a stub for services.DatasourceService.
type mockDatasourceService struct {
	datasources map[uuid.UUID]*models.DataSource
	createErr   error
	testErr     error

	lastInput services.DatasourceInput
}

func newMockDatasourceService() *mockDatasourceService {
	return &mockDatasourceService{datasources: make(map[uuid.UUID]*models.DataSource)}
}

func (m *mockDatasourceService) Create(_ context.Context, input services.DatasourceInput) (*models.DataSource, error) {
	m.lastInput = input
	if m.createErr != nil {
		return nil, m.createErr
	}
	ds := &models.DataSource{
		ID:       uuid.New(),
		Name:     input.Name,
		Type:     input.Type,
		Host:     input.Host,
		Port:     input.Port,
		Username: input.Username,
		Database: input.Database,
	}
	m.datasources[ds.ID] = ds
	return ds, nil
}

func (m *mockDatasourceService) GetByID(_ context.Context, id uuid.UUID) (*models.DataSource, error) {
	ds, ok := m.datasources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return ds, nil
}

func (m *mockDatasourceService) List(_ context.Context) ([]*models.DataSource, error) {
	out := make([]*models.DataSource, 0, len(m.datasources))
	for _, ds := range m.datasources {
		out = append(out, ds)
	}
	return out, nil
}

func (m *mockDatasourceService) Update(_ context.Context, id uuid.UUID, input services.DatasourceInput) (*models.DataSource, error) {
	m.lastInput = input
	ds, ok := m.datasources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	ds.Name = input.Name
	return ds, nil
}

func (m *mockDatasourceService) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.datasources[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.datasources, id)
	return nil
}

func (m *mockDatasourceService) TestStored(_ context.Context, id uuid.UUID) error {
	if _, ok := m.datasources[id]; !ok {
		return apperrors.ErrNotFound
	}
	return m.testErr
}

func (m *mockDatasourceService) TestInput(_ context.Context, input services.DatasourceInput) error {
	m.lastInput = input
	return m.testErr
}

func (m *mockDatasourceService) ConnConfig(_ context.Context, id uuid.UUID) (*models.DataSource, source.ConnConfig, error) {
	ds, ok := m.datasources[id]
	if !ok {
		return nil, source.ConnConfig{}, apperrors.ErrNotFound
	}
	return ds, source.ConnConfig{Host: ds.Host, Port: ds.Port}, nil
}

func (m *mockDatasourceService) SupportedTypes() []source.DriverInfo {
	return []source.DriverInfo{
		{Type: "postgres", DisplayName: "PostgreSQL"},
		{Type: "mysql", DisplayName: "MySQL"},
	}
}

var _ services.DatasourceService = (*mockDatasourceService)(nil)

// mockExtractionService is a stub for services.ExtractionService.
type mockExtractionService struct {
	record *models.ExtractionRecord
	err    error

	lastDatasourceID uuid.UUID
	lastTaskID       *uuid.UUID
}

func (m *mockExtractionService) Extract(_ context.Context, datasourceID uuid.UUID, taskID *uuid.UUID) (*models.ExtractionRecord, error) {
	m.lastDatasourceID = datasourceID
	m.lastTaskID = taskID
	if m.err != nil {
		return m.record, m.err
	}
	return m.record, nil
}

var _ services.ExtractionService = (*mockExtractionService)(nil)

// mockCatalogService is a stub for services.CatalogService.
type mockCatalogService struct {
	tables     []*models.TableMeta
	pagination models.Pagination
	detail     *services.TableDetail
	columns    []models.ColumnMeta
	err        error

	lastSortBy    string
	lastSortOrder string
	lastPage      int
	lastPerPage   int
}

func (m *mockCatalogService) ListTables(_ context.Context, _ uuid.UUID, page, perPage int, sortBy, sortOrder string) ([]*models.TableMeta, models.Pagination, error) {
	m.lastPage, m.lastPerPage = page, perPage
	m.lastSortBy, m.lastSortOrder = sortBy, sortOrder
	if m.err != nil {
		return nil, models.Pagination{}, m.err
	}
	return m.tables, m.pagination, nil
}

func (m *mockCatalogService) GetTable(_ context.Context, _ uuid.UUID) (*services.TableDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *mockCatalogService) GetColumns(_ context.Context, _ uuid.UUID) ([]models.ColumnMeta, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.columns, nil
}

var _ services.CatalogService = (*mockCatalogService)(nil)

// mockAnnotationService is a stub for services.AnnotationService.
type mockAnnotationService struct {
	err error

	lastTableID         uuid.UUID
	lastComment         string
	lastExpectedVersion int64
	lastEdits           []services.ColumnCommentEdit
}

func (m *mockAnnotationService) UpdateTableComment(_ context.Context, tableID uuid.UUID, comment string, expectedVersion int64) error {
	m.lastTableID = tableID
	m.lastComment = comment
	m.lastExpectedVersion = expectedVersion
	return m.err
}

func (m *mockAnnotationService) UpdateColumnComments(_ context.Context, edits []services.ColumnCommentEdit, expectedTableVersion int64) error {
	m.lastEdits = edits
	m.lastExpectedVersion = expectedTableVersion
	return m.err
}

var _ services.AnnotationService = (*mockAnnotationService)(nil)

// mockTaskService is a stub for services.TaskService.
type mockTaskService struct {
	tasks      map[uuid.UUID]*models.ExtractionTask
	record     *models.ExtractionRecord
	executeErr error
	createErr  error

	lastInput services.TaskInput
}

func newMockTaskService() *mockTaskService {
	return &mockTaskService{tasks: make(map[uuid.UUID]*models.ExtractionTask)}
}

func (m *mockTaskService) Create(_ context.Context, input services.TaskInput) (*models.ExtractionTask, error) {
	m.lastInput = input
	if m.createErr != nil {
		return nil, m.createErr
	}
	task := &models.ExtractionTask{
		ID:           uuid.New(),
		Name:         input.Name,
		DataSourceID: input.DataSourceID,
		Schedule:     input.Schedule,
		Status:       models.TaskStatusActive,
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *mockTaskService) GetByID(_ context.Context, id uuid.UUID) (*models.ExtractionTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return task, nil
}

func (m *mockTaskService) List(_ context.Context) ([]*models.ExtractionTask, error) {
	out := make([]*models.ExtractionTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		out = append(out, task)
	}
	return out, nil
}

func (m *mockTaskService) Update(_ context.Context, id uuid.UUID, input services.TaskInput) (*models.ExtractionTask, error) {
	m.lastInput = input
	task, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	task.Name = input.Name
	return task, nil
}

func (m *mockTaskService) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskService) Execute(_ context.Context, id uuid.UUID) (*models.ExtractionRecord, error) {
	if _, ok := m.tasks[id]; !ok {
		return nil, apperrors.ErrNotFound
	}
	if m.executeErr != nil {
		return m.record, m.executeErr
	}
	return m.record, nil
}

var _ services.TaskService = (*mockTaskService)(nil)

// mockHistoryService is a stub for services.HistoryService.
type mockHistoryService struct {
	records    []*models.ExtractionRecord
	pagination models.Pagination
	err        error

	lastFilter models.HistoryFilter
}

func (m *mockHistoryService) Query(_ context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, models.Pagination, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, models.Pagination{}, m.err
	}
	return m.records, m.pagination, nil
}

var _ services.HistoryService = (*mockHistoryService)(nil)
