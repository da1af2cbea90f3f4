package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metacat-dev/metacat/pkg/adapters/source"
	"github.com/metacat-dev/metacat/pkg/apperrors"
	"github.com/metacat-dev/metacat/pkg/models"
	"github.com/metacat-dev/metacat/pkg/repositories"
)

// mockDatasourceRepo implements repositories.DatasourceRepository for testing.
type mockDatasourceRepo struct {
	stored    map[uuid.UUID]*models.DataSource
	passwords map[uuid.UUID]string
	createErr error
}

func newMockDatasourceRepo() *mockDatasourceRepo {
	return &mockDatasourceRepo{
		stored:    make(map[uuid.UUID]*models.DataSource),
		passwords: make(map[uuid.UUID]string),
	}
}

func (m *mockDatasourceRepo) Create(_ context.Context, ds *models.DataSource, encryptedPassword string) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.stored {
		if existing.Name == ds.Name {
			return apperrors.ErrConflict
		}
	}
	ds.ID = uuid.New()
	ds.CreatedAt = time.Now()
	ds.UpdatedAt = ds.CreatedAt
	m.stored[ds.ID] = ds
	m.passwords[ds.ID] = encryptedPassword
	return nil
}

func (m *mockDatasourceRepo) GetByID(_ context.Context, id uuid.UUID) (*models.DataSource, string, error) {
	ds, ok := m.stored[id]
	if !ok {
		return nil, "", apperrors.ErrNotFound
	}
	copied := *ds
	return &copied, m.passwords[id], nil
}

func (m *mockDatasourceRepo) GetByName(_ context.Context, name string) (*models.DataSource, string, error) {
	for id, ds := range m.stored {
		if ds.Name == name {
			copied := *ds
			return &copied, m.passwords[id], nil
		}
	}
	return nil, "", apperrors.ErrNotFound
}

func (m *mockDatasourceRepo) List(_ context.Context) ([]*models.DataSource, error) {
	out := make([]*models.DataSource, 0, len(m.stored))
	for _, ds := range m.stored {
		copied := *ds
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockDatasourceRepo) Update(_ context.Context, ds *models.DataSource, encryptedPassword string) error {
	if _, ok := m.stored[ds.ID]; !ok {
		return apperrors.ErrNotFound
	}
	copied := *ds
	m.stored[ds.ID] = &copied
	if encryptedPassword != "" {
		m.passwords[ds.ID] = encryptedPassword
	}
	return nil
}

func (m *mockDatasourceRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.stored[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.stored, id)
	delete(m.passwords, id)
	return nil
}

func (m *mockDatasourceRepo) Count(_ context.Context) (int, error) {
	return len(m.stored), nil
}

var _ repositories.DatasourceRepository = (*mockDatasourceRepo)(nil)

// mockConnector implements source.Connector for testing.
type mockConnector struct {
	testErr   error
	schema    []source.ExtractedTable
	schemaErr error
	blockCh   chan struct{}
	closed    bool
}

func (m *mockConnector) TestConnection(_ context.Context) error { return m.testErr }

func (m *mockConnector) ListSchema(_ context.Context) ([]source.ExtractedTable, error) {
	if m.blockCh != nil {
		<-m.blockCh
	}
	if m.schemaErr != nil {
		return nil, m.schemaErr
	}
	return m.schema, nil
}

func (m *mockConnector) Close() error {
	m.closed = true
	return nil
}

var _ source.Connector = (*mockConnector)(nil)

// mockFactory implements source.ConnectorFactory for testing.
type mockFactory struct {
	mu         sync.Mutex
	conn       *mockConnector
	err        error
	lastType   string
	lastConfig source.ConnConfig
}

func (m *mockFactory) NewConnector(_ context.Context, dsType string, cfg source.ConnConfig) (source.Connector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastType = dsType
	m.lastConfig = cfg
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *mockFactory) ListTypes() []source.DriverInfo {
	return []source.DriverInfo{
		{Type: models.DatasourceTypePostgres, DisplayName: "PostgreSQL"},
		{Type: models.DatasourceTypeMySQL, DisplayName: "MySQL"},
		{Type: models.DatasourceTypeSQLServer, DisplayName: "SQL Server"},
		{Type: models.DatasourceTypeStarRocks, DisplayName: "StarRocks"},
	}
}

var _ source.ConnectorFactory = (*mockFactory)(nil)

// mockCatalogRepo implements repositories.CatalogRepository for testing.
type mockCatalogRepo struct {
	mu            sync.Mutex
	commits       int
	commitErr     error
	result        repositories.SnapshotResult
	tables        map[uuid.UUID]*models.TableMeta
	tableComments map[uuid.UUID]*string
	columnEdits   map[uuid.UUID]*string
	editsErr      error
}

func newMockCatalogRepo() *mockCatalogRepo {
	return &mockCatalogRepo{
		tables:        make(map[uuid.UUID]*models.TableMeta),
		tableComments: make(map[uuid.UUID]*string),
		columnEdits:   make(map[uuid.UUID]*string),
	}
}

func (m *mockCatalogRepo) CommitSnapshot(_ context.Context, _ uuid.UUID, _ []source.ExtractedTable) (*repositories.SnapshotResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return nil, m.commitErr
	}
	m.commits++
	result := m.result
	return &result, nil
}

func (m *mockCatalogRepo) GetTable(_ context.Context, id uuid.UUID) (*models.TableMeta, error) {
	t, ok := m.tables[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *mockCatalogRepo) GetTableRelations(_ context.Context, _ uuid.UUID) ([]models.RelatedTable, error) {
	return nil, nil
}

func (m *mockCatalogRepo) ListTables(_ context.Context, datasourceID uuid.UUID, _, _ int, _, _ string) ([]*models.TableMeta, int, error) {
	var out []*models.TableMeta
	for _, t := range m.tables {
		if t.DataSourceID == datasourceID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

func (m *mockCatalogRepo) UpdateColumnComments(_ context.Context, edits map[uuid.UUID]*string, expectedTableVersion int64) error {
	if m.editsErr != nil {
		return m.editsErr
	}
	for id, comment := range edits {
		m.columnEdits[id] = comment
	}
	return nil
}

func (m *mockCatalogRepo) UpdateTableComment(_ context.Context, tableID uuid.UUID, comment *string, expectedTableVersion int64) error {
	if m.editsErr != nil {
		return m.editsErr
	}
	t, ok := m.tables[tableID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if t.Version != expectedTableVersion {
		return apperrors.ErrVersionConflict
	}
	m.tableComments[tableID] = comment
	return nil
}

func (m *mockCatalogRepo) CountTables(_ context.Context) (int, error)  { return len(m.tables), nil }
func (m *mockCatalogRepo) CountColumns(_ context.Context) (int, error) { return 0, nil }

func (m *mockCatalogRepo) TableDistribution(_ context.Context) ([]models.DatasourceTableCount, error) {
	return nil, nil
}

var _ repositories.CatalogRepository = (*mockCatalogRepo)(nil)

// mockHistoryRepo implements repositories.HistoryRepository for testing.
type mockHistoryRepo struct {
	mu      sync.Mutex
	records []*models.ExtractionRecord

	// finalizeCtxErrs records ctx.Err() at each Finalize call, so tests can
	// assert the ledger write ran on a live context.
	finalizeCtxErrs []error
}

func (m *mockHistoryRepo) Append(_ context.Context, record *models.ExtractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = uuid.New()
	copied := *record
	m.records = append(m.records, &copied)
	return nil
}

func (m *mockHistoryRepo) Finalize(ctx context.Context, id uuid.UUID, status string, durationSeconds int64, extracted, total int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizeCtxErrs = append(m.finalizeCtxErrs, ctx.Err())
	for _, r := range m.records {
		if r.ID == id {
			if r.IsTerminal() {
				return apperrors.ErrConflict
			}
			r.Status = status
			r.DurationSeconds = durationSeconds
			r.ExtractedTableCount = extracted
			r.TotalTableCount = total
			r.Message = message
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockHistoryRepo) Query(_ context.Context, filter models.HistoryFilter) ([]*models.ExtractionRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ExtractionRecord
	for _, r := range m.records {
		if filter.DataSourceID != uuid.Nil && r.DataSourceID != filter.DataSourceID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	total := len(out)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = 20
	}
	offset := (page - 1) * perPage
	if offset >= total {
		return []*models.ExtractionRecord{}, total, nil
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockHistoryRepo) Latest(_ context.Context) (*models.ExtractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	copied := *m.records[len(m.records)-1]
	return &copied, nil
}

func (m *mockHistoryRepo) FailStaleRunning(_ context.Context, message string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.Status == models.ExtractionStatusRunning {
			r.Status = models.ExtractionStatusFailed
			r.Message = message
			n++
		}
	}
	return n, nil
}

var _ repositories.HistoryRepository = (*mockHistoryRepo)(nil)

// mockTaskRepo implements repositories.TaskRepository for testing.
type mockTaskRepo struct {
	tasks    map[uuid.UUID]*models.ExtractionTask
	runTimes map[uuid.UUID]time.Time
}

func newMockTaskRepo() *mockTaskRepo {
	return &mockTaskRepo{
		tasks:    make(map[uuid.UUID]*models.ExtractionTask),
		runTimes: make(map[uuid.UUID]time.Time),
	}
}

func (m *mockTaskRepo) Create(_ context.Context, task *models.ExtractionTask) error {
	task.ID = uuid.New()
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ExtractionTask, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *mockTaskRepo) List(_ context.Context) ([]*models.ExtractionTask, error) {
	out := make([]*models.ExtractionTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

func (m *mockTaskRepo) Update(_ context.Context, task *models.ExtractionTask) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return apperrors.ErrNotFound
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *mockTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskRepo) ListDue(_ context.Context, now time.Time) ([]*models.ExtractionTask, error) {
	var out []*models.ExtractionTask
	for _, t := range m.tasks {
		if t.IsActive() && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockTaskRepo) UpdateRunTimes(_ context.Context, id uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	t, ok := m.tasks[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.LastRunAt = &lastRun
	t.NextRunAt = nextRun
	m.runTimes[id] = lastRun
	return nil
}

func (m *mockTaskRepo) Reschedule(_ context.Context, id uuid.UUID, nextRun *time.Time) error {
	t, ok := m.tasks[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.NextRunAt = nextRun
	return nil
}

func (m *mockTaskRepo) Count(_ context.Context) (int, error) { return len(m.tasks), nil }

var _ repositories.TaskRepository = (*mockTaskRepo)(nil)
