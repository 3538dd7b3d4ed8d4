package mocks

import (
	"context"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/diff"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/drilldown"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockSnapshotRepository is a mock implementation of ports.SnapshotRepository
type MockSnapshotRepository struct {
	mock.Mock
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{}
}

func (m *MockSnapshotRepository) Create(ctx context.Context, date time.Time, snapshot *domain.Snapshot) (*domain.StoredSnapshot, error) {
	args := m.Called(ctx, date, snapshot)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Get(ctx context.Context, date time.Time, snapshotType string) (*domain.StoredSnapshot, error) {
	args := m.Called(ctx, date, snapshotType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) List(ctx context.Context, r domain.DateRange) ([]*domain.StoredSnapshot, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StoredSnapshot), args.Error(1)
}

func (m *MockSnapshotRepository) Delete(ctx context.Context, date time.Time, snapshotType string) (bool, error) {
	args := m.Called(ctx, date, snapshotType)
	return args.Bool(0), args.Error(1)
}

// MockTicketDetailRepository is a mock implementation of ports.TicketDetailRepository
type MockTicketDetailRepository struct {
	mock.Mock
}

func NewMockTicketDetailRepository() *MockTicketDetailRepository {
	return &MockTicketDetailRepository{}
}

func (m *MockTicketDetailRepository) GetDetails(ctx context.Context, ticketIDs []int64) ([]domain.DetailRecord, error) {
	args := m.Called(ctx, ticketIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetailRecord), args.Error(1)
}

func (m *MockTicketDetailRepository) Upsert(ctx context.Context, records []domain.DetailRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

// MockDetailCache is a mock implementation of ports.DetailCache
type MockDetailCache struct {
	mock.Mock
}

func NewMockDetailCache() *MockDetailCache {
	return &MockDetailCache{}
}

func (m *MockDetailCache) GetMany(ticketIDs []int64) (map[int64]domain.DetailRecord, []int64) {
	args := m.Called(ticketIDs)
	var found map[int64]domain.DetailRecord
	if args.Get(0) != nil {
		found = args.Get(0).(map[int64]domain.DetailRecord)
	}
	var missing []int64
	if args.Get(1) != nil {
		missing = args.Get(1).([]int64)
	}
	return found, missing
}

func (m *MockDetailCache) PutMany(records []domain.DetailRecord) {
	m.Called(records)
}

func (m *MockDetailCache) Invalidate(ticketIDs []int64) {
	m.Called(ticketIDs)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockTransactionManager runs the function inline, without a database.
type MockTransactionManager struct {
	mock.Mock
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx)
}

// MockSnapshotService is a mock implementation of ports.SnapshotService
type MockSnapshotService struct {
	mock.Mock
}

func NewMockSnapshotService() *MockSnapshotService {
	return &MockSnapshotService{}
}

func (m *MockSnapshotService) Capture(ctx context.Context, params ports.CaptureParams) (*ports.SnapshotResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SnapshotResult), args.Error(1)
}

func (m *MockSnapshotService) Import(ctx context.Context, params ports.ImportParams) (*ports.SnapshotResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.SnapshotResult), args.Error(1)
}

func (m *MockSnapshotService) Get(ctx context.Context, key ports.SnapshotKey) (*domain.StoredSnapshot, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredSnapshot), args.Error(1)
}

func (m *MockSnapshotService) List(ctx context.Context, r domain.DateRange) ([]*domain.StoredSnapshot, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.StoredSnapshot), args.Error(1)
}

func (m *MockSnapshotService) Delete(ctx context.Context, key ports.SnapshotKey, sectorID string) error {
	args := m.Called(ctx, key, sectorID)
	return args.Error(0)
}

func (m *MockSnapshotService) Compare(ctx context.Context, params ports.CompareParams) (*diff.Comparison, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*diff.Comparison), args.Error(1)
}

func (m *MockSnapshotService) Trends(ctx context.Context, params ports.TrendsParams) (*diff.MultiComparison, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*diff.MultiComparison), args.Error(1)
}

// MockDrillDownService is a mock implementation of ports.DrillDownService
type MockDrillDownService struct {
	mock.Mock
}

func NewMockDrillDownService() *MockDrillDownService {
	return &MockDrillDownService{}
}

func (m *MockDrillDownService) Stage(ctx context.Context, q ports.StageQuery) (*drilldown.Level1, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drilldown.Level1), args.Error(1)
}

func (m *MockDrillDownService) Employee(ctx context.Context, q ports.EmployeeQuery) (*drilldown.Level2, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drilldown.Level2), args.Error(1)
}

func (m *MockDrillDownService) Aging(ctx context.Context, q ports.AgingQuery) (*drilldown.Level3, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drilldown.Level3), args.Error(1)
}

func (m *MockDrillDownService) Tickets(ctx context.Context, q ports.TicketListQuery) (*ports.TicketList, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.TicketList), args.Error(1)
}

// MockTicketDetailService is a mock implementation of ports.TicketDetailService
type MockTicketDetailService struct {
	mock.Mock
}

func NewMockTicketDetailService() *MockTicketDetailService {
	return &MockTicketDetailService{}
}

func (m *MockTicketDetailService) Upsert(ctx context.Context, records []domain.DetailRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}
