package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// MockRoomArchiveRepository is a testify mock of
// repository.RoomArchiveRepository.
type MockRoomArchiveRepository struct {
	mock.Mock
}

func (m *MockRoomArchiveRepository) Save(ctx context.Context, record *domain.RoomRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRoomArchiveRepository) FindByRoomID(ctx context.Context, roomID string) (*domain.RoomRecord, error) {
	args := m.Called(ctx, roomID)
	var record *domain.RoomRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*domain.RoomRecord)
	}
	return record, args.Error(1)
}

func (m *MockRoomArchiveRepository) MarkEnded(ctx context.Context, roomID string, endedAt time.Time) error {
	args := m.Called(ctx, roomID, endedAt)
	return args.Error(0)
}

func (m *MockRoomArchiveRepository) FindExpiredActive(ctx context.Context, cutoff time.Time) ([]domain.RoomRecord, error) {
	args := m.Called(ctx, cutoff)
	var records []domain.RoomRecord
	if args.Get(0) != nil {
		records = args.Get(0).([]domain.RoomRecord)
	}
	return records, args.Error(1)
}

func (m *MockRoomArchiveRepository) ListActiveRoomIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if args.Get(0) != nil {
		ids = args.Get(0).([]string)
	}
	return ids, args.Error(1)
}
