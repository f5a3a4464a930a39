package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
)

// MockSnapshotArchiveRepository is a testify mock of
// repository.SnapshotArchiveRepository.
type MockSnapshotArchiveRepository struct {
	mock.Mock
}

func (m *MockSnapshotArchiveRepository) SaveSnapshot(ctx context.Context, record *domain.SnapshotRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockSnapshotArchiveRepository) GetLatest(ctx context.Context, roomID string) (*domain.SnapshotRecord, error) {
	args := m.Called(ctx, roomID)
	var record *domain.SnapshotRecord
	if args.Get(0) != nil {
		record = args.Get(0).(*domain.SnapshotRecord)
	}
	return record, args.Error(1)
}
