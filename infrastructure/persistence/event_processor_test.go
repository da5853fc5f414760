package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExchangeRepository is a mock implementation of persistence.ExchangeRepository
type MockExchangeRepository struct {
	mock.Mock
}

func (m *MockExchangeRepository) Create(ctx context.Context, entity *persistence.ExchangeRecord) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

func (m *MockExchangeRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.ExchangeRecord, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*persistence.ExchangeRecord), args.Error(1)
}

func (m *MockExchangeRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(*persistence.AggregatedMetrics), args.Error(1)
}

func TestEventProcessor_StartStop(t *testing.T) {
	processor := NewEventProcessor(&MockExchangeRepository{}, 2, 10)

	assert.False(t, processor.Health().IsRunning)

	require.NoError(t, processor.Start(context.Background()))
	assert.True(t, processor.Health().IsRunning)

	assert.Error(t, processor.Start(context.Background()), "second start must fail")

	require.NoError(t, processor.Stop())
	assert.False(t, processor.Health().IsRunning)

	// stopping twice is a no-op, restarting is refused
	require.NoError(t, processor.Stop())
	assert.Error(t, processor.Start(context.Background()))
}

func TestEventProcessor_NotRunning(t *testing.T) {
	processor := NewEventProcessor(&MockExchangeRepository{}, 1, 1)

	err := processor.ProcessEvent(persistence.ExchangeEvent{})
	assert.Error(t, err)
}

func TestEventProcessor_RecordsExchange(t *testing.T) {
	repo := &MockExchangeRepository{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *persistence.ExchangeRecord) bool {
		return r.SessionID == "s1" &&
			r.Provider == "ollama" &&
			r.Model == "llama3.2:3b" &&
			r.Status == persistence.ExchangeStatusCompleted &&
			r.LatencyMs == 120
	})).Return(nil).Once()

	processor := NewEventProcessor(repo, 1, 10)
	require.NoError(t, processor.Start(context.Background()))

	tracker := NewExchangeTracker(processor)
	require.NoError(t, tracker.TrackExchange(context.Background(), persistence.ExchangeEvent{
		SessionID: "s1",
		Provider:  "ollama",
		Model:     "llama3.2:3b",
		Status:    persistence.ExchangeStatusCompleted,
		LatencyMs: 120,
	}))

	// Stop drains the queue
	require.NoError(t, processor.Stop())

	repo.AssertExpectations(t)
	health := processor.Health()
	assert.Equal(t, int64(1), health.ProcessedCount)
	assert.Equal(t, int64(0), health.ErrorCount)
	require.NotNil(t, health.LastProcessedAt)
	assert.WithinDuration(t, time.Now(), *health.LastProcessedAt, 5*time.Second)
}

func TestEventProcessor_FillsUnknownProviderAndModel(t *testing.T) {
	repo := &MockExchangeRepository{}
	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *persistence.ExchangeRecord) bool {
		return r.Provider == "unknown" && r.Model == "unknown" && r.Status == persistence.ExchangeStatusFailed
	})).Return(nil).Once()

	processor := NewEventProcessor(repo, 1, 10)
	require.NoError(t, processor.Start(context.Background()))
	require.NoError(t, processor.ProcessEvent(persistence.ExchangeEvent{Status: persistence.ExchangeStatusFailed, Error: "no adapter"}))
	require.NoError(t, processor.Stop())

	repo.AssertExpectations(t)
}

func TestEventProcessor_RepositoryError(t *testing.T) {
	repo := &MockExchangeRepository{}
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("database is locked")).Once()

	processor := NewEventProcessor(repo, 1, 10)
	require.NoError(t, processor.Start(context.Background()))
	require.NoError(t, processor.ProcessEvent(persistence.ExchangeEvent{Provider: "ollama", Model: "m"}))
	require.NoError(t, processor.Stop())

	health := processor.Health()
	assert.Equal(t, int64(0), health.ProcessedCount)
	assert.Equal(t, int64(1), health.ErrorCount)
}

func TestEventProcessor_UnknownEventType(t *testing.T) {
	processor := NewEventProcessor(&MockExchangeRepository{}, 1, 10)
	require.NoError(t, processor.Start(context.Background()))
	require.NoError(t, processor.ProcessEvent("not an event"))
	require.NoError(t, processor.Stop())

	assert.Equal(t, int64(1), processor.Health().ErrorCount)
}

func TestEventProcessor_QueueFull(t *testing.T) {
	release := make(chan struct{})
	repo := &MockExchangeRepository{}
	repo.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	processor := NewEventProcessor(repo, 1, 1)
	require.NoError(t, processor.Start(context.Background()))

	event := persistence.ExchangeEvent{Provider: "ollama", Model: "m"}

	// first event occupies the worker, second fills the buffer
	require.NoError(t, processor.ProcessEvent(event))
	require.Eventually(t, func() bool { return processor.Health().QueueSize == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, processor.ProcessEvent(event))

	err := processor.ProcessEvent(event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")

	close(release)
	require.NoError(t, processor.Stop())
	assert.Equal(t, int64(2), processor.Health().ProcessedCount)
	assert.Equal(t, int64(1), processor.Health().ErrorCount)
}
