package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/stretchr/testify/mock"
)

// MockAdapter is a testify mock for chat.ProviderAdapter
type MockAdapter struct {
	mock.Mock
	desc chat.Descriptor
}

func (m *MockAdapter) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	args := m.Called(ctx, history)
	return args.Get(0).(chat.ChatMessage), args.Error(1)
}

func (m *MockAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockAdapter) Describe() chat.Descriptor {
	return m.desc
}

// MockFactory is a testify mock for chat.AdapterFactory
type MockFactory struct {
	mock.Mock
}

func (m *MockFactory) Create(provider, model string) (chat.ProviderAdapter, error) {
	args := m.Called(provider, model)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(chat.ProviderAdapter), args.Error(1)
}

// MockTracker is a testify mock for persistence.ExchangeTracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) TrackExchange(ctx context.Context, event persistence.ExchangeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// staticAdapter answers every call with a fixed text
type staticAdapter struct {
	name string
	at   func() time.Time
}

func (a *staticAdapter) Chat(ctx context.Context, history []chat.ChatMessage) (chat.ChatMessage, error) {
	return chat.NewMessage(chat.SessionIDOf(history), chat.RoleAssistant, a.name, a.at()), nil
}

func (a *staticAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, chat.ErrNotImplemented
}

func (a *staticAdapter) Describe() chat.Descriptor {
	return chat.Descriptor{Provider: a.name, Model: a.name + "-model"}
}

// memStore is an in-memory MessageStore and MessageRepository
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	records   []*persistence.MessageRecord
	entries   []catalog.ModelEntry
	appendErr error
}

func newMemStore(entries ...catalog.ModelEntry) *memStore {
	return &memStore{entries: entries}
}

func (s *memStore) FindMessages(ctx context.Context, sessionID string) ([]chat.ChatMessage, error) {
	records, err := s.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.ChatMessage, 0, len(records))
	for _, r := range records {
		out = append(out, r.ToMessage())
	}
	return out, nil
}

func (s *memStore) Append(ctx context.Context, msg chat.ChatMessage) error {
	return s.AppendMessages(ctx, msg)
}

func (s *memStore) AppendMessages(ctx context.Context, msgs ...chat.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	for _, m := range msgs {
		s.nextID++
		r := persistence.NewMessageRecord(m)
		r.ID = s.nextID
		s.records = append(s.records, r)
	}
	return nil
}

func (s *memStore) FindModelEntries(ctx context.Context, provider, modelName string) ([]catalog.ModelEntry, error) {
	var out []catalog.ModelEntry
	for _, e := range s.entries {
		if (provider == "" || e.Provider == provider) && (modelName == "" || e.Name == modelName) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) Create(ctx context.Context, entity *persistence.MessageRecord) error {
	return s.AppendMessages(ctx, entity.ToMessage())
}

func (s *memStore) FindByID(ctx context.Context, id uint) (*persistence.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("record not found")
}

func (s *memStore) Delete(ctx context.Context, id uint) error {
	return errors.New("not supported")
}

func (s *memStore) FindBySession(ctx context.Context, sessionID string) ([]*persistence.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*persistence.MessageRecord
	for _, r := range s.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) CreateBatch(ctx context.Context, records []*persistence.MessageRecord) error {
	for _, r := range records {
		if err := s.Create(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// memConfigs is an in-memory ModelConfigRepository
type memConfigs struct {
	rows []*persistence.AppConfig
}

func (c *memConfigs) FindAll(ctx context.Context) ([]*persistence.AppConfig, error) {
	return c.rows, nil
}

func (c *memConfigs) Find(ctx context.Context, provider, modelName string) ([]*persistence.AppConfig, error) {
	var out []*persistence.AppConfig
	for _, r := range c.rows {
		if (provider == "" || r.Provider == provider) && (modelName == "" || r.ModelName == modelName) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *memConfigs) Count(ctx context.Context) (int64, error) {
	return int64(len(c.rows)), nil
}

func (c *memConfigs) Replace(ctx context.Context, entries []catalog.ModelEntry) error {
	c.rows = nil
	for i, e := range entries {
		c.rows = append(c.rows, &persistence.AppConfig{ID: uint(i + 1), Provider: e.Provider, ModelName: e.Name, ModelType: e.ModelType})
	}
	return nil
}

// stepClock returns t0, t0+step, t0+2*step, ...
func stepClock(t0 time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
