package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
)

// ErrNotFound is wrapped by repositories when a row does not exist
var ErrNotFound = errors.New("record not found")

// Repository defines the generic repository interface using Go generics
type Repository[T any, K comparable] interface {
	Create(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id K) (*T, error)
	Delete(ctx context.Context, id K) error
}

// MessageRepository defines operations on stored chat turns
type MessageRepository interface {
	Repository[MessageRecord, uint]

	// FindBySession returns a session's messages ordered by timestamp ascending
	FindBySession(ctx context.Context, sessionID string) ([]*MessageRecord, error)
	CreateBatch(ctx context.Context, records []*MessageRecord) error
}

// ModelConfigRepository defines operations on the app_config table
type ModelConfigRepository interface {
	FindAll(ctx context.Context) ([]*AppConfig, error)
	// Find filters by provider and model name; empty arguments match everything
	Find(ctx context.Context, provider, modelName string) ([]*AppConfig, error)
	Count(ctx context.Context) (int64, error)
	// Replace deletes all rows and inserts entries in one transaction
	Replace(ctx context.Context, entries []catalog.ModelEntry) error
}

// DocumentRepository defines operations on uploaded documents
type DocumentRepository interface {
	Repository[Document, uint]

	// FindAll returns documents newest first
	FindAll(ctx context.Context) ([]*Document, error)
}

// ExchangeRepository defines operations on exchange metrics
type ExchangeRepository interface {
	Create(ctx context.Context, entity *ExchangeRecord) error
	FindRecent(ctx context.Context, limit int) ([]*ExchangeRecord, error)
	GetAggregatedMetrics(ctx context.Context, limit int) (*AggregatedMetrics, error)
}

// MessageStore is the persistence collaborator of the chat core
type MessageStore interface {
	// FindMessages returns the ordered history of a session, empty if none
	FindMessages(ctx context.Context, sessionID string) ([]chat.ChatMessage, error)

	// Append persists a single message
	Append(ctx context.Context, msg chat.ChatMessage) error

	// AppendMessages persists all messages atomically
	AppendMessages(ctx context.Context, msgs ...chat.ChatMessage) error

	// FindModelEntries lists configured provider/model pairs; empty filters match everything
	FindModelEntries(ctx context.Context, provider, modelName string) ([]catalog.ModelEntry, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent sends an event to be processed asynchronously
	ProcessEvent(event any) error

	// Health returns the health status of the processor
	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning       bool       `json:"is_running"`
	QueueSize       int        `json:"queue_size"`
	ProcessedCount  int64      `json:"processed_count"`
	ErrorCount      int64      `json:"error_count"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// AggregatedMetrics represents aggregated exchange metrics
type AggregatedMetrics struct {
	TotalExchanges   int64   `json:"total_exchanges"`
	FailedExchanges  int64   `json:"failed_exchanges"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	ErrorRate        float64 `json:"error_rate"`
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	// Connect establishes database connection
	Connect(ctx context.Context, dsn string) error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations
	Migrate() error

	// Health checks database connectivity
	Health(ctx context.Context) error
}

// TransactionManager defines interface for database transactions
type TransactionManager interface {
	// WithTransaction executes a function within a database transaction
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ExchangeTracker records the outcome of model calls
type ExchangeTracker interface {
	TrackExchange(ctx context.Context, event ExchangeEvent) error
}
