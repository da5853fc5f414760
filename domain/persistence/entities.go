package persistence

import (
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRecord stores one chat turn
type MessageRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(36);not null;index:idx_messages_session_id_timestamp,priority:1" json:"session_id"`
	Sender    string    `gorm:"type:varchar(16);not null" json:"sender"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_session_id_timestamp,priority:2" json:"timestamp"`
}

// AppConfig stores one provider/model pair the service may switch to
type AppConfig struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider  string `gorm:"type:varchar(64);not null;index:ix_app_config_provider" json:"provider"`
	ModelName string `gorm:"type:varchar(128);not null" json:"model_name"`
	ModelType string `gorm:"type:varchar(32);not null" json:"model_type"`
}

// Document stores an uploaded file and its metadata
type Document struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename    string    `gorm:"type:varchar(255);not null" json:"filename"`
	MimeType    string    `gorm:"type:varchar(255);not null" json:"mime_type"`
	SizeBytes   int64     `gorm:"not null" json:"size_bytes"`
	Checksum    string    `gorm:"type:varchar(64);not null;index" json:"checksum"`
	StorageData []byte    `gorm:"not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// ExchangeStatus represents the outcome of a chat exchange
type ExchangeStatus string

const (
	ExchangeStatusCompleted ExchangeStatus = "completed"
	ExchangeStatusFailed    ExchangeStatus = "failed"
)

// ExchangeRecord stores latency and outcome of one model call
type ExchangeRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID string         `gorm:"type:varchar(36);index" json:"session_id"`
	Provider  string         `gorm:"type:varchar(64);not null;index:idx_exchanges_provider_model,priority:1" json:"provider"`
	Model     string         `gorm:"type:varchar(128);not null;index:idx_exchanges_provider_model,priority:2" json:"model"`
	Status    ExchangeStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	LatencyMs int64          `gorm:"default:0" json:"latency_ms"`
	Error     string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook for ExchangeRecord
func (e *ExchangeRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for MessageRecord
func (MessageRecord) TableName() string {
	return "messages"
}

// TableName returns the table name for AppConfig
func (AppConfig) TableName() string {
	return "app_config"
}

// TableName returns the table name for Document
func (Document) TableName() string {
	return "documents"
}

// TableName returns the table name for ExchangeRecord
func (ExchangeRecord) TableName() string {
	return "chat_exchanges"
}

// NewMessageRecord converts a chat message into its storage row
func NewMessageRecord(msg chat.ChatMessage) *MessageRecord {
	return &MessageRecord{
		SessionID: msg.SessionID,
		Sender:    string(msg.Sender),
		Message:   msg.Text,
		Timestamp: msg.Timestamp,
	}
}

// ToMessage converts a storage row back into a chat message
func (m *MessageRecord) ToMessage() chat.ChatMessage {
	return chat.ChatMessage{
		SessionID: m.SessionID,
		Sender:    chat.Role(m.Sender),
		Text:      m.Message,
		Timestamp: m.Timestamp.UTC(),
	}
}

// ToModelEntry converts an app_config row into a catalog entry
func (a *AppConfig) ToModelEntry() catalog.ModelEntry {
	return catalog.ModelEntry{
		Provider:  a.Provider,
		Name:      a.ModelName,
		ModelType: a.ModelType,
	}
}

// ExchangeEvent carries the data for one exchange record
type ExchangeEvent struct {
	SessionID string         `json:"session_id"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Status    ExchangeStatus `json:"status"`
	LatencyMs int64          `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
}

// PersistenceEvent wraps event data queued for asynchronous processing
type PersistenceEvent[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeRecordExchange EventType = "record_exchange"
)
