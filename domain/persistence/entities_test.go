package persistence

import (
	"testing"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "messages", MessageRecord{}.TableName())
	assert.Equal(t, "app_config", AppConfig{}.TableName())
	assert.Equal(t, "documents", Document{}.TableName())
	assert.Equal(t, "chat_exchanges", ExchangeRecord{}.TableName())
}

func TestMessageRecord_Conversion(t *testing.T) {
	at := time.Date(2026, 1, 5, 21, 43, 17, 262758000, time.UTC)
	msg := chat.NewMessage("session-1", chat.RoleAssistant, "Hi there", at)

	record := NewMessageRecord(msg)
	assert.Zero(t, record.ID)
	assert.Equal(t, "session-1", record.SessionID)
	assert.Equal(t, "assistant", record.Sender)
	assert.Equal(t, "Hi there", record.Message)

	assert.Equal(t, msg, record.ToMessage())
}

func TestMessageRecord_ToMessageNormalizesZone(t *testing.T) {
	local := time.Date(2026, 1, 5, 22, 0, 0, 0, time.FixedZone("CET", 3600))
	record := &MessageRecord{SessionID: "s", Sender: "user", Message: "x", Timestamp: local}

	msg := record.ToMessage()
	assert.Equal(t, time.UTC, msg.Timestamp.Location())
	assert.True(t, msg.Timestamp.Equal(local))
}

func TestAppConfig_ToModelEntry(t *testing.T) {
	row := &AppConfig{ID: 3, Provider: "ollama", ModelName: "llama3.2:3b", ModelType: "chat"}

	entry := row.ToModelEntry()
	assert.Equal(t, "ollama", entry.Provider)
	assert.Equal(t, "llama3.2:3b", entry.Name)
	assert.Equal(t, "chat", entry.ModelType)
}

func TestExchangeRecord_BeforeCreate(t *testing.T) {
	record := &ExchangeRecord{}
	assert.NoError(t, record.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, record.ID)

	fixed := uuid.New()
	record = &ExchangeRecord{ID: fixed}
	assert.NoError(t, record.BeforeCreate(nil))
	assert.Equal(t, fixed, record.ID)
}

func TestPersistenceEvent_GenericType(t *testing.T) {
	event := PersistenceEvent[ExchangeEvent]{
		Type: EventTypeRecordExchange,
		Data: ExchangeEvent{
			SessionID: "s",
			Provider:  "ollama",
			Model:     "llama3.2:3b",
			Status:    ExchangeStatusCompleted,
			LatencyMs: 420,
		},
	}

	assert.Equal(t, EventType("record_exchange"), event.Type)
	assert.Equal(t, ExchangeStatusCompleted, event.Data.Status)
	assert.Equal(t, int64(420), event.Data.LatencyMs)
}
