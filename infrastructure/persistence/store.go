package persistence

import (
	"context"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/domain/persistence"
)

// MessageStore implements persistence.MessageStore over the gorm repositories
type MessageStore struct {
	messages persistence.MessageRepository
	configs  persistence.ModelConfigRepository
	tx       persistence.TransactionManager
}

// NewMessageStore creates the chat-facing store
func NewMessageStore(messages persistence.MessageRepository, configs persistence.ModelConfigRepository, tx persistence.TransactionManager) *MessageStore {
	return &MessageStore{messages: messages, configs: configs, tx: tx}
}

// FindMessages returns the ordered history of a session, empty if none
func (s *MessageStore) FindMessages(ctx context.Context, sessionID string) ([]chat.ChatMessage, error) {
	records, err := s.messages.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]chat.ChatMessage, 0, len(records))
	for _, r := range records {
		msg := r.ToMessage()
		if !msg.Sender.Valid() {
			return nil, fmt.Errorf("%w: stored message %d has sender %q", chat.ErrInvalidRole, r.ID, r.Sender)
		}
		history = append(history, msg)
	}
	return history, nil
}

// Append persists a single message
func (s *MessageStore) Append(ctx context.Context, msg chat.ChatMessage) error {
	return s.messages.Create(ctx, persistence.NewMessageRecord(msg))
}

// AppendMessages persists all messages in one transaction
func (s *MessageStore) AppendMessages(ctx context.Context, msgs ...chat.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]*persistence.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		records = append(records, persistence.NewMessageRecord(m))
	}

	return s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.messages.CreateBatch(txCtx, records)
	})
}

// FindModelEntries lists configured provider/model pairs; empty filters match everything
func (s *MessageStore) FindModelEntries(ctx context.Context, provider, modelName string) ([]catalog.ModelEntry, error) {
	rows, err := s.configs.Find(ctx, provider, modelName)
	if err != nil {
		return nil, err
	}

	entries := make([]catalog.ModelEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.ToModelEntry())
	}
	return entries, nil
}
