package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SystemPrompt is the bootstrap instruction stored as the first message of every new session
const SystemPrompt = "You are a helpful personal assistant. Answer the user's questions as best as you can. " +
	"If you don't know the answer just say you don't know. You will be provided with personalized context " +
	"from RAG techniques. Use that context to help yourself create better answers, and always prefer that " +
	"context over your own knowledge. Be realistic and not too sugar coated in the way you answer questions."

// Assembly is the ordered history handed to the router for one user turn
type Assembly struct {
	SessionID string
	// Messages ends with the new, not yet persisted, user message
	Messages []chat.ChatMessage
	// Created is true when the session was started by this call
	Created bool
}

// UserMessage returns the trailing user message of the assembly
func (a Assembly) UserMessage() chat.ChatMessage {
	return a.Messages[len(a.Messages)-1]
}

// SessionAssembler builds the message sequence for a chat turn
type SessionAssembler struct {
	store persistence.MessageStore
	now   func() time.Time
	newID func() string
}

// AssemblerOption customises a SessionAssembler
type AssemblerOption func(*SessionAssembler)

// WithClock overrides the time source
func WithClock(now func() time.Time) AssemblerOption {
	return func(a *SessionAssembler) {
		a.now = now
	}
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(newID func() string) AssemblerOption {
	return func(a *SessionAssembler) {
		a.newID = newID
	}
}

// NewSessionAssembler creates an assembler over the message store
func NewSessionAssembler(store persistence.MessageStore, opts ...AssemblerOption) *SessionAssembler {
	a := &SessionAssembler{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble resolves the session and appends the user's text to its history.
//
// An empty sessionID starts a new session and persists the system bootstrap message.
// A non-empty sessionID without stored messages fails with chat.ErrSessionNotFound.
func (a *SessionAssembler) Assemble(ctx context.Context, sessionID, text string) (Assembly, error) {
	if sessionID == "" {
		return a.startSession(ctx, text)
	}

	history, err := a.store.FindMessages(ctx, sessionID)
	if err != nil {
		return Assembly{}, fmt.Errorf("failed to load session history: %w", err)
	}
	if len(history) == 0 {
		return Assembly{}, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, sessionID)
	}

	return Assembly{
		SessionID: sessionID,
		Messages:  append(history, a.userMessage(sessionID, text, history)),
	}, nil
}

func (a *SessionAssembler) startSession(ctx context.Context, text string) (Assembly, error) {
	sessionID := a.newID()
	bootstrap := chat.NewMessage(sessionID, chat.RoleSystem, SystemPrompt, a.now())

	if err := a.store.Append(ctx, bootstrap); err != nil {
		return Assembly{}, fmt.Errorf("failed to persist bootstrap message: %w", err)
	}

	logrus.WithField("session_id", sessionID).Debug("Started new chat session")

	history := []chat.ChatMessage{bootstrap}
	return Assembly{
		SessionID: sessionID,
		Messages:  append(history, a.userMessage(sessionID, text, history)),
		Created:   true,
	}, nil
}

// userMessage stamps the new message strictly after the last stored one
func (a *SessionAssembler) userMessage(sessionID, text string, history []chat.ChatMessage) chat.ChatMessage {
	msg := chat.NewMessage(sessionID, chat.RoleUser, text, a.now())
	if len(history) == 0 {
		return msg
	}
	if floor := history[len(history)-1].Timestamp.Add(time.Microsecond); msg.Timestamp.Before(floor) {
		msg.Timestamp = floor
	}
	return msg
}
