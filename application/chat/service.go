package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/chat"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/sirupsen/logrus"
)

// Service orchestrates chat use cases
type Service struct {
	router    *Router
	assembler *SessionAssembler
	store     persistence.MessageStore
	messages  persistence.MessageRepository
	configs   persistence.ModelConfigRepository
	factory   chat.AdapterFactory
	tracker   persistence.ExchangeTracker // optional
}

// Dependencies groups the collaborators of a Service
type Dependencies struct {
	Router    *Router
	Assembler *SessionAssembler
	Store     persistence.MessageStore
	Messages  persistence.MessageRepository
	Configs   persistence.ModelConfigRepository
	Factory   chat.AdapterFactory
	Tracker   persistence.ExchangeTracker
}

// Reply is the outcome of one successful chat turn
type Reply struct {
	SessionID string           `json:"session_id"`
	Message   chat.ChatMessage `json:"-"`
}

func NewService(deps Dependencies) *Service {
	assembler := deps.Assembler
	if assembler == nil {
		assembler = NewSessionAssembler(deps.Store)
	}
	return &Service{
		router:    deps.Router,
		assembler: assembler,
		store:     deps.Store,
		messages:  deps.Messages,
		configs:   deps.Configs,
		factory:   deps.Factory,
		tracker:   deps.Tracker,
	}
}

// SendMessage runs one chat turn. The user message and the reply are persisted
// together only when the model call succeeds.
func (s *Service) SendMessage(ctx context.Context, sessionID, text string) (*Reply, error) {
	if strings.TrimSpace(text) == "" {
		return nil, chat.ErrEmptyMessage
	}

	assembly, err := s.assembler.Assemble(ctx, strings.TrimSpace(sessionID), text)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, served, err := s.router.Dispatch(ctx, assembly.Messages)
	s.trackExchange(ctx, assembly.SessionID, served, time.Since(start), err)

	if err != nil {
		logger := logrus.WithError(err).WithField("session_id", assembly.SessionID)
		if chat.IsAdapterError(err) {
			logger.Error("Language model call failed")
		} else {
			logger.Warn("Chat turn aborted")
		}
		return nil, err
	}

	user := assembly.UserMessage()
	reply = normalizeReply(reply, user)

	if err := s.store.AppendMessages(ctx, user, reply); err != nil {
		return nil, fmt.Errorf("failed to persist chat turn: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  assembly.SessionID,
		"new_session": assembly.Created,
		"history_len": len(assembly.Messages),
	}).Info("Chat turn completed")

	return &Reply{SessionID: assembly.SessionID, Message: reply}, nil
}

// normalizeReply binds the adapter reply to the session and orders it after the user message
func normalizeReply(reply, user chat.ChatMessage) chat.ChatMessage {
	at := reply.Timestamp
	if floor := user.Timestamp.Add(time.Microsecond); at.Before(floor) {
		at = floor
	}
	return chat.NewMessage(user.SessionID, chat.RoleAssistant, reply.Text, at)
}

// History returns the stored messages of a session in chronological order
func (s *Service) History(ctx context.Context, sessionID string) ([]*persistence.MessageRecord, error) {
	records, err := s.messages.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", chat.ErrSessionNotFound, sessionID)
	}
	return records, nil
}

// ListModelConfig returns every configured provider/model pair
func (s *Service) ListModelConfig(ctx context.Context) ([]*persistence.AppConfig, error) {
	rows, err := s.configs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list model config: %w", err)
	}
	return rows, nil
}

// Reconfigure switches the active adapter to provider/model.
// The pair must be present in the configured set; on any failure the previous adapter stays active.
func (s *Service) Reconfigure(ctx context.Context, provider, model string) (chat.Descriptor, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)

	entries, err := s.store.FindModelEntries(ctx, provider, model)
	if err != nil {
		return chat.Descriptor{}, fmt.Errorf("failed to look up model config: %w", err)
	}
	if len(entries) == 0 {
		return chat.Descriptor{}, fmt.Errorf("%w: %s/%s", chat.ErrUnsupportedModel, provider, model)
	}

	adapter, err := s.factory.Create(provider, model)
	if err != nil {
		if errors.Is(err, catalog.ErrProviderNotFound) {
			return chat.Descriptor{}, err
		}
		return chat.Descriptor{}, fmt.Errorf("failed to create adapter: %w", err)
	}

	previous, _ := describe(s.router.Reconfigure(adapter))

	current := chat.Descriptor{Provider: provider, Model: model}
	if d, ok := describe(adapter); ok {
		current = d
	}

	logrus.WithFields(logrus.Fields{
		"previous_provider": previous.Provider,
		"previous_model":    previous.Model,
		"provider":          current.Provider,
		"model":             current.Model,
	}).Info("Active language model reconfigured")

	return current, nil
}

// Active describes the adapter currently serving requests
func (s *Service) Active() (chat.Descriptor, bool) {
	return s.router.Current()
}

// Embed computes embeddings with the active adapter
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.router.Embed(ctx, texts)
	if err != nil {
		if !errors.Is(err, chat.ErrNotImplemented) {
			logrus.WithError(err).WithField("texts", len(texts)).Error("Embedding call failed")
		}
		return nil, err
	}
	return vectors, nil
}

// trackExchange hands the call outcome to the metrics tracker; failures are only logged
func (s *Service) trackExchange(ctx context.Context, sessionID string, desc chat.Descriptor, latency time.Duration, callErr error) {
	if s.tracker == nil {
		return
	}

	event := persistence.ExchangeEvent{
		SessionID: sessionID,
		Provider:  desc.Provider,
		Model:     desc.Model,
		Status:    persistence.ExchangeStatusCompleted,
		LatencyMs: latency.Milliseconds(),
	}
	if callErr != nil {
		event.Status = persistence.ExchangeStatusFailed
		event.Error = callErr.Error()
	}

	if err := s.tracker.TrackExchange(ctx, event); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to track exchange")
	}
}
