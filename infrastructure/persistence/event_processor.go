package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"github.com/sirupsen/logrus"
)

// EventProcessor implements persistence.EventProcessor
type EventProcessor struct {
	exchangeRepo persistence.ExchangeRepository
	eventChan    chan any
	workerCount  int
	bufferSize   int

	// State management
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	mu             sync.RWMutex
	isRunning      atomic.Bool
	stopped        bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	// Health monitoring
	lastProcessedTime atomic.Pointer[time.Time]
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(exchangeRepo persistence.ExchangeRepository, workerCount int, bufferSize int) *EventProcessor {
	if workerCount <= 0 {
		workerCount = 2
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &EventProcessor{
		exchangeRepo: exchangeRepo,
		eventChan:    make(chan any, bufferSize),
		workerCount:  workerCount,
		bufferSize:   bufferSize,
	}
}

// Start begins processing events from the channel
func (ep *EventProcessor) Start(ctx context.Context) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.isRunning.Load() {
		return fmt.Errorf("event processor is already running")
	}
	if ep.stopped {
		return fmt.Errorf("event processor cannot be restarted")
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)
	ep.isRunning.Store(true)

	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop drains queued events and shuts the workers down
func (ep *EventProcessor) Stop() error {
	ep.mu.Lock()
	if !ep.isRunning.Load() {
		ep.mu.Unlock()
		return nil
	}
	ep.isRunning.Store(false)
	ep.stopped = true
	// no sender can be inside ProcessEvent while the write lock is held
	close(ep.eventChan)
	ep.mu.Unlock()

	logrus.Info("Stopping event processor...")

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Event processor stop timed out")
	}

	ep.cancel()
	return nil
}

// ProcessEvent queues an event without blocking; a full queue drops it
func (ep *EventProcessor) ProcessEvent(event any) error {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	default:
		ep.errorCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return fmt.Errorf("event processor queue is full")
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	return persistence.ProcessorHealth{
		IsRunning:       ep.isRunning.Load(),
		QueueSize:       len(ep.eventChan),
		ProcessedCount:  ep.processedCount.Load(),
		ErrorCount:      ep.errorCount.Load(),
		LastProcessedAt: ep.lastProcessedTime.Load(),
	}
}

// worker processes events until the channel is closed
func (ep *EventProcessor) worker(workerID int) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Debug("Event processor worker started")

	for event := range ep.eventChan {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ep.ctx), 10*time.Second)
		if err := ep.processEvent(opCtx, event); err != nil {
			ep.errorCount.Add(1)
			logger.WithError(err).Error("Failed to process event")
		} else {
			ep.processedCount.Add(1)
			now := time.Now()
			ep.lastProcessedTime.Store(&now)
		}
		cancel()
	}

	logger.Debug("Event channel closed, worker stopping")
}

// processEvent handles individual events
func (ep *EventProcessor) processEvent(ctx context.Context, event any) error {
	switch e := event.(type) {
	case persistence.PersistenceEvent[persistence.ExchangeEvent]:
		return ep.handleRecordExchange(ctx, e.Data)

	case persistence.ExchangeEvent:
		return ep.handleRecordExchange(ctx, e)

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

func (ep *EventProcessor) handleRecordExchange(ctx context.Context, event persistence.ExchangeEvent) error {
	record := &persistence.ExchangeRecord{
		SessionID: event.SessionID,
		Provider:  event.Provider,
		Model:     event.Model,
		Status:    event.Status,
		LatencyMs: event.LatencyMs,
		Error:     event.Error,
	}
	if record.Provider == "" {
		record.Provider = "unknown"
	}
	if record.Model == "" {
		record.Model = "unknown"
	}

	if err := ep.exchangeRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// ExchangeTracker implements persistence.ExchangeTracker using the event processor
type ExchangeTracker struct {
	processor persistence.EventProcessor
}

// NewExchangeTracker creates a new exchange tracker
func NewExchangeTracker(processor persistence.EventProcessor) persistence.ExchangeTracker {
	return &ExchangeTracker{processor: processor}
}

// TrackExchange queues the outcome of one model call
func (t *ExchangeTracker) TrackExchange(ctx context.Context, event persistence.ExchangeEvent) error {
	return t.processor.ProcessEvent(persistence.PersistenceEvent[persistence.ExchangeEvent]{
		Type: persistence.EventTypeRecordExchange,
		Data: event,
	})
}
