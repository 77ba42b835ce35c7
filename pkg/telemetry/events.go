package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event emitted by mangasync components.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// EngineID is the associated state engine, if applicable.
	EngineID string `json:"engine_id,omitempty"`

	// MangaID is the associated local manga id, if applicable.
	MangaID int64 `json:"manga_id,omitempty"`

	// OperationID is the associated tracked operation, if applicable.
	OperationID string `json:"operation_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeEngineStarted    = "engine.started"
	EventTypeEngineStopped    = "engine.stopped"
	EventTypeEngineFailed     = "engine.failed"
	EventTypeEffectFailed     = "effect.failed"
	EventTypeMangaCreated     = "manga.created"
	EventTypeMangaInitialized = "manga.initialized"
	EventTypeChaptersSynced   = "chapters.synced"
	EventTypeDeleteFailed     = "category.delete_failed"
	EventTypeInstallStep      = "install.step"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// ErrEventBufferFull is returned by Publish when the async buffer is full.
var ErrEventBufferFull = errors.New("event buffer full, event dropped")

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.EnableAsync && cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		subscribers: make([]subscriberEntry, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

func (ep *EventPublisher) enabled() bool {
	return ep != nil && ep.config.Enabled
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.enabled() {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return ErrEventBufferFull
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishEngineStarted publishes a state engine start event.
func (ep *EventPublisher) PublishEngineStarted(engineID, name string) error {
	return ep.Publish(Event{
		Type:     EventTypeEngineStarted,
		Source:   "state",
		EngineID: engineID,
		Message:  fmt.Sprintf("Engine %s (%s) started", name, engineID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"name": name,
		},
	})
}

// PublishEngineStopped publishes a state engine disposal event.
func (ep *EventPublisher) PublishEngineStopped(engineID, name string, lifetime time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeEngineStopped,
		Source:   "state",
		EngineID: engineID,
		Message:  fmt.Sprintf("Engine %s (%s) disposed", name, engineID),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"name":     name,
			"lifetime": lifetime.Seconds(),
		},
	})
}

// PublishEngineFailed publishes a fatal state engine error.
func (ep *EventPublisher) PublishEngineFailed(engineID, name, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeEngineFailed,
		Source:   "state",
		EngineID: engineID,
		Message:  fmt.Sprintf("Engine %s (%s) failed: %s", name, engineID, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"name":   name,
			"reason": reason,
		},
	})
}

// PublishEffectFailed publishes a best-effort side effect failure.
func (ep *EventPublisher) PublishEffectFailed(engineID, effect, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeEffectFailed,
		Source:   "state",
		EngineID: engineID,
		Message:  fmt.Sprintf("Effect %s failed: %s", effect, reason),
		Level:    EventLevelWarning,
		Data: map[string]interface{}{
			"effect": effect,
			"reason": reason,
		},
	})
}

// PublishMangaCreated publishes the creation of a canonical local manga.
func (ep *EventPublisher) PublishMangaCreated(mangaID, sourceID int64, key string) error {
	return ep.Publish(Event{
		Type:    EventTypeMangaCreated,
		Source:  "engine",
		MangaID: mangaID,
		Message: fmt.Sprintf("Manga %q from source %d stored as %d", key, sourceID, mangaID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"source_id": sourceID,
			"key":       key,
		},
	})
}

// PublishMangaInitialized publishes a manga becoming fully initialized.
func (ep *EventPublisher) PublishMangaInitialized(mangaID int64) error {
	return ep.Publish(Event{
		Type:    EventTypeMangaInitialized,
		Source:  "engine",
		MangaID: mangaID,
		Message: fmt.Sprintf("Manga %d initialized", mangaID),
		Level:   EventLevelInfo,
	})
}

// PublishChaptersSynced publishes the result of a chapter reconciliation.
func (ep *EventPublisher) PublishChaptersSynced(mangaID int64, added, updated, deleted int) error {
	return ep.Publish(Event{
		Type:    EventTypeChaptersSynced,
		Source:  "engine",
		MangaID: mangaID,
		Message: fmt.Sprintf("Chapters of manga %d synced (+%d ~%d -%d)", mangaID, added, updated, deleted),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"added":   added,
			"updated": updated,
			"deleted": deleted,
		},
	})
}

// PublishDeleteFailed publishes a swallowed category deletion failure.
func (ep *EventPublisher) PublishDeleteFailed(categoryID int64, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeDeleteFailed,
		Source:  "engine",
		Message: fmt.Sprintf("Deleting category %d failed: %s", categoryID, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"category_id": categoryID,
			"reason":      reason,
		},
	})
}

// PublishInstallStep publishes an install step transition.
func (ep *EventPublisher) PublishInstallStep(operationID, step string) error {
	level := EventLevelInfo
	if step == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:        EventTypeInstallStep,
		Source:      "steps",
		OperationID: operationID,
		Message:     fmt.Sprintf("Operation %s is %s", operationID, step),
		Level:       level,
		Data: map[string]interface{}{
			"step": step,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if !ep.enabled() {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents batches buffered events, flushing on size or interval.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Drain whatever was accepted before shutdown
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						ep.flushBatch(batch)
					}
					return
				}
			}
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.enabled() {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByEngineID creates a filter that only allows events for a specific engine.
func FilterByEngineID(engineID string) EventFilter {
	return func(event Event) bool {
		return event.EngineID == engineID
	}
}

// FilterByMangaID creates a filter that only allows events for a specific manga.
func FilterByMangaID(mangaID int64) EventFilter {
	return func(event Event) bool {
		return event.MangaID == mangaID
	}
}
