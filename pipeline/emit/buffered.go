package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory.
//
// This emitter captures all events and provides query capabilities for
// execution-history analysis. Events are organized by runID for efficient
// retrieval and filtering.
//
// Use cases:
//   - Development and debugging
//   - Tests that assert on emitted events
//   - Post-run analysis of a pipeline
//
// Warning: all events are held in memory. For long-running or high-volume
// runs, clear old runs periodically via Clear.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All fields are optional; set fields combine with AND logic.
type HistoryFilter struct {
	PhaseName string // filter by phase name (empty = no filter)
	Msg       string // filter by message (empty = no filter)
	MinPhase  *int   // minimum phase number (nil = no filter)
	MaxPhase  *int   // maximum phase number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores an event in the buffer. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History retrieves all events for a specific runID, in emission order.
// Returns an empty slice when the run has no events. The returned slice
// is a copy and safe to retain.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	if events == nil {
		return []Event{}
	}

	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// HistoryWithFilter retrieves filtered events for a specific runID.
//
// All filter conditions must match for an event to be included.
// Returns an empty slice when nothing matches.
func (b *BufferedEmitter) HistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[runID]
	if events == nil {
		return []Event{}
	}

	if filter.PhaseName == "" && filter.Msg == "" && filter.MinPhase == nil && filter.MaxPhase == nil {
		result := make([]Event, len(events))
		copy(result, events)
		return result
	}

	var result []Event
	for _, event := range events {
		if !matchesFilter(event, filter) {
			continue
		}
		result = append(result, event)
	}

	if result == nil {
		return []Event{}
	}
	return result
}

func matchesFilter(event Event, filter HistoryFilter) bool {
	if filter.PhaseName != "" && event.PhaseName != filter.PhaseName {
		return false
	}
	if filter.Msg != "" && event.Msg != filter.Msg {
		return false
	}
	if filter.MinPhase != nil && event.Phase < *filter.MinPhase {
		return false
	}
	if filter.MaxPhase != nil && event.Phase > *filter.MaxPhase {
		return false
	}
	return true
}

// Clear removes stored events.
//
// If runID is non-empty, clears only that run's events; an empty runID
// clears everything.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
	} else {
		delete(b.events, runID)
	}
}
