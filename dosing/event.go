package dosing

import (
	"context"
	"sync"
	"time"
)

// Outcome is how a line left the queue.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBypassed  Outcome = "bypassed"
)

// DefaultLogName is the key the dosing history is stored under.
const DefaultLogName = "dosingRecords"

// DosingEvent is the immutable record of a completed or bypassed line.
type DosingEvent struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	RecipeName     string    `json:"recipe_name"`
	MaterialID     string    `json:"material_id"`
	MaterialName   string    `json:"material_name"`
	Barcode        string    `json:"barcode,omitempty"`
	SetPoint       *float64  `json:"set_point,omitempty"`
	ActualQuantity float64   `json:"actual"`
	Unit           string    `json:"unit"`
	Timestamp      time.Time `json:"timestamp"`
	Outcome        Outcome   `json:"outcome"`
	MarginUsed     *float64  `json:"margin,omitempty"`
}

// EventLog is the durable, append-only dosing history.
// Implementations must make Append atomic; they never dedupe.
type EventLog interface {
	Append(ctx context.Context, ev DosingEvent) error
	List(ctx context.Context) ([]DosingEvent, error)
}

// MemoryLog is an in-process EventLog, used in tests and when no store is configured.
type MemoryLog struct {
	mu     sync.RWMutex
	events []DosingEvent
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (m *MemoryLog) Append(_ context.Context, ev DosingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryLog) List(_ context.Context) ([]DosingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DosingEvent, len(m.events))
	copy(out, m.events)
	return out, nil
}

// Filter keeps events matching a non-empty orderID and outcome.
func Filter(events []DosingEvent, orderID string, outcome Outcome) []DosingEvent {
	out := make([]DosingEvent, 0, len(events))
	for _, ev := range events {
		if orderID != "" && ev.OrderID != orderID {
			continue
		}
		if outcome != "" && ev.Outcome != outcome {
			continue
		}
		out = append(out, ev)
	}
	return out
}
