package raft

import (
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/hashicorp/raft"

	"github.com/devadigapratham/microdose/api/models"
	"github.com/devadigapratham/microdose/dosing"
)

// FSM implements the raft.FSM interface for the replicated dosing history
type FSM struct {
	mu sync.RWMutex

	// Append-only dosing logs, keyed by log name
	logs map[string][]dosing.DosingEvent
	// Saved manual sort orders, keyed by page
	sortOrders map[string][]string
	// Event IDs already appended, keyed by log name
	applied map[string]map[string]struct{}
}

// NewFSM creates a new Finite State Machine for the Raft cluster
func NewFSM() *FSM {
	return &FSM{
		logs:       make(map[string][]dosing.DosingEvent),
		sortOrders: make(map[string][]string),
		applied:    make(map[string]map[string]struct{}),
	}
}

// Apply applies a Raft log entry to the FSM
func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd, err := models.UnmarshalCommand(log.Data)
	if err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	switch cmd.Type {
	case models.AppendDosingEvent:
		if cmd.Event == nil {
			return fmt.Errorf("dosing event is nil")
		}
		if cmd.LogName == "" {
			return fmt.Errorf("log name is empty")
		}
		// A retried append of an entry that already committed is a no-op
		if f.seen(cmd.LogName, cmd.Event.ID) {
			return nil
		}
		f.logs[cmd.LogName] = append(f.logs[cmd.LogName], *cmd.Event)
		f.markApplied(cmd.LogName, cmd.Event.ID)
		return nil

	case models.SetSortOrder:
		if cmd.Page == "" {
			return fmt.Errorf("page is empty")
		}
		f.sortOrders[cmd.Page] = cmd.IDs
		return nil

	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

// Snapshot returns a snapshot of the FSM state
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := &fsmSnapshot{
		Logs:       make(map[string][]dosing.DosingEvent, len(f.logs)),
		SortOrders: make(map[string][]string, len(f.sortOrders)),
	}
	// Events are never mutated after append, a shallow copy of each slice is enough
	for k, v := range f.logs {
		snap.Logs[k] = append([]dosing.DosingEvent(nil), v...)
	}
	for k, v := range f.sortOrders {
		snap.SortOrders[k] = append([]string(nil), v...)
	}
	return snap, nil
}

// Restore restores the FSM from a snapshot
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return err
	}
	if snap.Logs == nil {
		snap.Logs = make(map[string][]dosing.DosingEvent)
	}
	if snap.SortOrders == nil {
		snap.SortOrders = make(map[string][]string)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.logs = snap.Logs
	f.sortOrders = snap.SortOrders
	f.applied = make(map[string]map[string]struct{})
	for name, events := range f.logs {
		for _, ev := range events {
			f.markApplied(name, ev.ID)
		}
	}
	return nil
}

func (f *FSM) seen(logName, id string) bool {
	if id == "" {
		return false
	}
	_, ok := f.applied[logName][id]
	return ok
}

func (f *FSM) markApplied(logName, id string) {
	if id == "" {
		return
	}
	ids, ok := f.applied[logName]
	if !ok {
		ids = make(map[string]struct{})
		f.applied[logName] = ids
	}
	ids[id] = struct{}{}
}

// Events returns a copy of the named dosing log
func (f *FSM) Events(logName string) []dosing.DosingEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]dosing.DosingEvent(nil), f.logs[logName]...)
}

// SortOrder returns the saved sort order of a page
func (f *FSM) SortOrder(page string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ids, ok := f.sortOrders[page]
	if !ok {
		return nil
	}
	return append([]string(nil), ids...)
}

// fsmSnapshot implements the raft.FSMSnapshot interface
type fsmSnapshot struct {
	Logs       map[string][]dosing.DosingEvent `json:"logs"`
	SortOrders map[string][]string             `json:"sort_orders"`
}

// Persist saves the snapshot to the provided sink
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
		return err
	}

	return nil
}

// Release is a no-op
func (s *fsmSnapshot) Release() {}
