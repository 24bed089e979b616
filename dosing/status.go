package dosing

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// LineStatus is the dosing status of a single material line.
type LineStatus string

const (
	StatusPending    LineStatus = "Pending"
	StatusInProgress LineStatus = "InProgress"
	StatusDosed      LineStatus = "Dosed"
	StatusBypassed   LineStatus = "Bypassed"
)

// Line events, named after the operator actions that trigger them.
const (
	EventBeginScan = "begin_scan"
	EventConfirm   = "confirm"
	EventBypass    = "bypass"
)

// lineEvents is the complete transition table for a material line.
// A rescan of an in-progress line keeps it in progress.
var lineEvents = fsm.Events{
	{Name: EventBeginScan, Src: []string{string(StatusPending), string(StatusInProgress)}, Dst: string(StatusInProgress)},
	{Name: EventConfirm, Src: []string{string(StatusInProgress)}, Dst: string(StatusDosed)},
	{Name: EventBypass, Src: []string{string(StatusInProgress)}, Dst: string(StatusBypassed)},
}

// Terminal reports whether no further transitions leave s.
func (s LineStatus) Terminal() bool {
	return s == StatusDosed || s == StatusBypassed
}

// Valid reports whether s is one of the known statuses.
func (s LineStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDosed, StatusBypassed:
		return true
	}
	return false
}

// NextStatus returns the status a line in current moves to on event, or an
// error when the transition table has no such edge.
func NextStatus(current LineStatus, event string) (LineStatus, error) {
	m := fsm.NewFSM(string(current), lineEvents, fsm.Callbacks{})
	if err := m.Event(context.Background(), event); err != nil {
		// A rescan keeps the line in progress, which looplab reports as no transition
		var same fsm.NoTransitionError
		if !errors.As(err, &same) {
			return current, fmt.Errorf("a line can not %s from %s: %w", event, current, err)
		}
	}
	return LineStatus(m.Current()), nil
}
