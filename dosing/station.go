package dosing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer is notified of workflow outcomes, e.g. for metrics.
type Observer interface {
	ScanResolved(r ScanResult)
	Recorded(ev DosingEvent)
	Rejected(err error)
}

type nopObserver struct{}

func (nopObserver) ScanResolved(ScanResult) {}
func (nopObserver) Recorded(DosingEvent)    {}
func (nopObserver) Rejected(error)          {}

// StationConfig holds the collaborators of a Station.
type StationConfig struct {
	Rules    Rules
	Log      EventLog
	Scanner  Scanner
	Observer Observer
	Logger   *zap.SugaredLogger

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string
}

// Station owns the dosing workflow of one order. All transitions are
// serialized through it; scan resolution is the only asynchronous input.
type Station struct {
	cfg StationConfig

	mu    sync.Mutex
	state State

	// failedAppend remembers the event of an append that returned an error,
	// so a retry of the same action reuses its ID
	failedAppend *DosingEvent

	base       context.Context
	stop       context.CancelFunc
	cancelScan context.CancelFunc
	wg         sync.WaitGroup
}

// NewStation starts a workflow for order.
func NewStation(order Order, cfg StationConfig) (*Station, error) {
	if cfg.Log == nil {
		return nil, errors.New("station needs an event log")
	}
	if cfg.Scanner == nil {
		return nil, errors.New("station needs a scanner")
	}
	if cfg.Rules.Tolerance <= 0 {
		cfg.Rules.Tolerance = DefaultTolerance
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}

	base, stop := context.WithCancel(context.Background())
	return &Station{
		cfg:   cfg,
		state: NewState(order),
		base:  base,
		stop:  stop,
	}, nil
}

// State returns a copy of the current workflow state.
func (s *Station) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// BeginScan starts verifying the current line and returns the scan
// generation. A line without a barcode fails at once with MissingBarcode;
// every other outcome arrives asynchronously and shows up in State.
func (s *Station) BeginScan() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.applyLocked(context.Background(), BeginScan{}); err != nil {
		return 0, err
	}
	if r := s.state.LastScan; r != nil && r.Err != nil {
		s.cfg.Observer.ScanResolved(*r)
		return s.state.ScanGeneration, r.Err
	}
	return s.state.ScanGeneration, nil
}

// Confirm doses the current line with actual after a tolerance check.
func (s *Station) Confirm(ctx context.Context, actual float64) (DosingEvent, error) {
	return s.finish(ctx, Confirm{Actual: actual, At: s.cfg.Now().UTC(), EventID: s.cfg.NewID()})
}

// Bypass marks the current line as handled without measurement.
func (s *Station) Bypass(ctx context.Context) (DosingEvent, error) {
	return s.finish(ctx, Bypass{At: s.cfg.Now().UTC(), EventID: s.cfg.NewID()})
}

func (s *Station) finish(ctx context.Context, ev Event) (DosingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recorded, err := s.applyLocked(ctx, s.retryID(ev))
	if err != nil {
		return DosingEvent{}, err
	}
	if recorded == nil {
		return DosingEvent{}, errors.New("transition recorded no dosing event")
	}
	return *recorded, nil
}

// retryID gives ev the ID of the previously failed append when it retries the
// same action on the same line. An append can fail after the entry committed
// (a replicated log timing out), and the log skips IDs it already holds.
func (s *Station) retryID(ev Event) Event {
	p := s.failedAppend
	if p == nil {
		return ev
	}
	cur, ok := s.state.Order.Current()
	if !ok || cur.ID != p.MaterialID {
		return ev
	}
	switch e := ev.(type) {
	case Confirm:
		if p.Outcome == OutcomeCompleted {
			e.EventID = p.ID
			return e
		}
	case Bypass:
		if p.Outcome == OutcomeBypassed {
			e.EventID = p.ID
			return e
		}
	}
	return ev
}

// applyLocked runs the transition and carries out its effects. Records are
// appended before the new state is committed, so a failed append leaves the
// order untouched.
func (s *Station) applyLocked(ctx context.Context, ev Event) (*DosingEvent, error) {
	next, effects, err := Transition(s.cfg.Rules, s.state, ev)
	if err != nil {
		s.cfg.Observer.Rejected(err)
		return nil, err
	}

	var recorded *DosingEvent
	for _, eff := range effects {
		r, ok := eff.(Record)
		if !ok {
			continue
		}
		if err := s.cfg.Log.Append(ctx, r.Event); err != nil {
			failed := r.Event
			s.failedAppend = &failed
			return nil, fmt.Errorf("failed to append dosing event: %w", err)
		}
		ev := r.Event
		recorded = &ev
		s.failedAppend = nil
		s.cfg.Observer.Recorded(ev)
	}

	s.state = next

	for _, eff := range effects {
		switch e := eff.(type) {
		case CancelScan:
			s.abandonScanLocked()
		case StartScan:
			s.startScanLocked(e)
		case OrderCompleted:
			s.cfg.Logger.Infof("All materials completed (dosed or bypassed). Order %s complete.", e.OrderID)
		}
	}
	return recorded, nil
}

func (s *Station) abandonScanLocked() {
	if s.cancelScan != nil {
		s.cancelScan()
		s.cancelScan = nil
	}
}

func (s *Station) startScanLocked(e StartScan) {
	s.abandonScanLocked()

	ctx, cancel := context.WithCancel(s.base)
	s.cancelScan = cancel
	s.cfg.Logger.Debugf("Scan the barcode for material %s (generation %d)", e.MaterialID, e.Generation)

	results := s.cfg.Scanner.BeginScan(ctx, e.Code)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for r := range results {
			r.Generation = e.Generation
			s.resolve(r)
		}
	}()
}

func (s *Station) resolve(r ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state.LastScan
	next, _, _ := Transition(s.cfg.Rules, s.state, ScanResolved{Result: r})
	s.state = next
	if s.state.LastScan == before {
		s.cfg.Logger.Debugf("Discarding stale scan result for generation %d", r.Generation)
		return
	}
	if r.Valid() {
		s.cfg.Logger.Infof("Barcode %s is valid", r.Code)
	} else {
		s.cfg.Logger.Warnf("Barcode verification failed: %v", r.Err)
	}
	s.cfg.Observer.ScanResolved(r)
}

// Close abandons any outstanding scan and waits for scan goroutines to exit.
func (s *Station) Close() {
	s.stop()
	s.wg.Wait()
}
