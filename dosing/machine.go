package dosing

import "time"

// State is everything the workflow knows about one order.
type State struct {
	Order          Order       `json:"order"`
	ScanGeneration uint64      `json:"scan_generation"`
	ScanPending    bool        `json:"scan_pending"`
	BarcodeMatched bool        `json:"barcode_matched"`
	LastScan       *ScanResult `json:"last_scan,omitempty"`
}

// Rules parameterizes the transition function.
type Rules struct {
	Tolerance float64
}

// Event is an input to Transition.
type Event interface{ event() }

// BeginScan starts verification of the current line.
type BeginScan struct{}

// ScanResolved delivers a scanner result.
type ScanResolved struct {
	Result ScanResult
}

// Confirm doses the current line with the entered quantity.
type Confirm struct {
	Actual  float64
	At      time.Time
	EventID string
}

// Bypass skips the current line without a tolerance check.
type Bypass struct {
	At      time.Time
	EventID string
}

func (BeginScan) event()    {}
func (ScanResolved) event() {}
func (Confirm) event()      {}
func (Bypass) event()       {}

// Effect is work the caller must carry out after a transition.
type Effect interface{ effect() }

// StartScan asks the scanner to verify Code. It supersedes any earlier scan.
type StartScan struct {
	Generation uint64
	Code       string
	MaterialID string
}

// CancelScan abandons the outstanding scan.
type CancelScan struct{}

// Record appends Event to the dosing log. It must succeed before the new
// state is committed.
type Record struct {
	Event DosingEvent
}

// OrderCompleted signals that the last line reached a terminal status.
type OrderCompleted struct {
	OrderID string
}

func (StartScan) effect()      {}
func (CancelScan) effect()     {}
func (Record) effect()         {}
func (OrderCompleted) effect() {}

// NewState wraps an order in a fresh workflow state.
func NewState(o Order) State {
	return State{Order: o.Clone()}
}

// Transition applies ev to s. It never mutates s. On error the returned
// state is s unchanged and no effects are produced.
func Transition(rules Rules, s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case BeginScan:
		return beginScan(s)
	case ScanResolved:
		return scanResolved(s, e), nil, nil
	case Confirm:
		return finish(rules, s, EventConfirm, e.Actual, e.At, e.EventID)
	case Bypass:
		return finish(rules, s, EventBypass, 0, e.At, e.EventID)
	}
	return s, nil, nil
}

func beginScan(s State) (State, []Effect, error) {
	if s.Order.Complete {
		return s, nil, newError(KindOrderComplete, "order %s is complete", s.Order.OrderID)
	}
	cur, ok := s.Order.Current()
	if !ok {
		return s, nil, newError(KindNoCurrentMaterial, "no material selected for scanning")
	}
	next, err := NextStatus(cur.Status, EventBeginScan)
	if err != nil {
		return s, nil, newError(KindNoCurrentMaterial, "%v", err)
	}

	ns := s.clone()
	line := &ns.Order.Lines[ns.Order.CurrentIndex]
	line.Status = next
	ns.ScanGeneration++
	ns.BarcodeMatched = false
	ns.LastScan = nil

	if verr := ValidateBarcode(line.BarcodeCode); verr != nil && verr.Kind == KindMissingBarcode {
		// Nothing to scan: resolve on the spot.
		ns.ScanPending = false
		ns.LastScan = &ScanResult{Generation: ns.ScanGeneration, Err: verr}
		effects := []Effect{}
		if s.ScanPending {
			effects = append(effects, CancelScan{})
		}
		return ns, effects, nil
	}

	ns.ScanPending = true
	return ns, []Effect{StartScan{Generation: ns.ScanGeneration, Code: line.BarcodeCode, MaterialID: line.ID}}, nil
}

func scanResolved(s State, e ScanResolved) State {
	if !s.ScanPending || e.Result.Generation != s.ScanGeneration {
		return s
	}
	cur, ok := s.Order.Current()
	if !ok || cur.Status != StatusInProgress {
		return s
	}

	ns := s.clone()
	r := e.Result
	ns.ScanPending = false
	ns.LastScan = &r
	ns.BarcodeMatched = r.Valid()
	return ns
}

func finish(rules Rules, s State, action string, actual float64, at time.Time, eventID string) (State, []Effect, error) {
	if s.Order.Complete {
		return s, nil, newError(KindOrderComplete, "order %s is complete", s.Order.OrderID)
	}
	cur, ok := s.Order.Current()
	if !ok || cur.Status != StatusInProgress {
		return s, nil, newError(KindNoCurrentMaterial, "no material is in progress")
	}
	next, err := NextStatus(cur.Status, action)
	if err != nil {
		return s, nil, newError(KindNoCurrentMaterial, "%v", err)
	}

	outcome := OutcomeBypassed
	if action == EventConfirm {
		if err := Validate(cur.SetPoint, actual, rules.Tolerance, cur.Unit); err != nil {
			return s, nil, err
		}
		outcome = OutcomeCompleted
	}

	ns := s.clone()
	line := &ns.Order.Lines[ns.Order.CurrentIndex]
	line.Status = next
	line.ActualQuantity = Float(actual)

	var effects []Effect
	if ns.ScanPending {
		effects = append(effects, CancelScan{})
	}
	effects = append(effects, Record{Event: DosingEvent{
		ID:             eventID,
		OrderID:        ns.Order.OrderID,
		RecipeName:     ns.Order.RecipeName,
		MaterialID:     line.ID,
		MaterialName:   line.Title,
		Barcode:        line.BarcodeCode,
		SetPoint:       cloneFloat(line.SetPoint),
		ActualQuantity: actual,
		Unit:           line.Unit,
		Timestamp:      at,
		Outcome:        outcome,
		MarginUsed:     cloneFloat(line.Margin),
	}})

	ns.ScanPending = false
	ns.BarcodeMatched = false
	ns.LastScan = nil
	if err := ns.Order.Advance(); err != nil {
		return s, nil, err
	}
	if ns.Order.Complete {
		effects = append(effects, OrderCompleted{OrderID: ns.Order.OrderID})
	}
	return ns, effects, nil
}

func (s State) clone() State {
	c := s
	c.Order = s.Order.Clone()
	if s.LastScan != nil {
		r := *s.LastScan
		c.LastScan = &r
	}
	return c
}
