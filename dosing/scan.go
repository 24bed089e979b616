package dosing

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultScanDelay is how long the simulated scanner takes to resolve.
const DefaultScanDelay = 5 * time.Second

var barcodeFormat = regexp.MustCompile(`^[A-Za-z0-9\-_.]{5,30}$`)

// ScanResult is the resolution of one verification.
// Err is nil when the barcode is valid.
type ScanResult struct {
	Generation uint64 `json:"generation"`
	Code       string `json:"code"`
	Scanned    string `json:"scanned,omitempty"`
	Err        *Error `json:"error,omitempty"`
}

// Valid reports a BarcodeValid outcome.
func (r ScanResult) Valid() bool { return r.Err == nil }

// Scanner is the capability that resolves a barcode verification.
// The returned channel yields at most one result and is then closed; it is
// closed without a value when ctx is canceled or the scan is superseded first.
type Scanner interface {
	BeginScan(ctx context.Context, expectedCode string) <-chan ScanResult
}

// ValidateBarcode checks a code against the accepted barcode format.
func ValidateBarcode(code string) *Error {
	code = strings.TrimSpace(code)
	if code == "" {
		return newError(KindMissingBarcode, "no barcode present")
	}
	if !barcodeFormat.MatchString(code) {
		return newError(KindBarcodeInvalidFormat, "barcode %q has an invalid format", code)
	}
	return nil
}

func resolved(r ScanResult) <-chan ScanResult {
	ch := make(chan ScanResult, 1)
	ch <- r
	close(ch)
	return ch
}

// DelayScanner simulates a scan: the expected code is taken as read after Delay.
type DelayScanner struct {
	Delay time.Duration
}

func NewDelayScanner(delay time.Duration) *DelayScanner {
	return &DelayScanner{Delay: delay}
}

func (s *DelayScanner) BeginScan(ctx context.Context, expectedCode string) <-chan ScanResult {
	code := strings.TrimSpace(expectedCode)
	if code == "" {
		return resolved(ScanResult{Err: ValidateBarcode(code)})
	}

	ch := make(chan ScanResult, 1)
	go func() {
		defer close(ch)
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		ch <- ScanResult{Code: code, Scanned: code, Err: ValidateBarcode(code)}
	}()
	return ch
}

// ReaderScanner reads scans from a keyboard-wedge scanner, one code per line.
// The device serves one verification at a time: a new BeginScan supersedes
// the outstanding one, whose channel is closed without a result. Lines read
// while no verification is waiting are dropped.
type ReaderScanner struct {
	mu     sync.Mutex
	waiter *scanWaiter
	closed bool

	done chan struct{}
	once sync.Once
	src  io.Reader
	log  *zap.SugaredLogger
}

type scanWaiter struct {
	code string
	ch   chan ScanResult
	stop func() bool
}

// NewReaderScanner starts reading src until it returns an error or EOF.
func NewReaderScanner(src io.Reader, log *zap.SugaredLogger) *ReaderScanner {
	s := &ReaderScanner{
		done: make(chan struct{}),
		src:  src,
		log:  log,
	}
	go s.readForever()
	return s
}

func (s *ReaderScanner) readForever() {
	defer close(s.done)
	defer s.shutdown()

	sc := bufio.NewScanner(s.src)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		w := s.take(nil)
		if w == nil {
			s.log.Debugf("Dropping scan %s, no verification pending", line)
			continue
		}
		s.log.Debugf("Scanned: %s", line)
		r := ScanResult{Code: w.code, Scanned: line}
		if line != w.code {
			r.Err = newError(KindBarcodeMismatch, "scanned %q, expected %q", line, w.code)
		}
		w.ch <- r
		close(w.ch)
	}
	if err := sc.Err(); err != nil {
		s.log.Errorf("Scanner input failed: %v", err)
	}
}

// take detaches the outstanding waiter, if it is w (or any waiter when w is nil).
// The caller owns the returned waiter's channel.
func (s *ReaderScanner) take(w *scanWaiter) *scanWaiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.waiter
	if cur == nil || (w != nil && cur != w) {
		return nil
	}
	s.waiter = nil
	cur.stop()
	return cur
}

func (s *ReaderScanner) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.waiter != nil {
		s.waiter.stop()
		close(s.waiter.ch)
		s.waiter = nil
	}
}

func (s *ReaderScanner) BeginScan(ctx context.Context, expectedCode string) <-chan ScanResult {
	code := strings.TrimSpace(expectedCode)
	if err := ValidateBarcode(code); err != nil {
		return resolved(ScanResult{Code: code, Err: err})
	}

	w := &scanWaiter{code: code, ch: make(chan ScanResult, 1)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(w.ch)
		return w.ch
	}
	if prev := s.waiter; prev != nil {
		s.log.Debugf("Verification of %s superseded by %s", prev.code, code)
		prev.stop()
		close(prev.ch)
	}
	w.stop = context.AfterFunc(ctx, func() {
		if got := s.take(w); got != nil {
			close(got.ch)
		}
	})
	s.waiter = w
	return w.ch
}

// Close stops reading when the source can be closed and waits for the reader to exit.
func (s *ReaderScanner) Close() error {
	var err error
	s.once.Do(func() {
		if c, ok := s.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	<-s.done
	return err
}
