package dosing

import "fmt"

// Kind classifies a workflow error.
type Kind string

const (
	KindMissingBarcode       Kind = "MissingBarcode"
	KindBarcodeInvalidFormat Kind = "BarcodeInvalidFormat"
	KindBarcodeMismatch      Kind = "BarcodeMismatch"
	KindMissingSetPoint      Kind = "MissingSetPoint"
	KindOutOfTolerance       Kind = "OutOfTolerance"
	KindNoCurrentMaterial    Kind = "NoCurrentMaterial"
	KindOrderComplete        Kind = "OrderComplete"
)

// Sentinels for errors.Is. A *Error matches the sentinel of the same kind.
var (
	ErrMissingBarcode       = &Error{Kind: KindMissingBarcode}
	ErrBarcodeInvalidFormat = &Error{Kind: KindBarcodeInvalidFormat}
	ErrBarcodeMismatch      = &Error{Kind: KindBarcodeMismatch}
	ErrMissingSetPoint      = &Error{Kind: KindMissingSetPoint}
	ErrOutOfTolerance       = &Error{Kind: KindOutOfTolerance}
	ErrNoCurrentMaterial    = &Error{Kind: KindNoCurrentMaterial}
	ErrOrderComplete        = &Error{Kind: KindOrderComplete}
)

// Range is the acceptable band reported with OutOfTolerance.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Unit string  `json:"unit"`
}

// Error is a structured workflow error: a kind plus a human-readable detail.
type Error struct {
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail"`
	Range  *Range `json:"range,omitempty"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
