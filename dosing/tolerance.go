package dosing

import (
	"fmt"
	"math"
)

// DefaultTolerance is the accepted deviation from the set point, as a fraction.
const DefaultTolerance = 0.5

// AcceptableRange returns the inclusive band [setPoint*(1-t), setPoint*(1+t)].
func AcceptableRange(setPoint, toleranceFraction float64) (minAcceptable, maxAcceptable float64) {
	return setPoint * (1 - toleranceFraction), setPoint * (1 + toleranceFraction)
}

// Validate checks an actual quantity against setPoint ± toleranceFraction.
// A nil setPoint or a NaN actual never passes.
func Validate(setPoint *float64, actual, toleranceFraction float64, unit string) error {
	if setPoint == nil {
		return newError(KindMissingSetPoint, "material has no set point")
	}

	lo, hi := AcceptableRange(*setPoint, toleranceFraction)
	if math.IsNaN(actual) || actual < lo || actual > hi {
		return &Error{
			Kind:   KindOutOfTolerance,
			Detail: fmt.Sprintf("entered %v %s, acceptable range %v - %v %s", actual, unit, lo, hi, unit),
			Range:  &Range{Min: lo, Max: hi, Unit: unit},
		}
	}
	return nil
}

// ErrorPercent renders |actual - setPoint| / setPoint * 100 with two decimals.
// It reports false when either value is absent; zero counts as absent.
func ErrorPercent(setPoint, actual *float64) (string, bool) {
	if setPoint == nil || actual == nil || *setPoint == 0 || *actual == 0 {
		return "", false
	}
	pct := math.Abs((*actual - *setPoint) / *setPoint * 100)
	return fmt.Sprintf("%.2f%%", pct), true
}
