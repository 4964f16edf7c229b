package neat

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluationPending is returned by NextGeneration while genomes of the
	// current generation still wait for a fitness score.
	ErrEvaluationPending = errors.New("generation has unevaluated genomes")
	// ErrInvalidFitness is returned when a reported fitness is negative, NaN or infinite.
	ErrInvalidFitness = errors.New("fitness must be finite and non-negative")
	// ErrUnknownGenome is returned when a fitness report names a genome outside the current generation.
	ErrUnknownGenome = errors.New("genome is not part of the current generation")
)

// ValidationError reports a runtime parameter outside its documented range.
// It is returned at the point of use (e.g. by the Mutator) so callers can catch it with errors.As.
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %g: must be within [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// checkRange returns a *ValidationError when value is outside [minVal, maxVal].
func checkRange(field string, value, minVal, maxVal float64) error {
	if value < minVal || value > maxVal || value != value { // value != value catches NaN
		return &ValidationError{Field: field, Value: value, Min: minVal, Max: maxVal}
	}
	return nil
}
