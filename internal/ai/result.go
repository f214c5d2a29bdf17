package ai

const (
	FallbackIntensity = 75
	FallbackAnalysis  = "Error calculating odds. Proceed with caution."
	FallbackVenues    = "I couldn't locate any training pits right now. Check your radar."
)

// Result is either a real value from the service or a fallback. Fallback is true
// whenever Value is a default; Err carries the cause when there was one.
type Result[T any] struct {
	Value    T
	Fallback bool
	Err      error
}

func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func Fallback[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Fallback: true, Err: err}
}

// Absent is a fallback carrying the zero value.
func Absent[T any](err error) Result[T] {
	var zero T
	return Fallback(zero, err)
}

// Present reports whether the result came from the service.
func (r Result[T]) Present() bool { return !r.Fallback }

func DefaultAnalysis() Analysis {
	return Analysis{IntensityScore: FallbackIntensity, Analysis: FallbackAnalysis}
}

func DefaultVenues() VenueReport {
	return VenueReport{Text: FallbackVenues, Links: []VenueLink{}}
}
