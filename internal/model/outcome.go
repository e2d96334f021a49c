package model

// Outcome carries either a value parsed from an external client or the
// deterministic fallback that replaced it. Callers branch on IsFallback
// instead of on error control flow.
type Outcome[T any] struct {
	Value    T
	fallback bool
	cause    error
}

// Parsed wraps a value that came back from the external client intact.
func Parsed[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// FellBack wraps a fallback value together with the error that forced it.
func FellBack[T any](v T, cause error) Outcome[T] {
	return Outcome[T]{Value: v, fallback: true, cause: cause}
}

// IsFallback reports whether the value is the heuristic replacement.
func (o Outcome[T]) IsFallback() bool {
	return o.fallback
}

// Cause returns the error that triggered the fallback, or nil.
func (o Outcome[T]) Cause() error {
	return o.cause
}
