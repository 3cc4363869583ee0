package resilience

// Result carries the outcome of a call made across an isolation boundary.
// Value is always usable: when Err is set it holds the degraded default.
type Result[T any] struct {
	Value T
	Err   error
}

// OK wraps a successful value.
func OK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Degrade wraps the fallback value with the error that caused it.
func Degrade[T any](fallback T, err error) Result[T] {
	return Result[T]{Value: fallback, Err: err}
}

// Degraded reports whether the value is a fallback.
func (r Result[T]) Degraded() bool { return r.Err != nil }
