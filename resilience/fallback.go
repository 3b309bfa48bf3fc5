package resilience

// Outcome carries a typed result or the error that prevented it.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Success wraps a value in a successful outcome.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

// Failure wraps an error in a failed outcome.
func Failure[T any](err error) Outcome[T] {
	return Outcome[T]{Err: err}
}

// OK reports whether the outcome succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Fallback supplies a default when an outcome failed. Fn wins over Value when
// both are set.
type Fallback[T any] struct {
	Value T
	Fn    func() T
}

// WithFallback returns the outcome's value on success, otherwise the
// fallback function's result if provided, otherwise the fallback value.
func WithFallback[T any](result Outcome[T], fallback Fallback[T]) T {
	if result.OK() {
		return result.Value
	}
	if fallback.Fn != nil {
		return fallback.Fn()
	}
	return fallback.Value
}

// Recover runs the operation and substitutes the fallback when it fails.
func Recover[T any](op func() (T, error), fallback Fallback[T]) T {
	value, err := op()
	return WithFallback(Outcome[T]{Value: value, Err: err}, fallback)
}
