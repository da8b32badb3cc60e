package model

// Result is the outcome of one fetch: either a value or the failure that prevented it.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok returns a successful result carrying v.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail returns a failed result carrying err.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Get returns the value and error held by the result.
func (r Result[T]) Get() (T, error) {
	return r.Value, r.Err
}

// Failed reports whether the result carries an error.
func (r Result[T]) Failed() bool {
	return r.Err != nil
}
