// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package result provides the two-variant outcome returned by every public
// operation of the query builders and the auth state wrapper.
package result

import (
	"github.com/erikg84/supabase-sdk/errors"
)

// Unit is the value of a successful operation that produces nothing.
type Unit struct{}

// Result is either a Success holding a value or a Failure holding an *errors.Error.
// The zero value is a Success holding the zero value of T.
type Result[T any] struct {
	value T
	err   *errors.Error
}

// Success wraps value.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps err. A nil err still yields a Failure.
func Failure[T any](err *errors.Error) Result[T] {
	if err == nil {
		err = errors.NewUnknownError("failure without error", nil)
	}
	return Result[T]{err: err}
}

// Of builds a Result from a conventional (value, error) pair, classifying err
// with the fallback kind.
func Of[T any](value T, err error, fallback errors.Kind) Result[T] {
	if err != nil {
		return Failure[T](errors.Classify(err, fallback))
	}
	return Success(value)
}

func (r Result[T]) IsSuccess() bool { return r.err == nil }
func (r Result[T]) IsFailure() bool { return r.err != nil }

// Value returns the success value, or the zero value of T for a Failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure error, or nil for a Success.
func (r Result[T]) Err() *errors.Error { return r.err }

// Get unpacks the result in the (value, error) form.
func (r Result[T]) Get() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

// GetOrDefault returns the success value or def.
func (r Result[T]) GetOrDefault(def T) T {
	if r.err != nil {
		return def
	}
	return r.value
}

// OnSuccess runs fn with the value when r is a Success and returns r unchanged.
func (r Result[T]) OnSuccess(fn func(T)) Result[T] {
	if r.err == nil {
		fn(r.value)
	}
	return r
}

// OnFailure runs fn with the error when r is a Failure and returns r unchanged.
func (r Result[T]) OnFailure(fn func(*errors.Error)) Result[T] {
	if r.err != nil {
		fn(r.err)
	}
	return r
}

// Map transforms the success value. A Failure is returned unchanged and fn is
// never called for it. A panic inside fn becomes an Unknown failure.
func Map[T, U any](r Result[T], fn func(T) U) (out Result[U]) {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = Failure[U](errors.FromPanic(rec, errors.KindUnknown))
		}
	}()
	return Success(fn(r.value))
}

// FlatMap chains an operation that itself returns a Result.
func FlatMap[T, U any](r Result[T], fn func(T) Result[U]) (out Result[U]) {
	if r.err != nil {
		return Result[U]{err: r.err}
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = Failure[U](errors.FromPanic(rec, errors.KindUnknown))
		}
	}()
	return fn(r.value)
}

// Fold collapses the result into a single value. Unlike Map and FlatMap it
// has no Failure to recover into, so a panic in either callback propagates.
func Fold[T, U any](r Result[T], onSuccess func(T) U, onFailure func(*errors.Error) U) U {
	if r.err != nil {
		return onFailure(r.err)
	}
	return onSuccess(r.value)
}
