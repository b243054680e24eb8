// Package pipeline defines the stage contract shared by every component of a
// capture chain: sources produce a Stream, links turn one Stream into another
// and sinks pull a Stream to completion.
//
// Streams are pull-based and single-consumer. A stage only does work inside
// Next, so a consumer that stops calling Next has cancelled the chain.
package pipeline

import (
	"context"
	"io"
	"iter"

	"github.com/pkg/errors"
)

var (
	// ErrIdle is returned by a source that had nothing to deliver within its
	// poll window. It is not terminal: the caller may call Next again.
	ErrIdle = errors.New("pipeline: no input within poll window")

	// ErrNilInput is returned when a link is built without an input stream.
	ErrNilInput = errors.New("pipeline: input stream is nil")
)

// Stream produces values on demand. Next returns io.EOF once the stream is
// exhausted; after that every call returns io.EOF again.
type Stream[T any] interface {
	Next(ctx context.Context) (T, error)
}

// StreamFunc adapts a function to a Stream.
type StreamFunc[T any] func(ctx context.Context) (T, error)

// Next calls f.
func (f StreamFunc[T]) Next(ctx context.Context) (T, error) {
	return f(ctx)
}

// FromSlice returns a Stream yielding items in order.
func FromSlice[T any](items []T) Stream[T] {
	i := 0
	return StreamFunc[T](func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if i >= len(items) {
			return zero, io.EOF
		}
		item := items[i]
		i++
		return item, nil
	})
}

// Map applies fn to every value of in. Errors from fn end the stream.
func Map[In, Out any](in Stream[In], fn func(In) (Out, error)) (Stream[Out], error) {
	if in == nil {
		return nil, ErrNilInput
	}
	return StreamFunc[Out](func(ctx context.Context) (Out, error) {
		var zero Out
		v, err := in.Next(ctx)
		if err != nil {
			return zero, err
		}
		return fn(v)
	}), nil
}

// Tap calls fn on every value of in and passes the value through unchanged.
func Tap[T any](in Stream[T], fn func(context.Context, T)) (Stream[T], error) {
	if in == nil {
		return nil, ErrNilInput
	}
	return StreamFunc[T](func(ctx context.Context) (T, error) {
		v, err := in.Next(ctx)
		if err == nil {
			fn(ctx, v)
		}
		return v, err
	}), nil
}

// Limit ends the stream after n values. n <= 0 means no limit.
func Limit[T any](in Stream[T], n int) (Stream[T], error) {
	if in == nil {
		return nil, ErrNilInput
	}
	if n <= 0 {
		return in, nil
	}
	seen := 0
	return StreamFunc[T](func(ctx context.Context) (T, error) {
		var zero T
		if seen >= n {
			return zero, io.EOF
		}
		v, err := in.Next(ctx)
		if err == nil {
			seen++
		}
		return v, err
	}), nil
}

// Pull drives s until it is exhausted, handing each value to fn. Idle
// notifications are skipped. It returns nil on io.EOF.
func Pull[T any](ctx context.Context, s Stream[T], fn func(T) error) error {
	if s == nil {
		return ErrNilInput
	}
	for {
		v, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, ErrIdle) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// Collect pulls s to completion and returns every value.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	var out []T
	err := Pull(ctx, s, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// All adapts s to a range-over-func sequence. Breaking out of the loop stops
// pulling. A terminal error other than io.EOF is yielded once as the last pair.
func All[T any](ctx context.Context, s Stream[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, ErrIdle) {
				continue
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
