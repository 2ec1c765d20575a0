// Package chain threads an accumulator through an ordered list of
// transformer stages that share one context value.
package chain

import "fmt"

// Transformer receives the current accumulator and the shared context and
// returns the next accumulator.
type Transformer[T, C any] func(acc T, ctx C) (T, error)

// Apply runs transformers in order starting from seed. Every stage runs,
// including those following a stage that returned its input unchanged. The
// first error aborts the chain.
func Apply[T, C any](transformers []Transformer[T, C], seed T, ctx C) (T, error) {
	acc := seed
	for i, fn := range transformers {
		next, err := fn(acc, ctx)
		if err != nil {
			var zero T
			return zero, fmt.Errorf("chain stage %d: %w", i, err)
		}
		acc = next
	}
	return acc, nil
}

// Compose folds transformers into a single Transformer.
func Compose[T, C any](transformers ...Transformer[T, C]) Transformer[T, C] {
	return func(acc T, ctx C) (T, error) {
		return Apply(transformers, acc, ctx)
	}
}

// Lift adapts an infallible function into a Transformer.
func Lift[T, C any](fn func(T, C) T) Transformer[T, C] {
	return func(acc T, ctx C) (T, error) {
		return fn(acc, ctx), nil
	}
}
