package resourcesync

import (
	"context"
	"errors"
	"fmt"

	"github.com/goliatone/go-resource-sync/cache"
)

// ErrInvalidResultType is returned when a cached value does not hold the
// type a caller asked for, typically a fetcher registered with a mismatched
// result type.
var ErrInvalidResultType = errors.New("resourcesync: cached value has unexpected type")

// Fetch is the typed front of Engine.EnsureFresh. It returns the zero value
// with a nil error when the entry settled without data.
func Fetch[T any](ctx context.Context, e *Engine, key cache.Key) (T, error) {
	var zero T
	entry, err := e.EnsureFresh(ctx, key)
	if err != nil {
		return zero, err
	}
	if entry.Data == nil {
		return zero, nil
	}
	value, ok := entry.Data.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %s holds %T", ErrInvalidResultType, key.Canonical(), entry.Data)
	}
	return value, nil
}

// PatchValue adapts a typed transform into a PatchFunc. Entries holding a
// different type, including empty entries, pass through untouched, so an
// optimistic patch can never corrupt a slot it does not understand.
func PatchValue[T any](apply func(T) T) PatchFunc {
	return func(current any) any {
		value, ok := current.(T)
		if !ok {
			return current
		}
		return apply(value)
	}
}
