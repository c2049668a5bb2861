package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// KeyFunc derives the cache key suffix for a memoized call from its
// argument.
type KeyFunc[A any] func(arg A) string

// Memoize wraps fn so its results are cached per argument, routed through
// GetOrSet under keys derived from name and the JSON form of the
// argument. Distinct arguments are distinct keys; repeated calls with an
// argument already cached do not invoke fn.
func Memoize[A, R any](store *Store, name string, fn func(context.Context, A) (R, error), opts ...EntryOptions) func(context.Context, A) (R, error) {
	return MemoizeWithKey(store, name, defaultKey[A], fn, opts...)
}

// MemoizeWithKey is Memoize with a caller-supplied key generator, for
// argument types whose JSON form is unsuitable as an identity.
func MemoizeWithKey[A, R any](store *Store, name string, keyFn KeyFunc[A], fn func(context.Context, A) (R, error), opts ...EntryOptions) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		key := fmt.Sprintf("memo:%s:%s", name, keyFn(arg))

		v, err := store.GetOrSet(ctx, key, func(ctx context.Context) (interface{}, error) {
			return fn(ctx, arg)
		}, opts...)
		if err != nil {
			var zero R
			return zero, err
		}

		result, ok := v.(R)
		if !ok {
			var zero R
			return zero, fmt.Errorf("memoized value for %q has unexpected type %T", key, v)
		}
		return result, nil
	}
}

func defaultKey[A any](arg A) string {
	if b, err := json.Marshal(arg); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", arg)
}
