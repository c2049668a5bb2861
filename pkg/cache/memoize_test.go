package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoizeByArgumentIdentity(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	type args struct {
		A, B int
	}

	calls := 0
	sum := Memoize(s, "sum", func(_ context.Context, a args) (int, error) {
		calls++
		return a.A + a.B, nil
	})

	v, err := sum(ctx, args{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = sum(ctx, args{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = sum(ctx, args{2, 3})
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	assert.Equal(t, 2, calls, "one underlying call per distinct argument key")
}

func TestMemoizeWithCustomKey(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	calls := 0
	lookup := MemoizeWithKey(s, "lookup",
		func(id string) string { return id },
		func(_ context.Context, id string) (string, error) {
			calls++
			return "value-" + id, nil
		},
	)

	for i := 0; i < 3; i++ {
		v, err := lookup(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "value-42", v)
	}
	assert.Equal(t, 1, calls)
}

func TestMemoizedFunctionsWithSameArgsDoNotCollide(t *testing.T) {
	s := newTestStore(t, StoreConfig{})
	ctx := context.Background()

	double := Memoize(s, "double", func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	})
	square := Memoize(s, "square", func(_ context.Context, n int) (int, error) {
		return n * n, nil
	})

	v, err := double(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	v, err = square(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, v, "keys must include the function identity")
}
