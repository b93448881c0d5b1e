package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{}

func TestBus(t *testing.T) {
	b := New()
	ctx := context.Background()

	var first, second []int
	unsubFirst := On(b, func(_ context.Context, p ping) { first = append(first, p.N) })
	On(b, func(_ context.Context, p ping) { second = append(second, p.N) })

	Emit(ctx, b, ping{N: 1})
	Emit(ctx, b, pong{})
	unsubFirst()
	unsubFirst()
	Emit(ctx, b, ping{N: 2})

	require.Equal(t, []int{1}, first)
	require.Equal(t, []int{1, 2}, second)
}

func TestGlobalBus(t *testing.T) {
	t.Cleanup(func() { Use(nil) })
	ctx := context.Background()

	Use(nil)
	Publish(ctx, ping{N: 1})
	require.NotPanics(t, func() { Subscribe(func(context.Context, ping) {})() })

	Use(New())
	require.NotNil(t, Current())
	var got []int
	unsub := Subscribe(func(_ context.Context, p ping) { got = append(got, p.N) })
	Publish(ctx, ping{N: 3})
	unsub()
	Publish(ctx, ping{N: 4})
	require.Equal(t, []int{3}, got)
}
