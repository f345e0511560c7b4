package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchedulerDispatch(t *testing.T) {
	t.Run("messages are consumed in order", func(t *testing.T) {
		s := NewScheduler()
		defer s.Close()

		ctx := context.Background()
		require.NoError(t, s.Dispatch(ctx, Msg{RequestID: 1}))
		require.NoError(t, s.Dispatch(ctx, Msg{RequestID: 2}))

		require.Equal(t, uint32(1), (<-s.Messages()).RequestID)
		require.Equal(t, uint32(2), (<-s.Messages()).RequestID)
	})

	t.Run("dispatch on a full queue returns when the context is canceled", func(t *testing.T) {
		s := NewScheduler()
		defer s.Close()

		for i := 0; i < schedulerBufferSize; i++ {
			require.NoError(t, s.Dispatch(context.Background(), Msg{}))
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, s.Dispatch(ctx, Msg{}), context.Canceled)
	})

	t.Run("dispatch on a closed scheduler returns an error", func(t *testing.T) {
		s := NewScheduler()
		for i := 0; i < schedulerBufferSize; i++ {
			require.NoError(t, s.Dispatch(context.Background(), Msg{}))
		}

		s.Close()
		s.Close()
		require.Error(t, s.Dispatch(context.Background(), Msg{}))
	})
}
