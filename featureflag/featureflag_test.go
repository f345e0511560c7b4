package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"disable_index_state", " ", ""})

	t.Run("run if enabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfSet(FlagDisableIndexState, func() {
			runFeature1 = true
		})
		require.True(t, runFeature1)

		var runFeature2 bool
		f.IfSet(FlagDisableEntityMoveBroadcast, func() {
			runFeature2 = true
		})
		require.False(t, runFeature2)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runFeature1 bool
		f.IfNotSet(FlagDisableIndexState, func() {
			runFeature1 = true
		})
		require.False(t, runFeature1)

		var runFeature2 bool
		f.IfNotSet(FlagDisableEntityMoveBroadcast, func() {
			runFeature2 = true
		})
		require.True(t, runFeature2)
	})

	t.Run("empty names are ignored", func(t *testing.T) {
		require.Len(t, f, 1)
		require.True(t, f.IsSet(FlagDisableIndexState))
	})
}
