package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatfs/internal/common"
)

func TestAdmission(t *testing.T) {
	t.Parallel()

	t.Run("acquire up to the limit", func(t *testing.T) {
		t.Parallel()
		a := newAdmission(3)

		for i := 0; i < 3; i++ {
			require.NoError(t, a.Acquire())
		}
		assert.Equal(t, 3, a.Count())
		assert.ErrorIs(t, a.Acquire(), common.ErrTooManyOpen)
	})

	t.Run("release frees a slot", func(t *testing.T) {
		t.Parallel()
		a := newAdmission(1)

		require.NoError(t, a.Acquire())
		require.NoError(t, a.Release())
		assert.Equal(t, 0, a.Count())
		assert.NoError(t, a.Acquire())
	})

	t.Run("release at zero is rejected", func(t *testing.T) {
		t.Parallel()
		a := newAdmission(1)
		assert.ErrorIs(t, a.Release(), common.ErrNotOpen)
	})

	t.Run("reset drops all slots", func(t *testing.T) {
		t.Parallel()
		a := newAdmission(2)

		require.NoError(t, a.Acquire())
		require.NoError(t, a.Acquire())
		a.Reset()
		assert.Equal(t, 0, a.Count())
		assert.Equal(t, 2, a.Limit())
		assert.NoError(t, a.Acquire())
	})
}
