package csvstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pmoscrawl/lib/testutil"
)

func TestIndexRoundtrip(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "lib/csvstore",
		DbSchema: Schema,
	})
	defer cleanup()
	idx := NewIndex(setup.DB)

	done, err := idx.IsComplete("unit")
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, idx.MarkComplete("unit"))
	require.NoError(t, idx.MarkComplete("unit"))

	done, err = idx.IsComplete("unit")
	require.NoError(t, err)
	require.True(t, done)

	done, err = idx.IsComplete("other")
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, idx.Forget("unit"))
	done, err = idx.IsComplete("unit")
	require.NoError(t, err)
	require.False(t, done)
}
