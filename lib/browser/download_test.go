package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompleteServesAllWaiters(t *testing.T) {
	w := &downloadWatcher{dir: t.TempDir(), suggested: map[string]string{}}
	a := w.subscribe()
	b := w.subscribe()

	w.begin("guid-1", "export.csv")
	w.complete("guid-1")

	require.Equal(t, "export.csv", (<-a).SuggestedName)
	require.Equal(t, "export.csv", (<-b).SuggestedName)
	require.Empty(t, w.waiters)
	require.Empty(t, w.suggested, "served guids must not accumulate")
}

func TestUnsubscribedWaiterMissesLaterDownloads(t *testing.T) {
	w := &downloadWatcher{dir: t.TempDir(), suggested: map[string]string{}}
	stale := w.subscribe()
	w.unsubscribe(stale)

	live := w.subscribe()
	w.begin("guid-2", "export.xls")
	w.complete("guid-2")

	require.Len(t, stale, 0, "an abandoned wait must not swallow the next download")
	require.Equal(t, "export.xls", (<-live).SuggestedName)
}

func TestUnsubscribeAfterDeliveryIsHarmless(t *testing.T) {
	w := &downloadWatcher{dir: t.TempDir(), suggested: map[string]string{}}
	ch := w.subscribe()
	w.complete("guid-3")
	w.unsubscribe(ch)

	require.Contains(t, (<-ch).Path, "guid-3")
}
