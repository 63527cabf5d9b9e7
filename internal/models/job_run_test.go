package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusTransitions(t *testing.T) {
	all := []RunStatus{RunQueued, RunRunning, RunSucceeded, RunFailed}
	allowed := map[RunStatus][]RunStatus{
		RunQueued:  {RunRunning, RunFailed},
		RunRunning: {RunSucceeded, RunFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalRunsNeverMove(t *testing.T) {
	for _, from := range []RunStatus{RunSucceeded, RunFailed} {
		assert.True(t, from.Terminal())
		for _, to := range []RunStatus{RunQueued, RunRunning, RunSucceeded, RunFailed} {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestArticlesNilIsNull(t *testing.T) {
	var none Articles
	v, err := none.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var scanned Articles
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)

	require.NoError(t, scanned.Scan([]byte(`[{"title":"A","url":"https://example.com/a"}]`)))
	require.Len(t, scanned, 1)
	assert.Equal(t, "https://example.com/a", scanned[0].URL)
}
