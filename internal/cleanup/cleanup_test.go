package cleanup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsite/internal/data"
)

func TestNextRun(t *testing.T) {
	loc := time.UTC
	before := time.Date(2024, 7, 13, 2, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 7, 13, cleanupHour, 0, 0, 0, loc), nextRun(before))

	after := time.Date(2024, 7, 13, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 7, 14, cleanupHour, 0, 0, 0, loc), nextRun(after))

	exact := time.Date(2024, 7, 13, cleanupHour, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 7, 14, cleanupHour, 0, 0, 0, loc), nextRun(exact))
}

func TestRunCleanupPrunesHistory(t *testing.T) {
	require.NoError(t, data.InitDB(filepath.Join(t.TempDir(), "history.db")))
	t.Cleanup(func() { data.CloseDB() })

	for i := 0; i < 5; i++ {
		_, err := data.RecordRevision("save", []byte{byte('a' + i)})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, RunCleanup(3))
	assert.Equal(t, 0, RunCleanup(3))
}
