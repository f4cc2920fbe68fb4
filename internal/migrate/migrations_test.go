package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"internfunnel/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	current, latest, err := Status(conn)
	require.NoError(t, err)
	assert.Equal(t, 0, current)
	assert.GreaterOrEqual(t, latest, 1)

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))

	current, latest, err = Status(conn)
	require.NoError(t, err)
	assert.Equal(t, latest, current)

	for _, table := range []string{"applications", "questionnaire_results", "users", "events", "completion_signals"} {
		var n int
		require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}
