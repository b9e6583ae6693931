package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%a\_b\%c\\d%`, Contains(`a_b%c\d`))

	ctx := context.Background()
	sqldb, err := Open(ctx, DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer sqldb.Close()

	match := func(value, needle string) bool {
		var n int
		require.NoError(t, sqldb.GetContext(ctx, &n, `SELECT ? LIKE ?`+LikeEscape, value, Contains(needle)))
		return n == 1
	}
	assert.True(t, match(`["q_1"]`, `"q_1"`))
	assert.False(t, match(`["qx1"]`, `"q_1"`))
	assert.False(t, match(`["qab2"]`, `"q%2"`))
	assert.True(t, match(`["a\\b"]`, `"a\\b"`))
}
