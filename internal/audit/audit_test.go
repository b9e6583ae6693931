package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examdesk/internal/db"
)

func newLog(t *testing.T) *SQLLog {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLLog(conn)
}

func TestAppendAndSearch(t *testing.T) {
	ctx := context.Background()
	l := newLog(t)

	require.NoError(t, Record(ctx, l, "admin", "exam.publish", "ex-1", map[string]string{"title": "Midterm"}))
	require.NoError(t, Record(ctx, l, "staff1", "question.delete", "q-9", nil))
	require.NoError(t, Record(ctx, l, "admin", "user.create", "alice", nil))

	all, err := l.Search(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "user.create", all[0].Type)
	assert.Equal(t, "exam.publish", all[2].Type)
	assert.Greater(t, all[0].Seq, all[1].Seq)
	assert.JSONEq(t, `{"title":"Midterm"}`, string(all[2].Data))
	assert.Nil(t, all[1].Data)

	hits, err := l.Search(ctx, "EXAM", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "ex-1", hits[0].Key)

	byActor, err := l.Search(ctx, "staff1", 10)
	require.NoError(t, err)
	require.Len(t, byActor, 1)

	limited, err := l.Search(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRecordNilLog(t *testing.T) {
	assert.NoError(t, Record(context.Background(), nil, "a", "t", "k", nil))
}
