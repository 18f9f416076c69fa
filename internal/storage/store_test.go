package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSchema(db))
	return NewStore(db)
}

func TestSaveAndCountMessages(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()

	require.NoError(t, s.SaveMessage(1, 42, "user", "what is my drawdown?", now))
	require.NoError(t, s.SaveMessage(1, 0, "assistant", "Your max drawdown is -12%.", now+1))
	require.NoError(t, s.SaveMessage(2, 42, "user", "other chat", now))

	n, err := s.CountMessages(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.CountMessages(3)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestToolUsageCounters(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().Unix()

	require.NoError(t, s.RecordToolCall(1, "get_stock_quote", true, now))
	require.NoError(t, s.RecordToolCall(1, "get_stock_quote", false, now))
	require.NoError(t, s.RecordToolCall(1, "get_stock_quote", true, now))
	require.NoError(t, s.RecordToolCall(1, "create_pie_chart", true, now))
	require.NoError(t, s.RecordToolCall(9, "get_fx_rate", true, now))

	usage, err := s.FetchToolUsage(1)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, ToolUsage{Tool: "get_stock_quote", Calls: 3, Fails: 1}, usage[0])
	assert.Equal(t, ToolUsage{Tool: "create_pie_chart", Calls: 1, Fails: 0}, usage[1])
}

func TestToolUsageEmpty(t *testing.T) {
	s := newTestStore(t)
	usage, err := s.FetchToolUsage(1)
	require.NoError(t, err)
	assert.Empty(t, usage)
}
