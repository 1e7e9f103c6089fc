package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapask/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Migrates(t *testing.T) {
	s := openStore(t)
	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), &Execution{PromptID: "p1", Attempt: 1, Code: "result = 1\n", Status: StatusSucceeded}))
	require.NoError(t, s.Close())

	// reopening applies no migrations and keeps the data
	s, err = Open(path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.ByPrompt(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	attempts := []*Execution{
		{PromptID: "p1", Attempt: 1, Code: "result = x\n", Status: StatusFailed, Kind: "execution", Error: "undefined: x", Duration: 12 * time.Millisecond, Created: base},
		{PromptID: "p1", Attempt: 2, Code: "result = 1\n", Status: StatusSucceeded, Skills: []string{"a", "b"}, Created: base.Add(time.Second)},
		{PromptID: "p2", Attempt: 1, Code: "result = 2\n", Status: StatusSucceeded, Created: base.Add(2 * time.Second)},
	}
	for _, e := range attempts {
		require.NoError(t, s.Record(ctx, e))
		assert.NotEmpty(t, e.ID)
	}

	got, err := s.ByPrompt(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StatusFailed, got[0].Status)
	assert.Equal(t, "undefined: x", got[0].Error)
	assert.Equal(t, 12*time.Millisecond, got[0].Duration)
	assert.Nil(t, got[0].Skills)
	assert.Equal(t, []string{"a", "b"}, got[1].Skills)
	assert.True(t, base.Equal(got[0].Created))

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "p2", recent[0].PromptID)
	assert.Equal(t, 2, recent[1].Attempt)

	code, err := s.LastCode(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "result = 1\n", code)

	_, err = s.LastCode(ctx, "missing")
	assert.ErrorContains(t, err, "no executions for prompt missing")
}
