package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devadigapratham/microdose/dosing"
)

func TestStoreEventsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "microdose.db")

	s, err := Open(path, "")
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(ctx, dosing.DosingEvent{
			ID:             id,
			OrderID:        "order-1",
			MaterialID:     "1",
			SetPoint:       dosing.Float(100),
			ActualQuantity: float64(100 + i),
			Timestamp:      at,
			Outcome:        dosing.OutcomeCompleted,
		}))
	}
	require.NoError(t, s.Ping())
	require.NoError(t, s.Close())

	s, err = Open(path, dosing.DefaultLogName)
	require.NoError(t, err)
	defer s.Close()

	events, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "c", events[2].ID)
	assert.Equal(t, 102.0, events[2].ActualQuantity)
	assert.True(t, at.Equal(events[0].Timestamp))
	require.NotNil(t, events[0].SetPoint)
	assert.Equal(t, 100.0, *events[0].SetPoint)
}

func TestStoreSeparateLogs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "microdose.db")

	s, err := Open(path, "line-a")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, dosing.DosingEvent{ID: "x"}))
	require.NoError(t, s.Close())

	s, err = Open(path, "line-b")
	require.NoError(t, err)
	defer s.Close()
	events, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStoreSortOrder(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "microdose.db"), "")
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.SortOrder(ctx, "materials")
	require.NoError(t, err)
	assert.Nil(t, ids)

	require.NoError(t, s.SetSortOrder(ctx, "materials", []string{"3", "1", "2"}))
	require.NoError(t, s.SetSortOrder(ctx, "recipes", []string{"9"}))

	ids, err = s.SortOrder(ctx, "materials")
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1", "2"}, ids)
}

func TestStoreHonorsCanceledContext(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "microdose.db"), "")
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Append(ctx, dosing.DosingEvent{}), context.Canceled)
}

func TestMemoryPreferences(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPreferences()
	ids := []string{"b", "a"}
	require.NoError(t, p.SetSortOrder(ctx, "orders", ids))
	ids[0] = "z"

	got, err := p.SortOrder(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, got)
}
