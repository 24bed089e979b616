package dosing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager(t *testing.T) {
	m := NewManager(StationConfig{Log: NewMemoryLog(), Scanner: NewDelayScanner(0)})
	defer m.Close()

	_, err := m.Open(NewOrder("", "", nil))
	assert.Error(t, err)

	b, err := m.Open(NewOrder("b", "", []MaterialLine{{ID: "1", Title: "Oil"}}))
	require.NoError(t, err)
	_, err = m.Open(NewOrder("a", "", []MaterialLine{{ID: "1", Title: "Oil"}}))
	require.NoError(t, err)

	_, err = m.Open(NewOrder("b", "", nil))
	assert.True(t, errors.Is(err, ErrOrderExists))

	got, err := m.Get("b")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = m.Get("missing")
	assert.True(t, errors.Is(err, ErrUnknownOrder))

	states := m.States()
	require.Len(t, states, 2)
	assert.Equal(t, "a", states[0].Order.OrderID)
	assert.Equal(t, "b", states[1].Order.OrderID)

	// A completed order can be reopened under the same ID
	_, err = b.BeginScan()
	require.True(t, errors.Is(err, ErrMissingBarcode))
	_, err = b.Bypass(context.Background())
	require.NoError(t, err)
	require.True(t, b.State().Order.Complete)

	reopened, err := m.Open(NewOrder("b", "", []MaterialLine{{ID: "1", Title: "Oil"}}))
	require.NoError(t, err)
	assert.NotSame(t, b, reopened)
	assert.False(t, reopened.State().Order.Complete)
}

func TestFilter(t *testing.T) {
	events := []DosingEvent{
		{ID: "1", OrderID: "a", Outcome: OutcomeCompleted},
		{ID: "2", OrderID: "a", Outcome: OutcomeBypassed},
		{ID: "3", OrderID: "b", Outcome: OutcomeCompleted},
	}
	assert.Len(t, Filter(events, "", ""), 3)
	assert.Len(t, Filter(events, "a", ""), 2)
	got := Filter(events, "a", OutcomeCompleted)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
	assert.Empty(t, Filter(events, "c", ""))
}
