package raft

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/devadigapratham/microdose/api/models"
	"github.com/devadigapratham/microdose/dosing"
)

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestSingleNodeReplicatedLog(t *testing.T) {
	dir := t.TempDir()
	node, err := NewNode(&Config{
		NodeID:    "station-1",
		RaftAddr:  freeAddr(t),
		RaftDir:   dir,
		Bootstrap: true,
	}, zap.NewNop())
	require.NoError(t, err)

	require.Eventually(t, node.Leader, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, node.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	history := NewReplicatedLog(node, "")
	require.NoError(t, history.Append(ctx, dosing.DosingEvent{ID: "ev-1", Outcome: dosing.OutcomeCompleted, ActualQuantity: 98}))
	require.NoError(t, history.Append(ctx, dosing.DosingEvent{ID: "ev-2", Outcome: dosing.OutcomeBypassed}))
	// Retrying a committed append leaves one entry
	require.NoError(t, history.Append(ctx, dosing.DosingEvent{ID: "ev-1", Outcome: dosing.OutcomeCompleted, ActualQuantity: 98}))

	events, err := history.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-1", events[0].ID)
	assert.Equal(t, "ev-2", events[1].ID)

	require.NoError(t, history.SetSortOrder(ctx, "materials", []string{"2", "1"}))
	ids, err := history.SortOrder(ctx, "materials")
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids)

	// FSM errors come back from Apply
	err = node.Apply(ctx, &models.Command{Type: models.SetSortOrder})
	assert.ErrorContains(t, err, "page is empty")

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	err = node.Apply(expired, &models.Command{Type: models.SetSortOrder, Page: "orders"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, node.GetFSM().SortOrder("orders"))

	require.NoError(t, node.Shutdown())

	// Shutdown released the bolt files
	for _, name := range []string{"raft-log.db", "raft-stable.db"} {
		db, err := bbolt.Open(filepath.Join(dir, name), 0600, &bbolt.Options{Timeout: time.Second})
		require.NoError(t, err, name)
		require.NoError(t, db.Close())
	}
}
