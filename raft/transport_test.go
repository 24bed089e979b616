package raft

import (
	"context"
	"testing"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCluster(t *testing.T) {
	defer gock.Off()

	gock.New("http://10.0.0.1:8000").
		Post("/cluster/join").
		MatchType("json").
		JSON(map[string]string{"node_id": "station-2", "node_addr": "10.0.0.2:7000"}).
		Reply(200)

	tr := NewTransport(nil)
	require.NoError(t, tr.JoinCluster(context.Background(), "10.0.0.1:8000", "station-2", "10.0.0.2:7000"))
	assert.True(t, gock.IsDone())
}

func TestLeaveClusterNotLeader(t *testing.T) {
	defer gock.Off()

	gock.New("https://leader.local").
		Post("/cluster/leave").
		Reply(409).
		JSON(map[string]string{"error": "not the leader"})

	tr := NewTransport(nil)
	err := tr.LeaveCluster(context.Background(), "https://leader.local", "station-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "not the leader")
}
