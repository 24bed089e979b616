package raft

import (
	"context"

	"github.com/devadigapratham/microdose/api/models"
	"github.com/devadigapratham/microdose/dosing"
)

// ReplicatedLog is a dosing.EventLog and store.Preferences whose writes go
// through the raft log, so every station in the cluster sees the same history.
type ReplicatedLog struct {
	node    *Node
	logName string
}

// NewReplicatedLog appends to the log named logName on node.
func NewReplicatedLog(node *Node, logName string) *ReplicatedLog {
	if logName == "" {
		logName = dosing.DefaultLogName
	}
	return &ReplicatedLog{node: node, logName: logName}
}

func (l *ReplicatedLog) Append(ctx context.Context, ev dosing.DosingEvent) error {
	return l.node.Apply(ctx, &models.Command{
		Type:    models.AppendDosingEvent,
		LogName: l.logName,
		Event:   &ev,
	})
}

// List reads the local replica. It may lag the leader on followers.
func (l *ReplicatedLog) List(_ context.Context) ([]dosing.DosingEvent, error) {
	return l.node.GetFSM().Events(l.logName), nil
}

func (l *ReplicatedLog) SortOrder(_ context.Context, page string) ([]string, error) {
	return l.node.GetFSM().SortOrder(page), nil
}

func (l *ReplicatedLog) SetSortOrder(ctx context.Context, page string, ids []string) error {
	return l.node.Apply(ctx, &models.Command{
		Type: models.SetSortOrder,
		Page: page,
		IDs:  ids,
	})
}
