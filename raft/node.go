package raft

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
	"go.uber.org/zap"

	"github.com/devadigapratham/microdose/api/models"
)

// DefaultApplyTimeout bounds a raft apply when the caller's context has no deadline
const DefaultApplyTimeout = 5 * time.Second

// Node represents a node in the Raft cluster
type Node struct {
	raft      *raft.Raft
	fsm       *FSM
	transport *raft.NetworkTransport
	stores    []*raftboltdb.BoltStore
}

// Config represents the configuration for a Raft node
type Config struct {
	NodeID    string
	RaftAddr  string
	RaftDir   string
	Bootstrap bool
	Peers     []string
}

// NewNode creates a new Raft node
func NewNode(config *Config, logger *zap.Logger) (*Node, error) {
	fsm := NewFSM()
	logOutput := zap.NewStdLog(logger.Named("raft")).Writer()

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(config.NodeID)
	raftConfig.SnapshotInterval = 20 * time.Second
	raftConfig.SnapshotThreshold = 1024
	raftConfig.LogOutput = logOutput

	// Log entries and stable state live in separate bolt files
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(config.RaftDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create BoltDB log store: %v", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(config.RaftDir, "raft-stable.db"))
	if err != nil {
		_ = logStore.Close()
		return nil, fmt.Errorf("failed to create BoltDB stable store: %v", err)
	}
	stores := []*raftboltdb.BoltStore{logStore, stableStore}

	snapshotStore, err := raft.NewFileSnapshotStore(config.RaftDir, 3, logOutput)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to create snapshot store: %v", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", config.RaftAddr)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to resolve TCP address: %v", err)
	}
	transport, err := raft.NewTCPTransport(config.RaftAddr, addr, 3, 10*time.Second, logOutput)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to create TCP transport: %v", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		_ = transport.Close()
		closeStores(stores)
		return nil, fmt.Errorf("failed to create Raft instance: %v", err)
	}

	if config.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(config.NodeID),
					Address: raft.ServerAddress(config.RaftAddr),
				},
			},
		}

		for _, peer := range config.Peers {
			if peer != config.RaftAddr {
				configuration.Servers = append(configuration.Servers, raft.Server{
					ID:      raft.ServerID(fmt.Sprintf("node-%s", peer)),
					Address: raft.ServerAddress(peer),
				})
			}
		}

		f := r.BootstrapCluster(configuration)
		if err := f.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("failed to bootstrap cluster: %v", err)
		}
	}

	return &Node{
		raft:      r,
		fsm:       fsm,
		transport: transport,
		stores:    stores,
	}, nil
}

// Apply applies a command to the Raft log. The context deadline, if any,
// bounds how long to wait for the entry to commit.
func (n *Node) Apply(ctx context.Context, cmd *models.Command) error {
	data, err := cmd.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal command: %v", err)
	}

	timeout := DefaultApplyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	future := n.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command to Raft log: %w", err)
	}

	// Check for application error
	if appErr, ok := future.Response().(error); ok && appErr != nil {
		return fmt.Errorf("command application failed: %w", appErr)
	}

	return nil
}

// GetFSM returns the FSM
func (n *Node) GetFSM() *FSM {
	return n.fsm
}

// Leader returns true if this node is the leader
func (n *Node) Leader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderAddress returns the address of the current leader
func (n *Node) LeaderAddress() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// State returns the current state of the Raft node
func (n *Node) State() raft.RaftState {
	return n.raft.State()
}

// Ready reports an error while the cluster has no known leader
func (n *Node) Ready() error {
	if n.LeaderAddress() == "" {
		return fmt.Errorf("raft node in state %s has no leader", n.State())
	}
	return nil
}

// AddVoter adds a node to the cluster; only the leader may do so
func (n *Node) AddVoter(nodeID, addr string) error {
	return n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, 0).Error()
}

// RemoveServer removes a node from the cluster
func (n *Node) RemoveServer(nodeID string) error {
	return n.raft.RemoveServer(raft.ServerID(nodeID), 0, 0).Error()
}

// Shutdown stops the Raft node
func (n *Node) Shutdown() error {
	var err error
	if n.raft != nil {
		err = n.raft.Shutdown().Error()
	}
	if n.transport != nil {
		_ = n.transport.Close()
	}
	closeStores(n.stores)
	return err
}

func closeStores(stores []*raftboltdb.BoltStore) {
	for _, s := range stores {
		_ = s.Close()
	}
}
