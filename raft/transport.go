package raft

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// Transport handles cluster membership requests between stations
type Transport struct {
	node   *Node
	client *http.Client
}

// NewTransport creates a new Transport
func NewTransport(node *Node) *Transport {
	return &Transport{
		node:   node,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type joinRequest struct {
	NodeID   string `json:"node_id" binding:"required"`
	NodeAddr string `json:"node_addr" binding:"required"`
}

type leaveRequest struct {
	NodeID string `json:"node_id" binding:"required"`
}

// JoinCluster asks the station serving HTTP at joinAddr to add this node as a voter
func (t *Transport) JoinCluster(ctx context.Context, joinAddr, nodeID, nodeAddr string) error {
	return t.post(ctx, joinAddr, "/cluster/join", joinRequest{NodeID: nodeID, NodeAddr: nodeAddr})
}

// LeaveCluster asks the station at addr to remove nodeID from the cluster
func (t *Transport) LeaveCluster(ctx context.Context, addr, nodeID string) error {
	return t.post(ctx, addr, "/cluster/leave", leaveRequest{NodeID: nodeID})
}

func (t *Transport) post(ctx context.Context, addr, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("received non-success response %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// RegisterRoutes mounts the membership endpoints on group
func (t *Transport) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/join", t.handleJoin)
	group.POST("/leave", t.handleLeave)
}

func (t *Transport) handleJoin(c *gin.Context) {
	// Only the leader can add nodes
	if !t.node.Leader() {
		c.JSON(http.StatusConflict, gin.H{"error": "not the leader", "leader": t.node.LeaderAddress()})
		return
	}

	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := t.node.AddVoter(req.NodeID, req.NodeAddr); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to add node: %v", err)})
		return
	}
	c.Status(http.StatusOK)
}

func (t *Transport) handleLeave(c *gin.Context) {
	// Only the leader can remove nodes
	if !t.node.Leader() {
		c.JSON(http.StatusConflict, gin.H{"error": "not the leader", "leader": t.node.LeaderAddress()})
		return
	}

	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := t.node.RemoveServer(req.NodeID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to remove node: %v", err)})
		return
	}
	c.Status(http.StatusOK)
}
