// api/models/models.go
package models

import (
	"github.com/goccy/go-json"

	"github.com/devadigapratham/microdose/dosing"
)

// CommandType represents the type of command to be executed
type CommandType string

const (
	AppendDosingEvent CommandType = "APPEND_DOSING_EVENT"
	SetSortOrder      CommandType = "SET_SORT_ORDER"
)

// Command represents a command to be applied to the FSM
type Command struct {
	Type    CommandType         `json:"type"`
	LogName string              `json:"log_name,omitempty"`
	Event   *dosing.DosingEvent `json:"event,omitempty"`
	Page    string              `json:"page,omitempty"`
	IDs     []string            `json:"ids,omitempty"`
}

// Marshal serializes a command to JSON
func (c *Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// UnmarshalCommand deserializes a command from JSON
func UnmarshalCommand(data []byte) (*Command, error) {
	var c Command
	err := json.Unmarshal(data, &c)
	return &c, err
}
