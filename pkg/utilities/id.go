package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake ids. They grow with time, so sorting by id
// follows creation order within one node.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator binds a generator to a snowflake node (0-1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new id. Safe for concurrent use.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}
