package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// DefaultNode is used when New is called before Init.
const DefaultNode = 1

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
// Only the first call has an effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a new time-ordered int64 ID using the Snowflake algorithm.
func New() int64 {
	once.Do(func() {
		node, _ = snowflake.NewNode(DefaultNode)
	})
	return node.Generate().Int64()
}

// NewSession returns a random session identifier.
func NewSession() string {
	return uuid.NewString()
}

// ValidSession reports whether s looks like an identifier issued by NewSession.
func ValidSession(s string) bool {
	return uuid.Validate(s) == nil
}
