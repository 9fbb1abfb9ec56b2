package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	// Epoch 2024-01-01T00:00:00Z in milliseconds
	Epoch int64 = 1704067200000

	// NodeBits and StepBits share the low 22 bits
	NodeBits uint8 = 10
	StepBits uint8 = 12

	nodeMask  = -1 ^ (-1 << NodeBits)
	stepMask  = -1 ^ (-1 << StepBits)
	timeShift = NodeBits + StepBits
	nodeShift = StepBits
)

// IDGenerator generates time-ordered unique ids for one node
type IDGenerator struct {
	mu        sync.Mutex
	timestamp int64
	nodeID    int64
	step      int64
	now       func() int64
}

// NewIDGenerator creates a new ID generator
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	if nodeID < 0 || nodeID > nodeMask {
		return nil, errors.New("invalid node ID")
	}

	return &IDGenerator{
		nodeID: nodeID,
		now: func() int64 {
			return time.Now().UnixMilli()
		},
	}, nil
}

// NextID generates a new ID
func (g *IDGenerator) NextID() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.timestamp {
		// clock moved backwards, keep issuing from the last seen millisecond
		now = g.timestamp
	}

	if g.timestamp == now {
		g.step = (g.step + 1) & stepMask
		if g.step == 0 {
			for now <= g.timestamp {
				now = g.now()
			}
		}
	} else {
		g.step = 0
	}

	g.timestamp = now

	return uint64(((now - Epoch) << timeShift) | (g.nodeID << nodeShift) | g.step)
}

// NextNo returns a new id rendered as a decimal string behind prefix,
// e.g. "OD292871024617472".
func (g *IDGenerator) NextNo(prefix string) (uint64, string) {
	id := g.NextID()
	return id, prefix + strconv.FormatUint(id, 10)
}

// ParseID parses an ID to extract timestamp, node ID and step
func ParseID(id uint64) (timestamp int64, nodeID int64, step int64) {
	v := int64(id)
	step = v & stepMask
	nodeID = (v >> nodeShift) & nodeMask
	timestamp = (v >> timeShift) + Epoch
	return
}
