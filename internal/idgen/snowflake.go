package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	timestampBits = 41
	machineIDBits = 10
	sequenceBits  = 12

	maxMachineID = (1 << machineIDBits) - 1 // 1023
	maxSequence  = (1 << sequenceBits) - 1  // 4095

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

// DefaultEpochMs is 2024-01-01T00:00:00Z.
const DefaultEpochMs int64 = 1704067200000

// ErrClockBackwards is returned when the wall clock regresses past the last
// issued id.
var ErrClockBackwards = errors.New("clock moved backwards")

// SnowflakeGenerator generates 64-bit snowflake ids rendered in decimal.
type SnowflakeGenerator struct {
	mu        sync.Mutex
	epoch     int64
	machineID int64
	sequence  int64
	lastTime  int64
	now       func() int64
}

// NewSnowflakeGenerator creates a SnowflakeGenerator. machineID must be in
// [0, 1023]; epoch of 0 selects DefaultEpochMs.
func NewSnowflakeGenerator(machineID int64, epoch int64) (*SnowflakeGenerator, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("machine_id must be between 0 and %d, got %d", maxMachineID, machineID)
	}
	if epoch == 0 {
		epoch = DefaultEpochMs
	}
	return &SnowflakeGenerator{
		epoch:     epoch,
		machineID: machineID,
		now:       func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func (g *SnowflakeGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now-g.epoch < 0 {
		return "", fmt.Errorf("current time is before custom epoch")
	}
	if now < g.lastTime {
		return "", fmt.Errorf("%w: current=%d, last=%d", ErrClockBackwards, now, g.lastTime)
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			// sequence exhausted for this millisecond
			for now <= g.lastTime {
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTime = now

	id := ((now - g.epoch) << timestampShift) | (g.machineID << machineIDShift) | g.sequence
	return strconv.FormatInt(id, 10), nil
}

func (g *SnowflakeGenerator) Validate(id string) (bool, string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return false, "invalid integer format"
	}
	if n < 0 {
		return false, "id must be a positive integer"
	}

	ts := (n >> timestampShift) & ((1 << timestampBits) - 1)
	if ts+g.epoch > g.now() {
		return false, "timestamp is in the future"
	}
	return true, ""
}

// Timestamp extracts the creation time encoded in a snowflake id.
func (g *SnowflakeGenerator) Timestamp(id string) (time.Time, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid integer format: %w", err)
	}
	ts := (n >> timestampShift) & ((1 << timestampBits) - 1)
	return time.UnixMilli(ts + g.epoch), nil
}
