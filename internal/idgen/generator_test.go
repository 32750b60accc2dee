package idgen

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		wantErr  bool
	}{
		{name: "default is snowflake", strategy: ""},
		{name: "snowflake", strategy: StrategySnowflake},
		{name: "ulid", strategy: StrategyULID},
		{name: "unknown", strategy: "uuid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(Config{Strategy: tt.strategy})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			id, err := g.Generate()
			require.NoError(t, err)
			ok, reason := g.Validate(id)
			assert.True(t, ok, reason)
		})
	}
}

func TestSnowflake_NonDecreasing(t *testing.T) {
	g, err := NewSnowflakeGenerator(1, 0)
	require.NoError(t, err)

	var last int64
	for i := 0; i < 10000; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		n, err := strconv.ParseInt(id, 10, 64)
		require.NoError(t, err)
		require.Greater(t, n, last)
		last = n
	}
}

func TestSnowflake_ClockBackwards(t *testing.T) {
	g, err := NewSnowflakeGenerator(0, 0)
	require.NoError(t, err)

	clock := DefaultEpochMs + 5000
	g.now = func() int64 { return clock }

	_, err = g.Generate()
	require.NoError(t, err)

	clock -= 10
	_, err = g.Generate()
	assert.ErrorIs(t, err, ErrClockBackwards)
}

func TestSnowflake_InvalidMachineID(t *testing.T) {
	_, err := NewSnowflakeGenerator(maxMachineID+1, 0)
	assert.Error(t, err)
}

func TestSnowflake_Timestamp(t *testing.T) {
	g, err := NewSnowflakeGenerator(3, 0)
	require.NoError(t, err)
	g.now = func() int64 { return DefaultEpochMs + 42 }

	id, err := g.Generate()
	require.NoError(t, err)

	ts, err := g.Timestamp(id)
	require.NoError(t, err)
	assert.Equal(t, DefaultEpochMs+42, ts.UnixMilli())
}

func TestULID_Monotonic(t *testing.T) {
	g := NewULIDGenerator()

	last := ""
	for i := 0; i < 1000; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}

	ok, _ := g.Validate("not-a-ulid")
	assert.False(t, ok)
}
