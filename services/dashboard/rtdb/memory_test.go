package rtdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetTree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "sensors", map[string]any{
		"temperature":  24.5,
		"humidity":     61,
		"soilMoisture": 2100,
	}))
	require.NoError(t, s.Set(ctx, "actuators/pumpStatus", true))

	root, err := s.Get(ctx, "")
	require.NoError(t, err)
	assert.InDelta(t, 24.5, root.Child("sensors/temperature").Float(), 1e-9)
	assert.Equal(t, int64(2100), root.Child("sensors/soilMoisture").Int())
	assert.True(t, root.Child("actuators/pumpStatus").Bool())
	assert.False(t, root.Child("actuators/bulbStatus").Exists())

	leaf, err := s.Get(ctx, "/sensors/humidity/")
	require.NoError(t, err)
	assert.Equal(t, "sensors/humidity", leaf.Path())
	assert.InDelta(t, 61, leaf.Float(), 1e-9)
}

func TestMemoryStore_SetReplacesSubtree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "sensors", map[string]any{"temperature": 20, "humidity": 50}))
	require.NoError(t, s.Set(ctx, "sensors", map[string]any{"temperature": 21}))

	snap, err := s.Get(ctx, "sensors")
	require.NoError(t, err)
	assert.False(t, snap.Child("humidity").Exists())

	// A scalar written at an ancestor is replaced by a deeper write.
	require.NoError(t, s.Set(ctx, "system", "booting"))
	require.NoError(t, s.Set(ctx, "system/deviceOnline", true))
	snap, err = s.Get(ctx, "system")
	require.NoError(t, err)
	assert.True(t, snap.Child("deviceOnline").Bool())

	require.NoError(t, s.Set(ctx, "system", nil))
	snap, err = s.Get(ctx, "system")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemoryStore_SubscribeRelatedPaths(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var rootCalls, sensorCalls, controlCalls int
	var lastSensors Snapshot
	cancelRoot := s.Subscribe("", func(Snapshot) { rootCalls++ }, nil)
	defer cancelRoot()
	cancelSensors := s.Subscribe("sensors", func(snap Snapshot) {
		sensorCalls++
		lastSensors = snap
	}, nil)
	defer cancelSensors()
	cancelControls := s.Subscribe("controls", func(Snapshot) { controlCalls++ }, nil)

	// Initial delivery.
	assert.Equal(t, 1, rootCalls)
	assert.Equal(t, 1, sensorCalls)
	assert.Equal(t, 1, controlCalls)

	require.NoError(t, s.Set(ctx, "sensors/temperature", 30.0))
	assert.Equal(t, 2, rootCalls)
	assert.Equal(t, 2, sensorCalls)
	assert.Equal(t, 1, controlCalls)
	assert.InDelta(t, 30.0, lastSensors.Child("temperature").Float(), 1e-9)

	// A write above the subscription also reaches it.
	require.NoError(t, s.Set(ctx, "", map[string]any{"sensors": map[string]any{"humidity": 40}}))
	assert.Equal(t, 3, sensorCalls)
	assert.Equal(t, 2, controlCalls)
	assert.False(t, lastSensors.Child("temperature").Exists())

	cancelControls()
	cancelControls()
	require.NoError(t, s.Set(ctx, "controls/remoteControlEnabled", true))
	assert.Equal(t, 2, controlCalls)
}

func TestMemoryStore_Connection(t *testing.T) {
	s := NewMemoryStore()

	var states []bool
	cancel := s.SubscribeConnection(func(c bool) { states = append(states, c) })
	s.SetConnected(false)
	s.SetConnected(false)
	s.SetConnected(true)
	cancel()
	s.SetConnected(false)

	assert.Equal(t, []bool{true, false, true}, states)
}

func TestMemoryStore_StructValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	type flags struct {
		RemotePumpControl bool `json:"remotePumpControl"`
		RemoteBulbControl bool `json:"remoteBulbControl"`
	}
	require.NoError(t, s.Set(ctx, "controls", flags{RemotePumpControl: true}))

	snap, err := s.Get(ctx, "controls")
	require.NoError(t, err)
	assert.True(t, snap.Child("remotePumpControl").Bool())
	assert.True(t, snap.Child("remoteBulbControl").Exists())
	assert.False(t, snap.Child("remoteBulbControl").Bool())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewMemoryStore()
	assert.ErrorIs(t, s.Set(ctx, "a", 1), context.Canceled)
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_UpdateNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "sensors", map[string]any{"temperature": 22, "humidity": 50}))

	var roots []Snapshot
	var controlCalls int
	cancelRoot := s.Subscribe("", func(snap Snapshot) { roots = append(roots, snap) }, nil)
	defer cancelRoot()
	cancelControls := s.Subscribe("controls", func(Snapshot) { controlCalls++ }, nil)
	defer cancelControls()

	require.NoError(t, s.Update(ctx, map[string]any{
		"sensors/temperature":  30,
		"sensors/humidity":     80,
		"actuators/pumpStatus": true,
	}))

	require.Len(t, roots, 2)
	last := roots[1]
	assert.InDelta(t, 30, last.Child("sensors/temperature").Float(), 1e-9)
	assert.InDelta(t, 80, last.Child("sensors/humidity").Float(), 1e-9)
	assert.True(t, last.Child("actuators/pumpStatus").Bool())
	assert.Equal(t, 1, controlCalls)

	require.NoError(t, s.Update(ctx, nil))
	assert.Len(t, roots, 2)
}

func TestMemoryStore_UpdateRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.Update(ctx, map[string]any{"sensors": map[string]any{"humidity": 1}, "sensors/temperature": 2})
	assert.ErrorIs(t, err, ErrOverlappingPaths)
	err = s.Update(ctx, map[string]any{"a": 1, "a-b": 2, "/a/c": 3})
	assert.ErrorIs(t, err, ErrOverlappingPaths)

	root, err := s.Get(ctx, "")
	require.NoError(t, err)
	assert.False(t, root.Exists())
}
