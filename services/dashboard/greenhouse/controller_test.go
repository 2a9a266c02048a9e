package greenhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

func readBool(t *testing.T, store rtdb.Store, path string) bool {
	t.Helper()
	snap, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	return snap.Bool()
}

func TestController_OverrideRequiresRemoteSwitch(t *testing.T) {
	store := rtdb.NewMemoryStore()
	c := NewController(store, zap.NewNop(), 0)

	err := c.Override(context.Background(), Pump, true)
	assert.ErrorIs(t, err, ErrRemoteDisabled)

	root, err := store.Get(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, root.Exists(), "nothing may be written while remote control is off")
}

func TestController_OverridePump(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	require.NoError(t, store.Set(ctx, PathRemoteControlEnabled, true))

	c := NewController(store, zap.NewNop(), 0)
	require.NoError(t, c.Override(ctx, Pump, true))

	assert.True(t, readBool(t, store, PathRemotePumpControl))
	assert.True(t, readBool(t, store, PathManualPumpCommand))
	assert.True(t, readBool(t, store, PathPumpStatus))
	assert.False(t, readBool(t, store, PathManualBulbCommand))
}

func TestController_BulbNeverWritesPumpPaths(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	require.NoError(t, store.Set(ctx, PathRemoteControlEnabled, true))

	var written []string
	cancelPump := store.Subscribe(PathManualPumpCommand, func(s rtdb.Snapshot) {
		if s.Exists() {
			written = append(written, s.Path())
		}
	}, nil)
	defer cancelPump()

	c := NewController(store, zap.NewNop(), 0)
	require.NoError(t, c.Override(ctx, Bulb, true))

	assert.True(t, readBool(t, store, PathRemoteBulbControl))
	assert.True(t, readBool(t, store, PathManualBulbCommand))
	assert.Empty(t, written)
}

func TestController_CommandRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	m := NewMonitor(store, zap.NewNop())
	m.Start()
	defer m.Stop()

	c := NewController(store, zap.NewNop(), 0)
	require.NoError(t, c.Command(ctx, Pump, true))
	assert.True(t, m.State().Actuators.PumpStatus)

	require.NoError(t, c.Command(ctx, Pump, false))
	assert.False(t, m.State().Actuators.PumpStatus)
}

func TestController_SetRemote(t *testing.T) {
	ctx := context.Background()
	store := rtdb.NewMemoryStore()
	c := NewController(store, zap.NewNop(), 0)

	require.NoError(t, c.SetRemote(ctx, Bulb, true))
	assert.True(t, readBool(t, store, PathRemoteBulbControl))
	require.NoError(t, c.SetRemote(ctx, Bulb, false))
	assert.False(t, readBool(t, store, PathRemoteBulbControl))

	assert.ErrorIs(t, c.SetRemote(ctx, Actuator("fan"), true), ErrUnknownActuator)
	assert.ErrorIs(t, c.Command(ctx, Actuator("fan"), true), ErrUnknownActuator)
}
