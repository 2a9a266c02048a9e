package greenhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/rtdb"
)

// DefaultCommandDelay separates the remote-mode switch from the command so the
// device sees the mode change first.
const DefaultCommandDelay = 50 * time.Millisecond

// ErrRemoteDisabled is returned for manual overrides while the device's master
// remote switch is off.
var ErrRemoteDisabled = errors.New("remote control is disabled on the device")

// Controller writes actuator commands to the realtime store.
type Controller struct {
	store rtdb.Store
	log   *zap.Logger
	delay time.Duration
}

// NewController returns a controller. A negative delay selects the default.
func NewController(store rtdb.Store, logger *zap.Logger, delay time.Duration) *Controller {
	if delay < 0 {
		delay = DefaultCommandDelay
	}
	return &Controller{store: store, log: logger.Named("controller"), delay: delay}
}

// Override is the manual toggle: it requires the master remote switch, puts the
// actuator in remote mode and then issues the command.
func (c *Controller) Override(ctx context.Context, a Actuator, on bool) error {
	if _, err := c.commandPaths(a); err != nil {
		return err
	}

	enabled, err := c.store.Get(ctx, PathRemoteControlEnabled)
	if err != nil {
		return fmt.Errorf("read remote switch: %w", err)
	}
	if !enabled.Bool() {
		return ErrRemoteDisabled
	}

	if err := c.SetRemote(ctx, a, true); err != nil {
		return err
	}

	if c.delay > 0 {
		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return c.Command(ctx, a, on)
}

// Command writes the actuator's command paths without touching its mode.
func (c *Controller) Command(ctx context.Context, a Actuator, on bool) error {
	paths, err := c.commandPaths(a)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := c.store.Set(ctx, p, on); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	c.log.Info("actuator command written", zap.String("actuator", string(a)), zap.Bool("on", on))
	return nil
}

// SetRemote switches an actuator between dashboard commands (true) and the
// device's local logic (false).
func (c *Controller) SetRemote(ctx context.Context, a Actuator, remote bool) error {
	var p string
	switch a {
	case Pump:
		p = PathRemotePumpControl
	case Bulb:
		p = PathRemoteBulbControl
	default:
		return fmt.Errorf("%w: %q", ErrUnknownActuator, a)
	}
	if err := c.store.Set(ctx, p, remote); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// commandPaths lists what a command writes. The pump command is mirrored into
// actuators/pumpStatus; the bulb only has its command path.
func (c *Controller) commandPaths(a Actuator) ([]string, error) {
	switch a {
	case Pump:
		return []string{PathManualPumpCommand, PathPumpStatus}, nil
	case Bulb:
		return []string{PathManualBulbCommand}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownActuator, a)
}
