// Package automation runs the one-shot AI flows and manual controls, recording
// each outcome in the insight feed.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/advisor"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/insights"
)

// DefaultTimeout bounds one flow's model calls.
const DefaultTimeout = 30 * time.Second

// Insight texts for failed flows.
const (
	MsgIrrigationFailed = "Error: Could not run irrigation automation."
	MsgClimateFailed    = "Error: Could not run climate automation."
)

// ErrActuatorWrite marks a flow whose advice was obtained but could not be
// applied to the actuator.
var ErrActuatorWrite = errors.New("actuator write failed")

// CropAdvice is everything gathered for one crop.
type CropAdvice struct {
	Crop          string                 `json:"crop"`
	BestPractices advisor.BestPractices  `json:"best_practices"`
	Rotation      []advisor.RotationStep `json:"rotation"`
	Impact        string                 `json:"impact,omitempty"`
}

// Service wires the advisor to the actuators and the feed.
type Service struct {
	monitor *greenhouse.Monitor
	ctrl    *greenhouse.Controller
	feed    *insights.Feed
	advisor *advisor.Advisor
	log     *zap.Logger
	timeout time.Duration
}

// New returns a service. A non-positive timeout selects DefaultTimeout.
func New(monitor *greenhouse.Monitor, ctrl *greenhouse.Controller, feed *insights.Feed, adv *advisor.Advisor, logger *zap.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		monitor: monitor,
		ctrl:    ctrl,
		feed:    feed,
		advisor: adv,
		log:     logger.Named("automation"),
		timeout: timeout,
	}
}

// Feed returns the insight feed the service writes to.
func (s *Service) Feed() *insights.Feed { return s.feed }

// RunIrrigation asks the advisor about the pump and applies a changed
// recommendation. On failure nothing is written and one error insight is added.
func (s *Service) RunIrrigation(ctx context.Context) (advisor.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	st := s.monitor.State()
	d, err := s.advisor.Irrigation(ctx, st.Sensors.SoilMoisturePercent, st.Actuators.PumpStatus)
	if err != nil {
		s.log.Error("irrigation automation failed", zap.Error(err))
		s.feed.Error(MsgIrrigationFailed)
		return advisor.Decision{}, err
	}
	if d.On != st.Actuators.PumpStatus {
		if err := s.apply(ctx, greenhouse.Pump, d.On); err != nil {
			return advisor.Decision{}, err
		}
	}

	s.feed.AI("AI Irrigation: " + d.Reason)
	return d, nil
}

// RunClimate asks the advisor about the grow light and applies a changed
// recommendation.
func (s *Service) RunClimate(ctx context.Context) (advisor.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	st := s.monitor.State()
	d, err := s.advisor.Climate(ctx, st.Sensors.Temperature, st.Sensors.Humidity, st.Actuators.BulbStatus)
	if err != nil {
		s.log.Error("climate automation failed", zap.Error(err))
		s.feed.Error(MsgClimateFailed)
		return advisor.Decision{}, err
	}
	if d.On != st.Actuators.BulbStatus {
		if err := s.apply(ctx, greenhouse.Bulb, d.On); err != nil {
			return advisor.Decision{}, err
		}
	}

	s.feed.AI("AI Climate Control: " + d.Reason)
	return d, nil
}

// apply writes an automated decision. A failure is reported as a control
// failure, not an AI one.
func (s *Service) apply(ctx context.Context, a greenhouse.Actuator, on bool) error {
	if err := s.ctrl.Command(ctx, a, on); err != nil {
		s.log.Error("automated actuator write failed", zap.String("actuator", string(a)), zap.Error(err))
		s.feed.Error(FailedUpdateMessage(a))
		return fmt.Errorf("%w: %w", ErrActuatorWrite, err)
	}
	return nil
}

// FailedUpdateMessage is the text shown when an actuator could not be written.
func FailedUpdateMessage(a greenhouse.Actuator) string {
	return "Failed to update " + a.Title() + "."
}

// RunCropAdvice gathers best practices, a rotation plan and, when readings
// exist, an environmental note for crop. A failed environmental note is
// logged and left out.
func (s *Service) RunCropAdvice(ctx context.Context, crop string) (CropAdvice, error) {
	crop, err := advisor.ValidCrop(crop)
	if err != nil {
		return CropAdvice{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.feed.Info(fmt.Sprintf("Fetching AI advice for %s...", crop))

	st := s.monitor.State()
	out := CropAdvice{Crop: crop}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bp, err := s.advisor.BestPractices(gctx, crop)
		out.BestPractices = bp
		return err
	})
	g.Go(func() error {
		steps, err := s.advisor.Rotation(gctx, crop)
		out.Rotation = steps
		return err
	})
	if st.HasReadings() {
		g.Go(func() error {
			impact, err := s.advisor.EnvironmentalImpact(gctx, crop, advisor.Conditions{
				Temperature:  st.Sensors.Temperature,
				Humidity:     st.Sensors.Humidity,
				SoilMoisture: st.Sensors.SoilMoisturePercent,
			})
			if err != nil {
				s.log.Warn("environmental impact skipped", zap.String("crop", crop), zap.Error(err))
				return nil
			}
			out.Impact = impact
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("crop advice failed", zap.String("crop", crop), zap.Error(err))
		s.feed.Error(fmt.Sprintf("Error: Failed to get AI recommendations for %s.", crop))
		return CropAdvice{}, err
	}

	s.feed.AI(fmt.Sprintf("Best practices for %s loaded.", crop))
	next := out.Rotation[0]
	s.feed.AI(fmt.Sprintf("For next season, plant %s. %s", next.Crop, next.Reasoning))
	if out.Impact != "" {
		s.feed.AI(out.Impact)
	}
	return out, nil
}

// Toggle is the manual override from the device card.
func (s *Service) Toggle(ctx context.Context, a greenhouse.Actuator, on bool) error {
	if err := s.ctrl.Override(ctx, a, on); err != nil {
		return err
	}
	s.feed.Info(fmt.Sprintf("Manual: %s turned %s", a.Title(), greenhouse.OnOff(on)))
	return nil
}

// SetMode hands an actuator to the dashboard (remote) or back to the device.
func (s *Service) SetMode(ctx context.Context, a greenhouse.Actuator, remote bool) error {
	if err := s.ctrl.SetRemote(ctx, a, remote); err != nil {
		return err
	}
	mode := "device control"
	if remote {
		mode = "remote control"
	}
	s.feed.Info(fmt.Sprintf("Manual: %s switched to %s", a.Title(), mode))
	return nil
}
