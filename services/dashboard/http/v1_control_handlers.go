package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/automation"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
)

// handleV1State returns the dashboard state and the connection indicator.
// GET /api/v1/state
func (s *Server) handleV1State(c *gin.Context) {
	st := s.monitor.State()
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"state":  st,
			"status": st.Indicator(s.cfg.Location()),
		},
		"meta": gin.H{
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleV1Insights returns the insight feed, newest first.
// GET /api/v1/insights
func (s *Server) handleV1Insights(c *gin.Context) {
	list := s.feed.List()
	c.JSON(http.StatusOK, gin.H{
		"data": list,
		"meta": gin.H{
			"count": len(list),
		},
	})
}

type toggleRequest struct {
	On *bool `json:"on"`
}

// handleV1Toggle is the manual override.
// POST /api/v1/actuators/:actuator {"on": true}
func (s *Server) handleV1Toggle(c *gin.Context) {
	a, ok := s.actuatorParam(c)
	if !ok {
		return
	}

	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"on": true|false}`})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.automation.Toggle(ctx, a, *req.On); err != nil {
		s.controlError(c, a, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"actuator": a, "on": *req.On},
	})
}

type modeRequest struct {
	Remote *bool `json:"remote"`
}

// handleV1SetMode switches an actuator between dashboard and device control.
// PUT /api/v1/actuators/:actuator/mode {"remote": true}
func (s *Server) handleV1SetMode(c *gin.Context) {
	a, ok := s.actuatorParam(c)
	if !ok {
		return
	}

	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Remote == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"remote": true|false}`})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := s.automation.SetMode(ctx, a, *req.Remote); err != nil {
		s.controlError(c, a, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"actuator": a, "remote": *req.Remote},
	})
}

func (s *Server) actuatorParam(c *gin.Context) (greenhouse.Actuator, bool) {
	a, err := greenhouse.ParseActuator(c.Param("actuator"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown actuator"})
		return "", false
	}
	return a, true
}

func (s *Server) controlError(c *gin.Context, a greenhouse.Actuator, err error) {
	switch {
	case errors.Is(err, greenhouse.ErrRemoteDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": "remote control is disabled on the device"})
	default:
		s.log.Error("actuator write failed", zap.String("actuator", string(a)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": automation.FailedUpdateMessage(a)})
	}
}
