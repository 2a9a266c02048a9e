package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/advisor"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/automation"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
)

// handleV1RunIrrigation runs the irrigation flow once.
// POST /api/v1/automation/irrigation
func (s *Server) handleV1RunIrrigation(c *gin.Context) {
	d, err := s.automation.RunIrrigation(c.Request.Context())
	switch {
	case errors.Is(err, automation.ErrActuatorWrite):
		c.JSON(http.StatusInternalServerError, gin.H{"error": automation.FailedUpdateMessage(greenhouse.Pump)})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI Error: Could not run irrigation automation."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"actuator": "pump", "on": d.On, "reason": d.Reason},
	})
}

// handleV1RunClimate runs the climate flow once.
// POST /api/v1/automation/climate
func (s *Server) handleV1RunClimate(c *gin.Context) {
	d, err := s.automation.RunClimate(c.Request.Context())
	switch {
	case errors.Is(err, automation.ErrActuatorWrite):
		c.JSON(http.StatusInternalServerError, gin.H{"error": automation.FailedUpdateMessage(greenhouse.Bulb)})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI Error: Could not run climate automation."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{"actuator": "bulb", "on": d.On, "reason": d.Reason},
	})
}

// handleV1ListCrops returns the crops advice is available for.
// GET /api/v1/crops
func (s *Server) handleV1ListCrops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": advisor.Crops,
		"meta": gin.H{"count": len(advisor.Crops)},
	})
}

type cropAdviceRequest struct {
	Crop string `json:"crop" binding:"required"`
}

// handleV1CropAdvice gathers best practices, rotation and impact for a crop.
// POST /api/v1/crops/advice {"crop": "Tomato"}
func (s *Server) handleV1CropAdvice(c *gin.Context) {
	var req cropAdviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "crop is required"})
		return
	}

	advice, err := s.automation.RunCropAdvice(c.Request.Context(), req.Crop)
	switch {
	case errors.Is(err, advisor.ErrUnknownCrop):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown crop"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "AI Error: Could not get AI recommendations. Please try again."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": advice})
}
