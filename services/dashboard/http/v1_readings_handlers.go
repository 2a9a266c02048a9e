package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/db"
)

// handleV1Readings returns recorded readings, oldest first.
// GET /api/v1/readings?last_n=100&last_n_days=1&start=...&end=...
func (s *Server) handleV1Readings(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not enabled"})
		return
	}

	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("last_n"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return
		}
		limit = parsed
	}

	var since, until *time.Time
	if daysStr := c.Query("last_n_days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n_days"})
			return
		}
		t := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
		since = &t
	}
	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start timestamp"})
			return
		}
		tt := t.UTC()
		since = &tt
	}
	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end timestamp"})
			return
		}
		tt := t.UTC()
		until = &tt
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	readings, err := s.history.FetchReadings(ctx, db.ReadingQuery{Limit: limit, Since: since, Until: until})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": readings,
		"meta": gin.H{
			"count": len(readings),
			"limit": limit,
		},
	})
}

// handleV1ReadingAverages returns hourly and daily means.
// GET /api/v1/readings/averages
func (s *Server) handleV1ReadingAverages(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not enabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	avg, err := s.history.GetAverages(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": avg})
}
