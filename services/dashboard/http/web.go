package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/advisor"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/greenhouse"
	"github.com/Kwame-Minta2021/AgricMind-Ai/services/dashboard/insights"
)

//go:embed web/index.html
var webFS embed.FS

var dashboardTmpl = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"onOff": greenhouse.OnOff,
	"pct":   formatPercent,
}).ParseFS(webFS, "web/index.html"))

type dashboardPage struct {
	State    greenhouse.State
	Status   greenhouse.Indicator
	Insights []insights.Insight
	Crops    []string
}

// handleDashboard renders the dashboard with the current state; the page then
// follows /ws for updates.
func (s *Server) handleDashboard(c *gin.Context) {
	st := s.monitor.State()
	page := dashboardPage{
		State:    st,
		Status:   st.Indicator(s.cfg.Location()),
		Insights: s.feed.List(),
		Crops:    advisor.Crops,
	}

	var buf bytes.Buffer
	if err := dashboardTmpl.Execute(&buf, page); err != nil {
		s.log.Error("render dashboard", zap.Error(err))
		c.String(http.StatusInternalServerError, "render error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// handleWebsocket upgrades the connection and sends the current state, status
// and insights before live updates.
// GET /ws
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	st := s.monitor.State()
	initial := make([][]byte, 0, 3)
	for _, m := range []struct {
		kind    string
		payload any
	}{
		{MessageState, st},
		{MessageStatus, st.Indicator(s.cfg.Location())},
		{MessageInsights, s.feed.List()},
	} {
		msg, err := encodeMessage(m.kind, m.payload)
		if err != nil {
			s.log.Error("encode initial message", zap.Error(err))
			continue
		}
		initial = append(initial, msg)
	}

	client := newClient(s.hub, conn, s.log)
	if !client.attach(initial...) {
		s.log.Debug("websocket rejected, hub stopped")
	}
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
