package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reporttrack/internal/alert"
	"github.com/reporttrack/internal/report"
)

func (s *Server) listAlerts(c *gin.Context) {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		s.fail(c, err)
		return
	}
	alerts, err := s.svc.Inbox.List(c.Request.Context(), c.GetUint("user_id"), c.Query("unread") == "true", limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) unreadCritical(c *gin.Context) {
	count, err := s.svc.Inbox.UnreadCritical(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) markAlertRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Inbox.MarkRead(c.Request.Context(), c.GetUint("user_id"), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markAllAlertsRead(c *gin.Context) {
	n, err := s.svc.Inbox.MarkAllRead(c.Request.Context(), c.GetUint("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) manualAlert(c *gin.Context) {
	var req struct {
		InstanceID  uint `json:"instance_id" binding:"required"`
		AlertTypeID uint `json:"alert_type_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	alerts, err := s.svc.Alerts.GenerateManualAlert(c.Request.Context(), req.InstanceID, req.AlertTypeID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, alerts)
}

func (s *Server) runSweep(c *gin.Context) {
	result, err := s.svc.Alerts.RunDailySweep(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Alert types

func (s *Server) listAlertTypes(c *gin.Context) {
	var enabled *bool
	if raw := c.Query("enabled"); raw != "" {
		v := raw == "true"
		enabled = &v
	}
	types, err := s.svc.AlertTypes.ListTypes(c.Request.Context(), enabled)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

func (s *Server) getAlertType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := s.svc.AlertTypes.GetType(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) createAlertType(c *gin.Context) {
	var in alert.AlertTypeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.svc.AlertTypes.CreateType(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) updateAlertType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in alert.AlertTypeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	t, err := s.svc.AlertTypes.UpdateType(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) deleteAlertType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.AlertTypes.DeleteType(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enableAlertType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.AlertTypes.EnableType(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) disableAlertType(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.AlertTypes.DisableType(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) importAlertTypes(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		badRequest(c, err)
		return
	}
	n, err := s.svc.AlertTypes.ImportTypes(c.Request.Context(), data)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

func (s *Server) exportAlertTypes(c *gin.Context) {
	data, err := s.svc.AlertTypes.ExportTypes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="alert_types.json"`)
	c.Data(http.StatusOK, "application/json", data)
}

func (s *Server) createDefaultAlertTypes(c *gin.Context) {
	created, err := s.svc.AlertTypes.CreateDefaultTypes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": created})
}

// Statistics

func (s *Server) statsSummary(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	summary, err := s.svc.Aggregator.Summary(c.Request.Context(), from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) statsTrend(c *gin.Context) {
	months, err := queryInt(c, "months", 6)
	if err != nil {
		s.fail(c, err)
		return
	}
	trend, err := s.svc.Aggregator.Trend(c.Request.Context(), months)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

func (s *Server) statsByGroup(by report.GroupBy) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, to, err := dateRange(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		groups, err := s.svc.Aggregator.ComplianceBy(c.Request.Context(), from, to, by)
		if err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, groups)
	}
}

func (s *Server) statsTopOffenders(c *gin.Context) {
	n, err := queryInt(c, "n", 5)
	if err != nil {
		s.fail(c, err)
		return
	}
	by := report.ByEntity
	if c.Query("by") == string(report.ByResponsible) {
		by = report.ByResponsible
	}
	top, err := s.svc.Aggregator.TopOffenders(c.Request.Context(), by, n)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, top)
}

func (s *Server) statsStatus(c *gin.Context) {
	dist, err := s.svc.Aggregator.StatusDistribution(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dist)
}

func (s *Server) statsUpcoming(c *gin.Context) {
	days, err := queryInt(c, "days", 7)
	if err != nil {
		s.fail(c, err)
		return
	}
	deadlines, err := s.svc.Aggregator.Upcoming(c.Request.Context(), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deadlines)
}

func (s *Server) statsOverdue(c *gin.Context) {
	deadlines, err := s.svc.Aggregator.Overdue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, deadlines)
}

func (s *Server) statsPeriod(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	months, err := queryInt(c, "months", 6)
	if err != nil {
		s.fail(c, err)
		return
	}
	period, err := s.svc.Aggregator.Period(c.Request.Context(), from, to, months, 5)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, period)
}

func (s *Server) sendDigest(c *gin.Context) {
	if s.svc.Digest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "digest disabled"})
		return
	}
	sent, err := s.svc.Digest.Send(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
