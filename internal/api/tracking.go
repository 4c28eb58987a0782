package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reporttrack/internal/auth"
	"github.com/reporttrack/internal/clock"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/report"
	"github.com/reporttrack/internal/tracking"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Definitions

func (s *Server) listDefinitions(c *gin.Context) {
	entityID, err := queryUint(c, "entity_id")
	if err != nil {
		s.fail(c, err)
		return
	}
	filter := database.DefinitionFilter{
		EntityID:   entityID,
		ActiveOnly: c.Query("active") == "true",
	}
	if raw := c.Query("frequency"); raw != "" {
		freq, ok := models.ParseFrequency(raw)
		if !ok {
			s.fail(c, fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, raw))
			return
		}
		filter.Frequency = freq
	}

	defs, err := s.svc.Definitions.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) getDefinition(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	def, err := s.svc.Definitions.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) createDefinition(c *gin.Context) {
	var in tracking.DefinitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	def, err := s.svc.Definitions.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}

func (s *Server) updateDefinition(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in tracking.DefinitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	def, err := s.svc.Definitions.Update(c.Request.Context(), id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) deleteDefinition(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Definitions.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activateDefinition(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Definitions.Activate(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deactivateDefinition(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Definitions.Deactivate(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) generateInstances(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	from, to, err := dateRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	created, err := s.svc.Definitions.Generate(c.Request.Context(), id, from, to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created": len(created), "instances": created})
}

// Instances

func (s *Server) instanceFilter(c *gin.Context) (database.InstanceFilter, error) {
	var f database.InstanceFilter
	var err error
	for name, dst := range map[string]*uint{
		"definition_id":  &f.DefinitionID,
		"entity_id":      &f.EntityID,
		"responsible_id": &f.ResponsibleID,
		"supervisor_id":  &f.SupervisorID,
	} {
		if *dst, err = queryUint(c, name); err != nil {
			return f, err
		}
	}
	if f.DueFrom, f.DueTo, err = dateRange(c); err != nil {
		return f, err
	}
	if raw := c.Query("frequency"); raw != "" {
		freq, ok := models.ParseFrequency(raw)
		if !ok {
			return f, fmt.Errorf("%w: %q", models.ErrUnsupportedFrequency, raw)
		}
		f.Frequency = freq
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.InstanceStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !status.IsValid() {
				return f, fmt.Errorf("%w: %q", models.ErrInvalidStatus, part)
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	f.PeriodContains = c.Query("period")
	return f, nil
}

func (s *Server) searchInstances(c *gin.Context) {
	filter, err := s.instanceFilter(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	instances, err := s.svc.Instances.Search(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) pendingInstances(c *gin.Context) {
	instances, err := s.svc.Instances.Pending(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) overdueInstances(c *gin.Context) {
	instances, err := s.svc.Instances.Overdue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) upcomingInstances(c *gin.Context) {
	days, err := queryInt(c, "days", 7)
	if err != nil {
		s.fail(c, err)
		return
	}
	instances, err := s.svc.Instances.Upcoming(c.Request.Context(), days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) instanceHistory(c *gin.Context) {
	var f tracking.HistoryFilter
	var err error
	if f.DefinitionID, err = queryUint(c, "definition_id"); err != nil {
		s.fail(c, err)
		return
	}
	if f.EntityID, err = queryUint(c, "entity_id"); err != nil {
		s.fail(c, err)
		return
	}
	if f.Year, err = queryInt(c, "year", 0); err != nil {
		s.fail(c, err)
		return
	}
	if f.Month, err = queryInt(c, "month", 0); err != nil {
		s.fail(c, err)
		return
	}
	instances, err := s.svc.Instances.History(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (s *Server) exportInstances(c *gin.Context) {
	from, to, err := dateRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	period, err := s.svc.Aggregator.Period(ctx, from, to, 6, 5)
	if err != nil {
		s.fail(c, err)
		return
	}
	instances, err := s.svc.Instances.Search(ctx, database.InstanceFilter{
		DueFrom: period.Summary.From,
		DueTo:   period.Summary.To,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, period, instances); err != nil {
		s.fail(c, err)
		return
	}
	name := fmt.Sprintf("reports_%s_%s.xlsx", period.Summary.From.Format("20060102"), period.Summary.To.Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) getInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inst, err := s.svc.Instances.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) instanceChanges(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	changes, err := s.svc.Instances.Changes(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, changes)
}

func (s *Server) instanceAlerts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	alerts, err := s.svc.Inbox.ForInstance(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) createInstance(c *gin.Context) {
	var in tracking.InstanceInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	inst, err := s.svc.Instances.Create(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (s *Server) updateInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var u tracking.InstanceUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, err)
		return
	}
	inst, err := s.svc.Instances.Update(c.Request.Context(), id, c.GetUint("user_id"), u)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) deleteInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := s.svc.Instances.Delete(c.Request.Context(), id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) submitInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("file is required: %w", err))
		return
	}
	f, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	inst, err := s.svc.Instances.Submit(c.Request.Context(), id, c.GetUint("user_id"), f, tracking.Submission{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Notes:       c.PostForm("notes"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) submitInstanceLink(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		URL   string `json:"url" binding:"required,url"`
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inst, err := s.svc.Instances.SubmitWithLink(c.Request.Context(), id, c.GetUint("user_id"), req.URL, req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

func (s *Server) approveInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	inst, err := s.svc.Instances.Approve(c.Request.Context(), id, c.GetUint("user_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, inst)
}

// calendar lists one month of due dates. With mine=true the result is scoped
// by the caller's role; otherwise the entity/responsible/frequency filters apply.
func (s *Server) calendar(c *gin.Context) {
	today := s.svc.Aggregator.Today()
	year, err := queryInt(c, "year", today.Year())
	if err != nil {
		s.fail(c, err)
		return
	}
	month, err := queryInt(c, "month", int(today.Month()))
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	var instances []models.ReportInstance
	if c.Query("mine") == "true" {
		instances, err = s.svc.Instances.MyCalendar(ctx, auth.CurrentUser(c), year, time.Month(month))
	} else {
		var filter database.InstanceFilter
		filter, err = s.instanceFilter(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		instances, err = s.svc.Instances.Calendar(ctx, year, time.Month(month), tracking.CalendarFilter{
			EntityID:      filter.EntityID,
			ResponsibleID: filter.ResponsibleID,
			SupervisorID:  filter.SupervisorID,
			Frequency:     filter.Frequency,
		})
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	days := make(map[string][]models.ReportInstance)
	for _, inst := range instances {
		key := clock.DateOf(inst.DueDate).Format("2006-01-02")
		days[key] = append(days[key], inst)
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": month, "total": len(instances), "days": days})
}
