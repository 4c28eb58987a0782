package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reporttrack/internal/alert"
	"github.com/reporttrack/internal/auth"
	"github.com/reporttrack/internal/database"
	"github.com/reporttrack/internal/metrics"
	"github.com/reporttrack/internal/models"
	"github.com/reporttrack/internal/report"
	"github.com/reporttrack/internal/scheduler"
	"github.com/reporttrack/internal/storage"
	"github.com/reporttrack/internal/tracking"
)

// Services are the collaborators the HTTP layer delegates to.
type Services struct {
	Store       *database.Store
	Auth        *auth.Authenticator
	Definitions *tracking.DefinitionService
	Instances   *tracking.InstanceService
	Alerts      *alert.Scheduler
	AlertTypes  *alert.TypeManager
	Inbox       *alert.Inbox
	Aggregator  *report.Aggregator
	Digest      *report.DigestGenerator
	Files       *storage.FileStore
	Jobs        *scheduler.Scheduler
	Metrics     *metrics.Metrics
}

type Server struct {
	svc    Services
	logger *zap.Logger
	router *gin.Engine
	http   *http.Server
}

func NewServer(svc Services, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger, svc.Metrics))

	server := &Server{
		svc:    svc,
		logger: logger,
		router: router,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Public routes
	s.router.GET("/health", s.health)
	if s.svc.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.svc.Metrics.Handler()))
	}
	s.router.POST("/api/v1/auth/login", s.login)

	authenticated := s.svc.Auth.Middleware()
	s.router.GET("/files/*id", authenticated, s.downloadFile)

	// Protected routes (require authentication)
	api := s.router.Group("/api/v1")
	api.Use(authenticated)

	api.GET("/me", s.me)

	definitions := api.Group("/definitions")
	{
		definitions.GET("", s.listDefinitions)
		definitions.GET("/:id", s.getDefinition)
		definitions.POST("", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.createDefinition)
		definitions.PUT("/:id", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.updateDefinition)
		definitions.DELETE("/:id", auth.RequireRole(models.RoleAdmin), s.deleteDefinition)
		definitions.PUT("/:id/activate", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.activateDefinition)
		definitions.PUT("/:id/deactivate", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.deactivateDefinition)
		definitions.POST("/:id/generate", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.generateInstances)
	}

	instances := api.Group("/instances")
	{
		instances.GET("", s.searchInstances)
		instances.GET("/pending", s.pendingInstances)
		instances.GET("/overdue", s.overdueInstances)
		instances.GET("/upcoming", s.upcomingInstances)
		instances.GET("/history", s.instanceHistory)
		instances.GET("/export", s.exportInstances)
		instances.GET("/:id", s.getInstance)
		instances.GET("/:id/changes", s.instanceChanges)
		instances.GET("/:id/alerts", s.instanceAlerts)
		instances.POST("", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.createInstance)
		instances.PUT("/:id", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor, models.RolePreparer), s.updateInstance)
		instances.DELETE("/:id", auth.RequireRole(models.RoleAdmin), s.deleteInstance)
		instances.POST("/:id/submit", auth.RequirePermission(models.PermSubmitReports), s.submitInstance)
		instances.POST("/:id/submit-link", auth.RequirePermission(models.PermSubmitReports), s.submitInstanceLink)
		instances.POST("/:id/approve", auth.RequirePermission(models.PermApproveReports), s.approveInstance)
	}

	api.GET("/calendar", s.calendar)

	alerts := api.Group("/alerts")
	{
		alerts.GET("", s.listAlerts)
		alerts.GET("/critical-count", s.unreadCritical)
		alerts.PUT("/:id/read", s.markAlertRead)
		alerts.PUT("/read-all", s.markAllAlertsRead)
		alerts.POST("/manual", auth.RequireRole(models.RoleAdmin, models.RoleSupervisor), s.manualAlert)
		alerts.POST("/sweep", auth.RequireRole(models.RoleAdmin), s.runSweep)
	}

	types := api.Group("/alert-types")
	{
		types.GET("", s.listAlertTypes)
		types.GET("/export", auth.RequireRole(models.RoleAdmin), s.exportAlertTypes)
		types.GET("/:id", s.getAlertType)
		types.POST("", auth.RequireRole(models.RoleAdmin), s.createAlertType)
		types.POST("/import", auth.RequireRole(models.RoleAdmin), s.importAlertTypes)
		types.POST("/defaults", auth.RequireRole(models.RoleAdmin), s.createDefaultAlertTypes)
		types.PUT("/:id", auth.RequireRole(models.RoleAdmin), s.updateAlertType)
		types.DELETE("/:id", auth.RequireRole(models.RoleAdmin), s.deleteAlertType)
		types.PUT("/:id/enable", auth.RequireRole(models.RoleAdmin), s.enableAlertType)
		types.PUT("/:id/disable", auth.RequireRole(models.RoleAdmin), s.disableAlertType)
	}

	stats := api.Group("/stats")
	{
		stats.GET("/summary", s.statsSummary)
		stats.GET("/trend", s.statsTrend)
		stats.GET("/by-entity", s.statsByGroup(report.ByEntity))
		stats.GET("/by-responsible", s.statsByGroup(report.ByResponsible))
		stats.GET("/top-offenders", s.statsTopOffenders)
		stats.GET("/status", s.statsStatus)
		stats.GET("/upcoming", s.statsUpcoming)
		stats.GET("/overdue", s.statsOverdue)
		stats.GET("/period", s.statsPeriod)
		stats.POST("/digest", auth.RequireRole(models.RoleAdmin), s.sendDigest)
	}

	admin := api.Group("/admin")
	admin.Use(auth.RequireRole(models.RoleAdmin))
	admin.GET("/jobs", s.listJobs)
	admin.POST("/jobs/:name/run", s.runJob)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func requestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, c.Writer.Status(), elapsed)
		logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed))
	}
}

// fail maps domain errors onto HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound),
		errors.Is(err, scheduler.ErrUnknownJob):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidPeriodFormat),
		errors.Is(err, models.ErrUnsupportedFrequency),
		errors.Is(err, models.ErrInvalidDefinition),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, alert.ErrInvalidAlertType):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrAlreadyApproved),
		errors.Is(err, models.ErrDuplicatePeriod):
		status = http.StatusConflict
	case errors.Is(err, models.ErrDeliveryFailure):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

func queryUint(c *gin.Context, name string) (uint, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidInput, name)
	}
	return uint(v), nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidInput, name)
	}
	return v, nil
}

// queryDate parses an optional YYYY-MM-DD parameter.
func queryDate(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", models.ErrInvalidInput, name)
	}
	return t, nil
}

func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	from, err := queryDate(c, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := queryDate(c, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (s *Server) health(c *gin.Context) {
	sqlDB, err := s.svc.Store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) login(c *gin.Context) {
	var loginReq struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&loginReq); err != nil {
		badRequest(c, err)
		return
	}

	token, user, err := s.svc.Auth.Login(c.Request.Context(), loginReq.Username, loginReq.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, auth.CurrentUser(c))
}

func (s *Server) downloadFile(c *gin.Context) {
	fileID := c.Param("id")
	if len(fileID) > 0 && fileID[0] == '/' {
		fileID = fileID[1:]
	}
	f, err := s.svc.Files.Open(fileID)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", f, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", info.Name()),
	})
}

func (s *Server) listJobs(c *gin.Context) {
	if s.svc.Jobs == nil {
		c.JSON(http.StatusOK, []scheduler.JobStatus{})
		return
	}
	c.JSON(http.StatusOK, s.svc.Jobs.Jobs())
}

func (s *Server) runJob(c *gin.Context) {
	if s.svc.Jobs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduler disabled"})
		return
	}
	if err := s.svc.Jobs.RunNow(c.Request.Context(), c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
