package api

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	svccache "TradePilot/internal/service/cache"
	"TradePilot/internal/service/metrics"
	"TradePilot/internal/usecase"
	xhttp "TradePilot/pkg/http"
	xlogger "TradePilot/pkg/logger"
)

// DecisionReader serves decision history queries.
type DecisionReader interface {
	RecentDecisions(ctx context.Context, symbol string, limit int) ([]models.EnsembleDecision, error)
}

// ModelCatalog lists stored model versions.
type ModelCatalog interface {
	List(ctx context.Context, modelType models.ModelType, symbol string) ([]models.ModelVersion, error)
}

// HealthCheck probes one dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// EngineHandler exposes the control plane: sessions, decisions, training jobs
// and the model catalog.
type EngineHandler struct {
	logger    *xlogger.Logger
	registry  *usecase.SessionRegistry
	training  *usecase.TrainingPipeline
	decisions DecisionReader
	versions  ModelCatalog
	cache     svccache.EngineCache
	checks    []HealthCheck
}

func NewEngineHandler(
	logger *xlogger.Logger,
	registry *usecase.SessionRegistry,
	training *usecase.TrainingPipeline,
	decisions DecisionReader,
	versions ModelCatalog,
	cache svccache.EngineCache,
	checks ...HealthCheck,
) *EngineHandler {
	metrics.Register()
	return &EngineHandler{
		logger:    logger,
		registry:  registry,
		training:  training,
		decisions: decisions,
		versions:  versions,
		cache:     cache,
		checks:    checks,
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api/v1")
	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions", h.ListSessions)
	g.GET("/sessions/:id/status", h.SessionStatus)
	g.GET("/sessions/:id/decisions", h.SessionDecisions)
	g.POST("/sessions/:id/stop", h.StopSession)
	g.POST("/sessions/:id/restart", h.RestartSession)
	g.GET("/decisions/latest", h.LatestDecision)
	g.POST("/training/jobs", h.SubmitTrainingJob)
	g.GET("/training/jobs", h.ListTrainingJobs)
	g.GET("/training/jobs/:id", h.TrainingJob)
	g.GET("/models", h.ListModels)
}

func (h *EngineHandler) observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *EngineHandler) fail(endpoint string) {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
}

func (h *EngineHandler) CreateSession(c echo.Context) error {
	defer h.observe("sessions_create", time.Now())

	req := &models.CreateSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("sessions_create")
		return xhttp.BadRequestResponse(c, verr)
	}

	session, err := h.registry.Start(c.Request().Context(), req.Symbols)
	if err != nil {
		h.fail("sessions_create")
		h.logger.Error("session start failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, session)
}

func (h *EngineHandler) ListSessions(c echo.Context) error {
	defer h.observe("sessions_list", time.Now())

	sessions := h.registry.List()
	return xhttp.ListResponse(c, sessions, int64(len(sessions)))
}

func (h *EngineHandler) SessionStatus(c echo.Context) error {
	defer h.observe("sessions_status", time.Now())

	orch, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.fail("sessions_status")
		return xhttp.NotFoundResponse(c, "session not found")
	}
	return xhttp.SuccessResponse(c, orch.Snapshot())
}

func (h *EngineHandler) SessionDecisions(c echo.Context) error {
	defer h.observe("sessions_decisions", time.Now())

	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("sessions_decisions")
		return xhttp.BadRequestResponse(c, verr)
	}
	orch, ok := h.registry.Get(c.Param("id"))
	if !ok {
		h.fail("sessions_decisions")
		return xhttp.NotFoundResponse(c, "session not found")
	}

	symbols := orch.Session().Symbols
	if req.Symbol != "" {
		symbols = []string{req.Symbol}
	}
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	ctx := c.Request().Context()
	rows := make([]models.EnsembleDecision, 0, req.Limit)
	for _, symbol := range symbols {
		ds, err := h.decisions.RecentDecisions(ctx, symbol, req.Limit)
		if err != nil {
			h.fail("sessions_decisions")
			h.logger.Error("decision history query failed",
				xlogger.String("symbol", symbol), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		for _, d := range ds {
			if since.IsZero() || !d.CreatedAt.Before(since) {
				rows = append(rows, d)
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *EngineHandler) StopSession(c echo.Context) error {
	defer h.observe("sessions_stop", time.Now())

	id := c.Param("id")
	if err := h.registry.Stop(c.Request().Context(), id); err != nil {
		h.fail("sessions_stop")
		switch {
		case errors.Is(err, usecase.ErrSessionNotFound):
			return xhttp.NotFoundResponse(c, "session not found")
		case errors.Is(err, usecase.ErrSessionState):
			return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
		default:
			h.logger.Error("session stop failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	orch, _ := h.registry.Get(id)
	return xhttp.SuccessResponse(c, orch.Session())
}

func (h *EngineHandler) RestartSession(c echo.Context) error {
	defer h.observe("sessions_restart", time.Now())

	session, err := h.registry.Restart(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.fail("sessions_restart")
		switch {
		case errors.Is(err, usecase.ErrSessionNotFound):
			return xhttp.NotFoundResponse(c, "session not found")
		case errors.Is(err, usecase.ErrSessionState):
			return xhttp.AppErrorResponse(c, xhttp.ConflictError(err.Error()))
		default:
			h.logger.Error("session restart failed", xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, session)
}

func (h *EngineHandler) LatestDecision(c echo.Context) error {
	defer h.observe("decisions_latest", time.Now())

	req := &models.LatestDecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("decisions_latest")
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Symbol != "" {
		decision, ok := h.cache.GetLatestDecision(c.Request().Context(), req.Symbol)
		if !ok {
			return xhttp.NotFoundResponse(c, "no decision for symbol")
		}
		return xhttp.SuccessResponse(c, decision)
	}

	// No symbol: one multi-get across every symbol the sessions trade.
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range h.registry.List() {
		for _, sym := range s.Symbols {
			if !seen[sym] {
				seen[sym] = true
				symbols = append(symbols, sym)
			}
		}
	}
	return xhttp.SuccessResponse(c, h.cache.LatestDecisions(c.Request().Context(), symbols))
}

func (h *EngineHandler) SubmitTrainingJob(c echo.Context) error {
	defer h.observe("training_submit", time.Now())

	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("training_submit")
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.training.Submit(c.Request().Context(),
		models.ModelType(req.ModelType), req.Symbol, models.TrainingMode(req.Mode))
	if err != nil {
		h.fail("training_submit")
		h.logger.Error("training submit failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, job)
}

func (h *EngineHandler) ListTrainingJobs(c echo.Context) error {
	defer h.observe("training_jobs", time.Now())

	req := &models.TrainingJobsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("training_jobs")
		return xhttp.BadRequestResponse(c, verr)
	}
	jobs, err := h.training.Jobs(c.Request().Context(), req.Limit)
	if err != nil {
		h.fail("training_jobs")
		h.logger.Error("training jobs query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, jobs, int64(len(jobs)))
}

func (h *EngineHandler) TrainingJob(c echo.Context) error {
	defer h.observe("training_job", time.Now())

	job, err := h.training.Job(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domrepo.ErrJobNotFound) {
			return xhttp.NotFoundResponse(c, "job not found")
		}
		h.fail("training_job")
		h.logger.Error("training job query failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *EngineHandler) ListModels(c echo.Context) error {
	defer h.observe("models_list", time.Now())

	req := &models.ModelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		h.fail("models_list")
		return xhttp.BadRequestResponse(c, verr)
	}

	types := models.AllModelTypes()
	if req.ModelType != "" {
		types = []models.ModelType{models.ModelType(req.ModelType)}
	}

	ctx := c.Request().Context()
	rows := make([]models.ModelVersion, 0, len(types))
	for _, mt := range types {
		versions, err := h.versions.List(ctx, mt, req.Symbol)
		if err != nil {
			h.fail("models_list")
			h.logger.Error("model catalog query failed",
				xlogger.String("model_type", string(mt)), xlogger.Error(err))
			return xhttp.AppErrorResponse(c, err)
		}
		rows = append(rows, versions...)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *EngineHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	out := map[string]interface{}{
		"status":   "ok",
		"sessions": len(h.registry.List()),
	}
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			out[check.Name] = "down"
			out["status"] = "degraded"
		} else {
			out[check.Name] = "up"
		}
	}
	return xhttp.SuccessResponse(c, out)
}
