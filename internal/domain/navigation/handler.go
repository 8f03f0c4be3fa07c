package navigation

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/navcare/navigator/internal/platform/auth"
	"github.com/navcare/navigator/internal/platform/docstore"
	"github.com/navcare/navigator/pkg/pagination"
)

type Handler struct {
	svc       *Service
	analytics *Analytics
	docs      docstore.Store
}

func NewHandler(svc *Service, analytics *Analytics, docs docstore.Store) *Handler {
	return &Handler{svc: svc, analytics: analytics, docs: docs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	role := auth.RequireRole("admin", "navigator", "physician", "nurse")

	read := api.Group("", role)
	read.GET("/patients/:id/steps", h.ListPatientSteps)
	read.GET("/steps", h.ListActiveSteps)
	read.GET("/steps/:id", h.GetStep)
	read.GET("/navigation/critical-steps", h.ListCriticalSteps)
	read.GET("/navigation/metrics", h.GetMetrics)

	write := api.Group("", role)
	write.POST("/patients/:id/steps/ensure", h.EnsureSteps)
	write.POST("/patients/:id/advance-stage", h.AdvanceStage)
	write.PATCH("/steps/:id", h.UpdateStep)
	write.POST("/steps/:id/findings", h.AddFinding)
	write.DELETE("/steps/:id/findings", h.RemoveFinding)
	write.POST("/steps/:id/attachments", h.AddAttachment)
	write.POST("/steps/:id/attachments/upload", h.UploadAttachment)
	read.GET("/attachments/:docId", h.DownloadAttachment)

	admin := api.Group("", auth.RequireRole("admin", "navigator"))
	admin.POST("/navigation/initialize-all", h.InitializeAllPatients)
}

// httpError maps domain failures onto status codes: validation 400, missing
// 404, lost update races 409.
func httpError(err error) error {
	switch {
	case IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "step was modified concurrently, re-read and retry")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type ensureRequest struct {
	Stage string `json:"journey_stage"`
}

func (h *Handler) EnsureSteps(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req ensureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var stages []JourneyStage
	switch req.Stage {
	case "", "current":
	case "all", "ALL":
		stages = Stages()
	default:
		stage, err := ParseStage(req.Stage)
		if err != nil {
			return httpError(err)
		}
		stages = []JourneyStage{stage}
	}
	result, err := h.svc.EnsureSteps(c.Request().Context(), patientID, stages...)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) InitializeAllPatients(c echo.Context) error {
	result, err := h.svc.InitializeAllPatients(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListPatientSteps(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var filter StepFilter
	if v := c.QueryParam("journey_stage"); v != "" {
		stage, err := ParseStage(v)
		if err != nil {
			return httpError(err)
		}
		filter.Stage = stage
	}
	if v := c.QueryParam("status"); v != "" {
		status, err := ParseStatus(v)
		if err != nil {
			return httpError(err)
		}
		filter.Status = status
	}
	if c.QueryParam("active") == "true" {
		filter.OnlyActive = true
	}
	steps, err := h.svc.ListPatientSteps(c.Request().Context(), patientID, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": patientID,
		"steps":      steps,
		"total":      len(steps),
	})
}

func (h *Handler) ListActiveSteps(c echo.Context) error {
	p := pagination.FromContext(c)
	steps, total, err := h.svc.ListActiveSteps(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(steps, total, p.Limit, p.Offset))
}

func (h *Handler) GetStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	step, err := h.svc.GetStep(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *Handler) UpdateStep(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var update StepUpdate
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if update.IsCompleted != nil && *update.IsCompleted && update.CompletedBy == nil {
		if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
			update.CompletedBy = &userID
		}
	}
	step, err := h.svc.UpdateStep(c.Request().Context(), id, &update)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

type findingRequest struct {
	Finding string `json:"finding"`
}

func (h *Handler) AddFinding(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req findingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	step, err := h.svc.AddFinding(c.Request().Context(), id, req.Finding)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *Handler) RemoveFinding(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req findingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	step, err := h.svc.RemoveFinding(c.Request().Context(), id, req.Finding)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

func (h *Handler) AddAttachment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var att FileAttachment
	if err := c.Bind(&att); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if att.UploadedBy == "" {
		att.UploadedBy = auth.UserIDFromContext(c.Request().Context())
	}
	step, err := h.svc.AddAttachment(c.Request().Context(), id, att)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, step)
}

// UploadAttachment stores the multipart document and records its descriptor
// on the step in one call.
func (h *Handler) UploadAttachment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	userID := auth.UserIDFromContext(c.Request().Context())
	meta, err := h.docs.Put(c.Request().Context(), docstore.Metadata{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Category:    c.FormValue("category"),
		StepID:      id.String(),
		CreatedBy:   userID,
	}, src)
	if err != nil {
		switch {
		case errors.Is(err, docstore.ErrFileTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, docstore.ErrInvalidContentType):
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	step, err := h.svc.AddAttachment(c.Request().Context(), id, FileAttachment{
		FileName:     meta.ID,
		OriginalName: file.Filename,
		MimeType:     meta.ContentType,
		Size:         meta.Size,
		Path:         meta.ID,
		UploadedAt:   meta.CreatedAt,
		UploadedBy:   userID,
	})
	if err != nil {
		// The step write failed; do not leave an orphaned document behind.
		_ = h.docs.Delete(c.Request().Context(), meta.ID)
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, step)
}

// DownloadAttachment streams a stored document.
func (h *Handler) DownloadAttachment(c echo.Context) error {
	rc, meta, err := h.docs.Get(c.Request().Context(), c.Param("docId"))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.FileName))
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return c.Stream(http.StatusOK, contentType, rc)
}

type advanceRequest struct {
	Stage string `json:"journey_stage"`
}

func (h *Handler) AdvanceStage(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req advanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	stage, err := ParseStage(req.Stage)
	if err != nil {
		return httpError(err)
	}
	result, err := h.svc.AdvanceStage(c.Request().Context(), patientID, stage)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListCriticalSteps(c echo.Context) error {
	var filters CriticalStepFilters
	if v := c.QueryParam("journey_stage"); v != "" {
		stage, err := ParseStage(v)
		if err != nil {
			return httpError(err)
		}
		filters.Stage = stage
	}
	if v := c.QueryParam("cancer_type"); v != "" {
		filters.CancerType = v
	}
	if v := c.QueryParam("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid max_results")
		}
		filters.MaxResults = n
	}
	entries, err := h.analytics.CriticalSteps(c.Request().Context(), filters)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": entries,
		"total": len(entries),
	})
}

func (h *Handler) GetMetrics(c echo.Context) error {
	metrics, err := h.analytics.Metrics(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, metrics)
}
