package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/internal/service"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/response"
)

const maxImportBytes = 5 << 20

type scheduleService interface {
	ImportHTML(ctx context.Context, ownerID, html string) (*dto.ImportResult, error)
	ListLessons(ctx context.Context, ownerID string) ([]models.Lesson, error)
	Export(ctx context.Context, ownerID, format string) (*service.ExportFile, error)
}

// ScheduleHandler exposes timetable sync, import, listing and export.
type ScheduleHandler struct {
	service scheduleService
	queue   jobEnqueuer
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(service scheduleService, queue jobEnqueuer) *ScheduleHandler {
	return &ScheduleHandler{service: service, queue: queue}
}

// Sync godoc
// @Summary Queue a timetable sync from the portal
// @Tags Schedule
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /users/{ownerId}/schedule/sync [post]
func (h *ScheduleHandler) Sync(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	job, ok := enqueueSync(h.queue, owner)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "sync queue unavailable"))
		return
	}
	response.Accepted(c, dto.SyncAccepted{JobID: job.ID, OwnerID: owner})
}

// Import godoc
// @Summary Import a saved timetable page
// @Description Accepts the raw HTML as the request body or as a multipart "file" field.
// @Tags Schedule
// @Accept text/html
// @Accept multipart/form-data
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{ownerId}/schedule/import [post]
func (h *ScheduleHandler) Import(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	html, err := readImportBody(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ImportHTML(c.Request.Context(), owner, html)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

func readImportBody(c *gin.Context) (string, error) {
	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, "file is required")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
		}
		defer file.Close()
		src = file
	}
	raw, err := io.ReadAll(io.LimitReader(src, maxImportBytes+1))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read document")
	}
	if len(raw) > maxImportBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "document too large")
	}
	if strings.TrimSpace(string(raw)) == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "document is empty")
	}
	return string(raw), nil
}

// Lessons godoc
// @Summary List imported lessons
// @Tags Schedule
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /users/{ownerId}/lessons [get]
func (h *ScheduleHandler) Lessons(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	lessons, err := h.service.ListLessons(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, map[string]interface{}{"count": len(lessons)})
}

// Export godoc
// @Summary Download the timetable
// @Tags Schedule
// @Produce application/pdf
// @Produce text/csv
// @Param ownerId path string true "Owner ID"
// @Param format query string false "pdf or csv" default(pdf)
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /users/{ownerId}/lessons/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "pdf"))
	file, err := h.service.Export(c.Request.Context(), owner, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Body)
}
