package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/response"
)

type homeworkService interface {
	Create(ctx context.Context, ownerID string, req dto.CreateHomeworkRequest) (*dto.HomeworkView, error)
	List(ctx context.Context, ownerID string, includeDone bool) ([]dto.HomeworkView, error)
	MarkDone(ctx context.Context, ownerID, id string) error
}

// HomeworkHandler manages homework endpoints.
type HomeworkHandler struct {
	service homeworkService
}

// NewHomeworkHandler constructs the handler.
func NewHomeworkHandler(service homeworkService) *HomeworkHandler {
	return &HomeworkHandler{service: service}
}

// Create godoc
// @Summary Add homework
// @Tags Homework
// @Accept json
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param payload body dto.CreateHomeworkRequest true "Homework payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{ownerId}/homeworks [post]
func (h *HomeworkHandler) Create(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid homework payload"))
		return
	}
	view, err := h.service.Create(c.Request.Context(), owner, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// List godoc
// @Summary List homework
// @Tags Homework
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param includeDone query bool false "Include finished items not archived yet"
// @Success 200 {object} response.Envelope
// @Router /users/{ownerId}/homeworks [get]
func (h *HomeworkHandler) List(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	includeDone := false
	if raw := c.Query("includeDone"); raw != "" {
		includeDone, err = strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "includeDone must be a boolean"))
			return
		}
	}
	items, err := h.service.List(c.Request.Context(), owner, includeDone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// MarkDone godoc
// @Summary Mark homework as done
// @Tags Homework
// @Param ownerId path string true "Owner ID"
// @Param id path string true "Homework ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /users/{ownerId}/homeworks/{id}/done [post]
func (h *HomeworkHandler) MarkDone(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.MarkDone(c.Request.Context(), owner, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
