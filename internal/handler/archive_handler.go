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

type archiveService interface {
	ListWeek(ctx context.Context, ownerID string, weeksAgo int) (*dto.ArchiveWeekResponse, error)
}

// ArchiveHandler browses archived homework.
type ArchiveHandler struct {
	service archiveService
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(service archiveService) *ArchiveHandler {
	return &ArchiveHandler{service: service}
}

// Week godoc
// @Summary Archived homework of one week
// @Description Week window is Monday 00:00 to next Monday 00:00, weeksAgo weeks back.
// @Tags Archive
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Param weeksAgo query int false "Weeks before the current one" default(0)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /users/{ownerId}/archive [get]
func (h *ArchiveHandler) Week(c *gin.Context) {
	owner, err := ownerFromPath(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	weeksAgo, err := strconv.Atoi(c.DefaultQuery("weeksAgo", "0"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "weeksAgo must be an integer"))
		return
	}
	week, err := h.service.ListWeek(c.Request.Context(), owner, weeksAgo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, week)
}
