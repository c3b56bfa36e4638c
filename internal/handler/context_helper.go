package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-notifier/internal/middleware"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

func ownerFromPath(c *gin.Context) (string, error) {
	owner := strings.TrimSpace(c.Param(middleware.OwnerParam))
	if owner == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "ownerId is required")
	}
	return owner, nil
}
