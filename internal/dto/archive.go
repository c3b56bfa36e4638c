package dto

import (
	"time"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

// ArchiveWeekResponse lists homework archived in one week window.
type ArchiveWeekResponse struct {
	WeeksAgo int               `json:"weeksAgo"`
	From     time.Time         `json:"from"`
	To       time.Time         `json:"to"`
	Items    []models.Homework `json:"items"`
}
