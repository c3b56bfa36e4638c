package dto

import (
	"time"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

// CreateHomeworkRequest creates a homework item. Subject may be omitted when
// a lesson is linked; the lesson's course code is used instead.
type CreateHomeworkRequest struct {
	Subject     string     `json:"subject" validate:"required_without=LessonID,max=255"`
	Description string     `json:"description" validate:"max=4000"`
	Deadline    *time.Time `json:"deadline"`
	LessonID    *string    `json:"lessonId" validate:"omitempty,uuid"`
}

// HomeworkView is a homework item with its effective deadline resolved.
type HomeworkView struct {
	models.Homework
	EffectiveDeadline *time.Time `json:"effectiveDeadline,omitempty"`
	LessonCourseCode  string     `json:"lessonCourseCode,omitempty"`
}
