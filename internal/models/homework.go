package models

import "time"

// Homework is a task owned by a student, optionally tied to a lesson whose
// next occurrence acts as the deadline.
type Homework struct {
	ID          string     `db:"id" json:"id"`
	OwnerID     string     `db:"owner_id" json:"owner_id"`
	LessonID    *string    `db:"lesson_id" json:"lesson_id,omitempty"`
	Subject     string     `db:"subject" json:"subject"`
	Description string     `db:"description" json:"description"`
	Deadline    *time.Time `db:"deadline" json:"deadline,omitempty"`
	IsDone      bool       `db:"is_done" json:"is_done"`
	IsArchived  bool       `db:"is_archived" json:"is_archived"`
	DoneAt      *time.Time `db:"done_at" json:"done_at,omitempty"`
	ArchivedAt  *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// HomeworkWithLesson joins a homework row with the recurrence fields of its
// lesson. The lesson columns are NULL when the link is absent or the lesson
// was deleted by a later import.
type HomeworkWithLesson struct {
	Homework
	LessonDay        *int    `db:"lesson_day_of_week" json:"-"`
	LessonStart      *string `db:"lesson_start_time" json:"-"`
	LessonCourseCode *string `db:"lesson_course_code" json:"-"`
}

// PendingCount is the number of unfinished homework items for one owner.
type PendingCount struct {
	OwnerID string `db:"owner_id"`
	Count   int    `db:"pending"`
}
