package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

const lessonColumns = `id, owner_id, day_of_week, start_time, end_time,
       COALESCE(course_code, '') AS course_code, COALESCE(title, '') AS title,
       COALESCE(lesson_type, '') AS lesson_type, COALESCE(section_code, '') AS section_code,
       COALESCE(teacher, '') AS teacher, COALESCE(room, '') AS room, created_at`

// LessonRepository persists imported timetable slots.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// ReplaceForOwner deletes every lesson of the owner and inserts the given set
// in one transaction. Lessons receive fresh ids, so homework links to the old
// rows are cleared by the foreign key.
func (r *LessonRepository) ReplaceForOwner(ctx context.Context, ownerID string, lessons []models.Lesson) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace lessons: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM lessons WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("clear lessons: %w", err)
	}

	now := time.Now().UTC()
	const insert = `INSERT INTO lessons (id, owner_id, day_of_week, start_time, end_time, course_code, title, lesson_type, section_code, teacher, room, created_at)
VALUES (:id, :owner_id, :day_of_week, :start_time, :end_time, :course_code, :title, :lesson_type, :section_code, :teacher, :room, :created_at)`
	for i := range lessons {
		lesson := lessons[i]
		lesson.ID = uuid.NewString()
		lesson.OwnerID = ownerID
		lesson.CreatedAt = now
		if _, err = tx.NamedExecContext(ctx, insert, &lesson); err != nil {
			return fmt.Errorf("insert lesson: %w", err)
		}
		lessons[i] = lesson
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace lessons: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's lessons ordered through the week.
func (r *LessonRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE owner_id = $1 ORDER BY day_of_week, start_time`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, ownerID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// ListByDay returns every owner's lessons on the given ISO weekday.
func (r *LessonRepository) ListByDay(ctx context.Context, dayOfWeek int) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE day_of_week = $1 ORDER BY owner_id, start_time`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list lessons by day: %w", err)
	}
	return lessons, nil
}

// FindByID returns one lesson of the owner.
func (r *LessonRepository) FindByID(ctx context.Context, ownerID, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1 AND owner_id = $2`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id, ownerID); err != nil {
		return nil, err
	}
	return &lesson, nil
}
