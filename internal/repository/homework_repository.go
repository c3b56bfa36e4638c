package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

const homeworkColumns = `h.id, h.owner_id, h.lesson_id, h.subject, h.description, h.deadline,
       h.is_done, h.is_archived, h.done_at, h.archived_at, h.created_at`

const homeworkWithLessonSelect = `SELECT ` + homeworkColumns + `,
       l.day_of_week AS lesson_day_of_week, l.start_time AS lesson_start_time,
       l.course_code AS lesson_course_code
FROM homeworks h
LEFT JOIN lessons l ON l.id = h.lesson_id`

// HomeworkRepository persists homework items and performs the archive sweep.
type HomeworkRepository struct {
	db *sqlx.DB
}

// NewHomeworkRepository constructs the repository.
func NewHomeworkRepository(db *sqlx.DB) *HomeworkRepository {
	return &HomeworkRepository{db: db}
}

// Create inserts a homework item.
func (r *HomeworkRepository) Create(ctx context.Context, hw *models.Homework) error {
	if hw.ID == "" {
		hw.ID = uuid.NewString()
	}
	if hw.CreatedAt.IsZero() {
		hw.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO homeworks (id, owner_id, lesson_id, subject, description, deadline, is_done, is_archived, created_at)
VALUES (:id, :owner_id, :lesson_id, :subject, :description, :deadline, :is_done, :is_archived, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hw); err != nil {
		return fmt.Errorf("create homework: %w", err)
	}
	return nil
}

// FindByID returns one homework item joined with its lesson.
func (r *HomeworkRepository) FindByID(ctx context.Context, id string) (*models.HomeworkWithLesson, error) {
	query := homeworkWithLessonSelect + ` WHERE h.id = $1`
	var hw models.HomeworkWithLesson
	if err := r.db.GetContext(ctx, &hw, query, id); err != nil {
		return nil, err
	}
	return &hw, nil
}

// ListByOwner returns the owner's non-archived homework. With onlyActive the
// finished items are left out. Undone items come first, then by deadline.
func (r *HomeworkRepository) ListByOwner(ctx context.Context, ownerID string, onlyActive bool) ([]models.HomeworkWithLesson, error) {
	query := homeworkWithLessonSelect + ` WHERE h.owner_id = $1 AND h.is_archived = FALSE`
	if onlyActive {
		query += ` AND h.is_done = FALSE`
	}
	query += ` ORDER BY h.is_done ASC, h.deadline ASC NULLS LAST, h.created_at ASC`

	var items []models.HomeworkWithLesson
	if err := r.db.SelectContext(ctx, &items, query, ownerID); err != nil {
		return nil, fmt.Errorf("list homeworks: %w", err)
	}
	return items, nil
}

// ListUndone returns every owner's unfinished, non-archived homework.
func (r *HomeworkRepository) ListUndone(ctx context.Context) ([]models.HomeworkWithLesson, error) {
	query := homeworkWithLessonSelect + ` WHERE h.is_done = FALSE AND h.is_archived = FALSE ORDER BY h.created_at ASC`
	var items []models.HomeworkWithLesson
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list undone homeworks: %w", err)
	}
	return items, nil
}

// CountPendingByOwner counts unfinished, non-archived homework per owner.
// Owners with nothing pending are absent from the result.
func (r *HomeworkRepository) CountPendingByOwner(ctx context.Context) ([]models.PendingCount, error) {
	const query = `SELECT owner_id, COUNT(*) AS pending FROM homeworks
WHERE is_done = FALSE AND is_archived = FALSE
GROUP BY owner_id ORDER BY owner_id`
	var counts []models.PendingCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count pending homeworks: %w", err)
	}
	return counts, nil
}

// MarkDone flags the owner's homework as finished.
func (r *HomeworkRepository) MarkDone(ctx context.Context, ownerID, id string, at time.Time) error {
	const query = `UPDATE homeworks SET is_done = TRUE, done_at = $3 WHERE id = $1 AND owner_id = $2 AND is_done = FALSE`
	res, err := r.db.ExecContext(ctx, query, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("mark homework done: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check homework done rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ArchiveCompleted marks every finished, not yet archived item as archived.
// Running it twice archives nothing the second time.
func (r *HomeworkRepository) ArchiveCompleted(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE homeworks SET is_archived = TRUE, archived_at = $1 WHERE is_done = TRUE AND is_archived = FALSE`
	res, err := r.db.ExecContext(ctx, query, at)
	if err != nil {
		return 0, fmt.Errorf("archive homeworks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check archived rows: %w", err)
	}
	return affected, nil
}

// ListArchivedBetween returns the owner's items archived in [from, to),
// newest first.
func (r *HomeworkRepository) ListArchivedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Homework, error) {
	query := `SELECT ` + homeworkColumns + ` FROM homeworks h
WHERE h.owner_id = $1 AND h.is_archived = TRUE AND h.archived_at >= $2 AND h.archived_at < $3
ORDER BY h.archived_at DESC`
	var items []models.Homework
	if err := r.db.SelectContext(ctx, &items, query, ownerID, from, to); err != nil {
		return nil, fmt.Errorf("list archived homeworks: %w", err)
	}
	return items, nil
}
