package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/recurrence"
)

type homeworkStore interface {
	Create(ctx context.Context, hw *models.Homework) error
	FindByID(ctx context.Context, id string) (*models.HomeworkWithLesson, error)
	ListByOwner(ctx context.Context, ownerID string, onlyActive bool) ([]models.HomeworkWithLesson, error)
	MarkDone(ctx context.Context, ownerID, id string, at time.Time) error
}

type lessonFinder interface {
	FindByID(ctx context.Context, ownerID, id string) (*models.Lesson, error)
}

type reminderScheduler interface {
	ScheduleHomeworkReminders(hw models.HomeworkWithLesson) int
	CancelReminders(homeworkID string)
}

// HomeworkService manages homework items and their deadline reminders.
type HomeworkService struct {
	homeworks homeworkStore
	lessons   lessonFinder
	reminders reminderScheduler
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
	now       func() time.Time
}

// NewHomeworkService constructs a HomeworkService. reminders may be nil when
// the scheduler is disabled.
func NewHomeworkService(homeworks homeworkStore, lessons lessonFinder, reminders reminderScheduler, validate *validator.Validate, location *time.Location, logger *zap.Logger) *HomeworkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if location == nil {
		location = time.UTC
	}
	return &HomeworkService{
		homeworks: homeworks,
		lessons:   lessons,
		reminders: reminders,
		validator: validate,
		logger:    logger,
		location:  location,
		now:       time.Now,
	}
}

// Create stores a homework item and registers its reminders. An explicit
// deadline is stored; a lesson-linked item without one gets its deadline
// computed on demand.
func (s *HomeworkService) Create(ctx context.Context, ownerID string, req dto.CreateHomeworkRequest) (*dto.HomeworkView, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	if req.LessonID != nil && strings.TrimSpace(*req.LessonID) == "" {
		req.LessonID = nil
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid homework payload")
	}

	item := models.HomeworkWithLesson{
		Homework: models.Homework{
			OwnerID:     ownerID,
			LessonID:    req.LessonID,
			Subject:     req.Subject,
			Description: req.Description,
			Deadline:    req.Deadline,
		},
	}
	if req.LessonID != nil {
		lesson, err := s.lessons.FindByID(ctx, ownerID, *req.LessonID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "lesson not found")
			}
			return nil, err
		}
		if item.Subject == "" {
			item.Subject = lesson.DisplayName()
		}
		item.LessonDay = &lesson.DayOfWeek
		item.LessonStart = &lesson.StartTime
		item.LessonCourseCode = &lesson.CourseCode
	}

	if err := s.homeworks.Create(ctx, &item.Homework); err != nil {
		return nil, err
	}
	if s.reminders != nil {
		registered := s.reminders.ScheduleHomeworkReminders(item)
		s.logger.Sugar().Debugw("homework reminders registered", "owner_id", ownerID, "homework_id", item.ID, "count", registered)
	}
	return s.view(item), nil
}

// List returns the owner's non-archived homework; includeDone adds finished
// items that are not archived yet.
func (s *HomeworkService) List(ctx context.Context, ownerID string, includeDone bool) ([]dto.HomeworkView, error) {
	items, err := s.homeworks.ListByOwner(ctx, ownerID, !includeDone)
	if err != nil {
		return nil, err
	}
	views := make([]dto.HomeworkView, 0, len(items))
	for _, item := range items {
		views = append(views, *s.view(item))
	}
	return views, nil
}

// MarkDone finishes a homework item and cancels its pending reminders.
func (s *HomeworkService) MarkDone(ctx context.Context, ownerID, id string) error {
	if err := s.homeworks.MarkDone(ctx, ownerID, id, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "homework not found or already done")
		}
		return err
	}
	if s.reminders != nil {
		s.reminders.CancelReminders(id)
	}
	s.logger.Sugar().Infow("homework done", "owner_id", ownerID, "homework_id", id)
	return nil
}

func (s *HomeworkService) view(item models.HomeworkWithLesson) *dto.HomeworkView {
	view := &dto.HomeworkView{Homework: item.Homework}
	if item.LessonCourseCode != nil {
		view.LessonCourseCode = *item.LessonCourseCode
	}
	deadline, ok, err := recurrence.HomeworkDeadline(item, s.now().In(s.location))
	if err != nil {
		s.logger.Sugar().Warnw("homework deadline unavailable", "homework_id", item.ID, "error", err)
		return view
	}
	if ok {
		view.EffectiveDeadline = &deadline
	}
	return view
}
