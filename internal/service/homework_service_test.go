package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

const lessonUUID = "6f1c8a52-3d2b-4c1e-9a57-0d4f2b8e7c11"

type homeworkStoreStub struct {
	created []models.Homework
	items   []models.HomeworkWithLesson
	done    map[string]bool
}

func (s *homeworkStoreStub) Create(_ context.Context, hw *models.Homework) error {
	hw.ID = "hw-1"
	s.created = append(s.created, *hw)
	return nil
}

func (s *homeworkStoreStub) FindByID(context.Context, string) (*models.HomeworkWithLesson, error) {
	return nil, sql.ErrNoRows
}

func (s *homeworkStoreStub) ListByOwner(context.Context, string, bool) ([]models.HomeworkWithLesson, error) {
	return s.items, nil
}

func (s *homeworkStoreStub) MarkDone(_ context.Context, _ string, id string, _ time.Time) error {
	if s.done[id] {
		return sql.ErrNoRows
	}
	if s.done == nil {
		s.done = map[string]bool{}
	}
	s.done[id] = true
	return nil
}

type lessonFinderStub struct {
	lesson *models.Lesson
}

func (f lessonFinderStub) FindByID(_ context.Context, _ string, id string) (*models.Lesson, error) {
	if f.lesson == nil || f.lesson.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.lesson, nil
}

type reminderStub struct {
	scheduled []models.HomeworkWithLesson
	cancelled []string
}

func (r *reminderStub) ScheduleHomeworkReminders(hw models.HomeworkWithLesson) int {
	r.scheduled = append(r.scheduled, hw)
	return 2
}

func (r *reminderStub) CancelReminders(id string) {
	r.cancelled = append(r.cancelled, id)
}

func newHomeworkServiceForTest() (*HomeworkService, *homeworkStoreStub, *reminderStub) {
	loc := time.FixedZone("ALMT", 5*3600)
	store := &homeworkStoreStub{}
	reminders := &reminderStub{}
	lesson := &models.Lesson{ID: lessonUUID, DayOfWeek: 5, StartTime: "13:30", EndTime: "14:20", CourseCode: "MATH101"}
	svc := NewHomeworkService(store, lessonFinderStub{lesson: lesson}, reminders, nil, loc, nil)
	// Wednesday 2025-10-15 09:00
	svc.now = func() time.Time { return time.Date(2025, time.October, 15, 9, 0, 0, 0, loc) }
	return svc, store, reminders
}

func TestHomeworkServiceCreateLinkedToLesson(t *testing.T) {
	svc, store, reminders := newHomeworkServiceForTest()
	lessonID := lessonUUID

	view, err := svc.Create(context.Background(), "42", dto.CreateHomeworkRequest{LessonID: &lessonID, Description: "Exercises 1-5"})
	require.NoError(t, err)

	require.Len(t, store.created, 1)
	assert.Equal(t, "MATH101", store.created[0].Subject)
	assert.Nil(t, store.created[0].Deadline, "lesson-derived deadline is not stored")

	require.NotNil(t, view.EffectiveDeadline)
	assert.Equal(t, time.Friday, view.EffectiveDeadline.Weekday())
	assert.Equal(t, 13, view.EffectiveDeadline.Hour())
	assert.Equal(t, 30, view.EffectiveDeadline.Minute())
	assert.Equal(t, "MATH101", view.LessonCourseCode)

	require.Len(t, reminders.scheduled, 1)
	assert.Equal(t, "hw-1", reminders.scheduled[0].ID)
	require.NotNil(t, reminders.scheduled[0].LessonDay)
	assert.Equal(t, 5, *reminders.scheduled[0].LessonDay)
}

func TestHomeworkServiceCreateWithExplicitDeadline(t *testing.T) {
	svc, store, _ := newHomeworkServiceForTest()
	deadline := time.Date(2025, time.October, 20, 18, 0, 0, 0, time.UTC)

	view, err := svc.Create(context.Background(), "42", dto.CreateHomeworkRequest{Subject: "Essay", Deadline: &deadline})
	require.NoError(t, err)
	require.NotNil(t, store.created[0].Deadline)
	assert.True(t, deadline.Equal(*view.EffectiveDeadline))
}

func TestHomeworkServiceCreateValidation(t *testing.T) {
	svc, store, _ := newHomeworkServiceForTest()

	_, err := svc.Create(context.Background(), "42", dto.CreateHomeworkRequest{Description: "no subject"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	unknown := "0b0c9c1e-5a77-4b0e-8f7e-2f8c6a8b9d10"
	_, err = svc.Create(context.Background(), "42", dto.CreateHomeworkRequest{LessonID: &unknown})
	require.Error(t, err)
	assert.Equal(t, "lesson not found", appErrors.FromError(err).Message)

	notUUID := "lesson-1"
	_, err = svc.Create(context.Background(), "42", dto.CreateHomeworkRequest{Subject: "x", LessonID: &notUUID})
	require.Error(t, err)
	assert.Empty(t, store.created)
}

func TestHomeworkServiceMarkDoneCancelsReminders(t *testing.T) {
	svc, _, reminders := newHomeworkServiceForTest()

	require.NoError(t, svc.MarkDone(context.Background(), "42", "hw-1"))
	assert.Equal(t, []string{"hw-1"}, reminders.cancelled)

	err := svc.MarkDone(context.Background(), "42", "hw-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Len(t, reminders.cancelled, 1)
}

func TestHomeworkServiceListResolvesDeadlines(t *testing.T) {
	svc, store, _ := newHomeworkServiceForTest()
	day, start, bad := 3, "08:00", "8am"
	store.items = []models.HomeworkWithLesson{
		{Homework: models.Homework{ID: "a"}, LessonDay: &day, LessonStart: &start},
		{Homework: models.Homework{ID: "b"}},
		{Homework: models.Homework{ID: "c"}, LessonDay: &day, LessonStart: &bad},
	}

	views, err := svc.List(context.Background(), "42", false)
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.NotNil(t, views[0].EffectiveDeadline)
	// Wednesday 08:00 already passed at 09:00, so next week
	assert.Equal(t, 22, views[0].EffectiveDeadline.Day())
	assert.Nil(t, views[1].EffectiveDeadline)
	assert.Nil(t, views[2].EffectiveDeadline)
}
