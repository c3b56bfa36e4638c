package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/notify"
)

var almaty = time.FixedZone("ALMT", 5*3600)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type lessonSourceStub struct {
	calls   int
	lessons []models.Lesson
}

func (s *lessonSourceStub) ListByDay(_ context.Context, day int) ([]models.Lesson, error) {
	s.calls++
	out := make([]models.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		if l.DayOfWeek == day {
			out = append(out, l)
		}
	}
	return out, nil
}

type homeworkSourceStub struct {
	items  map[string]models.HomeworkWithLesson
	counts []models.PendingCount
}

func (s *homeworkSourceStub) FindByID(_ context.Context, id string) (*models.HomeworkWithLesson, error) {
	hw, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &hw, nil
}

func (s *homeworkSourceStub) ListUndone(context.Context) ([]models.HomeworkWithLesson, error) {
	out := make([]models.HomeworkWithLesson, 0, len(s.items))
	for _, hw := range s.items {
		if !hw.IsDone {
			out = append(out, hw)
		}
	}
	return out, nil
}

func (s *homeworkSourceStub) CountPendingByOwner(context.Context) ([]models.PendingCount, error) {
	return s.counts, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []notify.Message
	failFor map[string]bool
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[msg.OwnerID] {
		return errors.New("chat unavailable")
	}
	n.sent = append(n.sent, msg)
	return nil
}

type sweeperStub struct{ calls int }

func (s *sweeperStub) Sweep(context.Context) (int64, error) {
	s.calls++
	return 0, nil
}

func newTestScheduler(now time.Time) (*Scheduler, *fakeClock, *lessonSourceStub, *homeworkSourceStub, *recordingNotifier) {
	clock := &fakeClock{now: now}
	lessons := &lessonSourceStub{}
	homeworks := &homeworkSourceStub{items: map[string]models.HomeworkWithLesson{}}
	notifier := &recordingNotifier{failFor: map[string]bool{}}
	s := New(Config{Location: almaty, Clock: clock}, lessons, homeworks, &sweeperStub{}, notifier, nil, nil)
	return s, clock, lessons, homeworks, notifier
}

func deadlineHomework(id string, deadline time.Time) models.HomeworkWithLesson {
	return models.HomeworkWithLesson{Homework: models.Homework{ID: id, OwnerID: "42", Subject: "MATH101", Deadline: &deadline}}
}

func TestScheduleHomeworkRemindersDeduplicatesByKey(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, _, _ := newTestScheduler(now)
	hw := deadlineHomework("hw1", now.Add(24*time.Hour))

	assert.Equal(t, 2, s.ScheduleHomeworkReminders(hw))
	assert.Equal(t, 2, s.ScheduleHomeworkReminders(hw))

	assert.Equal(t, []string{"homework:hw1:10m", "homework:hw1:5h"}, s.PendingJobKeys())
	assert.Len(t, s.cron.Entries(), 2)
}

func TestScheduleHomeworkRemindersSkipsPastTargets(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, clock, _, _, _ := newTestScheduler(now)
	hw := deadlineHomework("hw1", now.Add(24*time.Hour))
	require.Equal(t, 2, s.ScheduleHomeworkReminders(hw))

	clock.now = now.Add(21 * time.Hour)
	assert.Equal(t, 1, s.ScheduleHomeworkReminders(hw))
	assert.Equal(t, []string{"homework:hw1:10m"}, s.PendingJobKeys())

	clock.now = now.Add(24 * time.Hour)
	assert.Zero(t, s.ScheduleHomeworkReminders(hw))
	assert.Empty(t, s.PendingJobKeys())
}

func TestScheduleHomeworkRemindersLessonDeadline(t *testing.T) {
	// Monday 08:00; linked lesson on Wednesday 10:30
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, _, _ := newTestScheduler(now)
	day, start := 3, "10:30"
	hw := models.HomeworkWithLesson{Homework: models.Homework{ID: "hw2"}, LessonDay: &day, LessonStart: &start}

	require.Equal(t, 2, s.ScheduleHomeworkReminders(hw))

	s.mu.Lock()
	reg := s.entries["homework:hw2:10m"]
	s.mu.Unlock()
	require.NotNil(t, reg)
	schedule, ok := s.cron.Entry(reg.id).Schedule.(onceSchedule)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.October, 15, 10, 20, 0, 0, almaty), schedule.at)
}

func TestScheduleHomeworkRemindersIgnoresUnschedulable(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, _, _ := newTestScheduler(now)

	assert.Zero(t, s.ScheduleHomeworkReminders(models.HomeworkWithLesson{Homework: models.Homework{ID: "free"}}))

	bad := "8am"
	day := 2
	assert.Zero(t, s.ScheduleHomeworkReminders(models.HomeworkWithLesson{Homework: models.Homework{ID: "bad"}, LessonDay: &day, LessonStart: &bad}))

	done := deadlineHomework("done", now.Add(48*time.Hour))
	require.Equal(t, 2, s.ScheduleHomeworkReminders(done))
	done.IsDone = true
	assert.Zero(t, s.ScheduleHomeworkReminders(done))
	assert.Empty(t, s.PendingJobKeys())
}

func TestCancelReminders(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, _, _ := newTestScheduler(now)
	s.ScheduleHomeworkReminders(deadlineHomework("a", now.Add(24*time.Hour)))
	s.ScheduleHomeworkReminders(deadlineHomework("b", now.Add(24*time.Hour)))

	s.CancelReminders("a")
	assert.Equal(t, []string{"homework:b:10m", "homework:b:5h"}, s.PendingJobKeys())
}

func TestUnregisterKeepsReplacement(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, _, _ := newTestScheduler(now)

	first := &registration{}
	s.register("k", first, onceSchedule{at: now.Add(time.Hour)}, func() {})
	second := &registration{}
	s.register("k", second, onceSchedule{at: now.Add(2 * time.Hour)}, func() {})

	assert.False(t, s.unregister("k", first))
	assert.Equal(t, []string{"k"}, s.PendingJobKeys())
	assert.True(t, s.unregister("k", second))
}

func TestCheckLessonsSkipsSunday(t *testing.T) {
	sunday := time.Date(2025, time.October, 19, 13, 15, 0, 0, almaty)
	s, _, lessons, _, notifier := newTestScheduler(sunday)

	require.NoError(t, s.CheckLessons(context.Background()))
	assert.Zero(t, lessons.calls)
	assert.Empty(t, notifier.sent)
}

func TestCheckLessonsPromptsAndUpcoming(t *testing.T) {
	monday := time.Date(2025, time.October, 13, 13, 15, 0, 0, almaty)
	s, _, lessons, _, notifier := newTestScheduler(monday)
	lessons.lessons = []models.Lesson{
		{ID: "ending", OwnerID: "1", DayOfWeek: 1, StartTime: "12:30", EndTime: "13:20", CourseCode: "MATH101", LessonType: models.LessonTypeLecture},
		{ID: "soon", OwnerID: "2", DayOfWeek: 1, StartTime: "13:30", EndTime: "14:20", CourseCode: "PHY102", Room: "F203"},
		{ID: "edge", OwnerID: "3", DayOfWeek: 1, StartTime: "13:32", EndTime: "14:22", CourseCode: "CHM110"},
		{ID: "later", OwnerID: "4", DayOfWeek: 1, StartTime: "13:33", EndTime: "14:23", CourseCode: "HIS100"},
		{ID: "otherhour", OwnerID: "5", DayOfWeek: 1, StartTime: "14:30", EndTime: "15:20", CourseCode: "BIO100"},
		{ID: "tuesday", OwnerID: "6", DayOfWeek: 2, StartTime: "13:30", EndTime: "13:20", CourseCode: "X"},
	}

	require.NoError(t, s.CheckLessons(context.Background()))
	require.Len(t, notifier.sent, 3)

	prompt := notifier.sent[0]
	assert.Equal(t, notify.KindHomeworkPrompt, prompt.Kind)
	assert.Equal(t, "1", prompt.OwnerID)
	assert.Contains(t, prompt.Text, "MATH101 (Lecture)")
	assert.Equal(t, []notify.Choice{{Label: "Yes", Data: "dz:ending:yes"}, {Label: "No", Data: "dz:ending:no"}}, prompt.Choices)

	assert.Equal(t, notify.KindUpcomingLesson, notifier.sent[1].Kind)
	assert.Equal(t, "In 15 minutes: PHY102 - F203 at 13:30", notifier.sent[1].Text)
	assert.Equal(t, "3", notifier.sent[2].OwnerID)
}

func TestCheckLessonsContinuesAfterDeliveryFailure(t *testing.T) {
	monday := time.Date(2025, time.October, 13, 13, 15, 0, 0, almaty)
	s, _, lessons, _, notifier := newTestScheduler(monday)
	notifier.failFor["1"] = true
	lessons.lessons = []models.Lesson{
		{ID: "a", OwnerID: "1", DayOfWeek: 1, StartTime: "13:30", EndTime: "14:20"},
		{ID: "b", OwnerID: "2", DayOfWeek: 1, StartTime: "bad", EndTime: "13:20"},
		{ID: "c", OwnerID: "3", DayOfWeek: 1, StartTime: "13:30", EndTime: "14:20"},
	}

	require.NoError(t, s.CheckLessons(context.Background()))
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, notify.KindHomeworkPrompt, notifier.sent[0].Kind)
	assert.Equal(t, "2", notifier.sent[0].OwnerID)
	assert.Equal(t, "3", notifier.sent[1].OwnerID)
}

func TestSendDigests(t *testing.T) {
	s, _, _, homeworks, notifier := newTestScheduler(time.Date(2025, time.October, 13, 20, 0, 0, 0, almaty))
	homeworks.counts = []models.PendingCount{{OwnerID: "1", Count: 3}, {OwnerID: "2", Count: 0}}

	require.NoError(t, s.SendDigests(context.Background()))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindDailyDigest, notifier.sent[0].Kind)
	assert.Equal(t, "You have 3 unfinished homework item(s).", notifier.sent[0].Text)
}

func TestSendDeadlineReminderRereadsHomework(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, homeworks, notifier := newTestScheduler(now)
	deadline := now.Add(5 * time.Hour)

	require.NoError(t, s.sendDeadlineReminder(context.Background(), "gone", "5h", deadline))
	assert.Empty(t, notifier.sent)

	finished := deadlineHomework("finished", deadline)
	finished.IsDone = true
	homeworks.items["finished"] = finished
	require.NoError(t, s.sendDeadlineReminder(context.Background(), "finished", "5h", deadline))
	assert.Empty(t, notifier.sent)

	homeworks.items["open"] = deadlineHomework("open", deadline)
	require.NoError(t, s.sendDeadlineReminder(context.Background(), "open", "5h", deadline))
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindDeadlineReminder, notifier.sent[0].Kind)
	assert.Equal(t, "Reminder (5h left): MATH101 is due Mon 13 Oct 13:00", notifier.sent[0].Text)
}

func TestStartRegistersRecurringJobsAndReminders(t *testing.T) {
	now := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	s, _, _, homeworks, _ := newTestScheduler(now)
	homeworks.items["hw1"] = deadlineHomework("hw1", now.Add(24*time.Hour))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	assert.Equal(t, []string{
		JobDailyDigest,
		"homework:hw1:10m",
		"homework:hw1:5h",
		JobReminderRefresh,
		JobUnifiedCheck,
		JobWeeklyArchive,
	}, s.PendingJobKeys())
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := New(Config{DigestSpec: "every evening"}, &lessonSourceStub{}, &homeworkSourceStub{}, nil, nil, nil, nil)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobDailyDigest)
}

func TestOnceScheduleFiresOnce(t *testing.T) {
	at := time.Date(2025, time.October, 13, 8, 0, 0, 0, almaty)
	schedule := onceSchedule{at: at}

	assert.Equal(t, at, schedule.Next(at.Add(-time.Minute)))
	assert.True(t, schedule.Next(at).IsZero())
	assert.True(t, schedule.Next(at.Add(time.Minute)).IsZero())
}

func TestDeadlineReminderFiresAndUnregisters(t *testing.T) {
	homeworks := &homeworkSourceStub{items: map[string]models.HomeworkWithLesson{}}
	notifier := &recordingNotifier{failFor: map[string]bool{}}
	s := New(Config{Location: almaty}, &lessonSourceStub{}, homeworks, &sweeperStub{}, notifier, nil, nil)

	// the 10m reminder lands a moment from now, the 5h one is already past
	hw := deadlineHomework("hw1", time.Now().Add(10*time.Minute+time.Second))
	homeworks.items[hw.ID] = hw

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	require.Contains(t, s.PendingJobKeys(), ReminderKey("hw1", "10m"))
	require.NotContains(t, s.PendingJobKeys(), ReminderKey("hw1", "5h"))

	assert.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.sent) == 1
	}, 5*time.Second, 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		for _, key := range s.PendingJobKeys() {
			if key == ReminderKey("hw1", "10m") {
				return false
			}
		}
		return true
	}, 5*time.Second, 50*time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindDeadlineReminder, notifier.sent[0].Kind)
	assert.Equal(t, "42", notifier.sent[0].OwnerID)
}
