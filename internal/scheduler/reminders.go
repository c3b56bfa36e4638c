package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/notify"
	"github.com/noah-isme/timetable-notifier/pkg/recurrence"
)

type reminderOffset struct {
	label  string
	before time.Duration
}

var reminderOffsets = []reminderOffset{
	{label: "5h", before: 5 * time.Hour},
	{label: "10m", before: 10 * time.Minute},
}

// ReminderKey is the registry key of one deadline reminder.
func ReminderKey(homeworkID, label string) string {
	return "homework:" + homeworkID + ":" + label
}

// ScheduleHomeworkReminders registers the 5h and 10m reminders for hw and
// returns how many were registered. Targets already in the past are skipped
// and any stale entry under their key is dropped.
func (s *Scheduler) ScheduleHomeworkReminders(hw models.HomeworkWithLesson) int {
	if hw.IsDone || hw.IsArchived {
		s.CancelReminders(hw.ID)
		return 0
	}
	now := s.now()
	deadline, ok, err := recurrence.HomeworkDeadline(hw, now)
	if err != nil {
		s.logger.Sugar().Warnw("homework deadline unavailable", "homework_id", hw.ID, "error", err)
		return 0
	}
	if !ok {
		return 0
	}

	registered := 0
	for _, offset := range reminderOffsets {
		key := ReminderKey(hw.ID, offset.label)
		at := deadline.Add(-offset.before)
		if !at.After(now) {
			s.unregister(key, nil)
			continue
		}

		reg := &registration{}
		id, label := hw.ID, offset.label
		s.register(key, reg, onceSchedule{at: at}, func() {
			s.runJob(jobDeadlineRemind, func(ctx context.Context) error {
				defer s.unregister(key, reg)
				return s.sendDeadlineReminder(ctx, id, label, deadline)
			})
		})
		registered++
	}
	return registered
}

// CancelReminders drops every pending reminder of the homework item.
func (s *Scheduler) CancelReminders(homeworkID string) {
	for _, offset := range reminderOffsets {
		s.unregister(ReminderKey(homeworkID, offset.label), nil)
	}
}

// RefreshReminders re-registers reminders for all undone homework. Lesson
// derived deadlines roll forward a week once passed, so this runs daily.
func (s *Scheduler) RefreshReminders(ctx context.Context) error {
	if s.homeworks == nil {
		return errNoSource
	}
	items, err := s.homeworks.ListUndone(ctx)
	if err != nil {
		return fmt.Errorf("list undone homework: %w", err)
	}
	registered := 0
	for _, hw := range items {
		registered += s.ScheduleHomeworkReminders(hw)
	}
	s.logger.Sugar().Infow("homework reminders refreshed", "homeworks", len(items), "reminders", registered)
	return nil
}

// sendDeadlineReminder re-reads the item so reminders for finished, archived
// or deleted homework are dropped silently.
func (s *Scheduler) sendDeadlineReminder(ctx context.Context, homeworkID, label string, deadline time.Time) error {
	hw, err := s.homeworks.FindByID(ctx, homeworkID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Sugar().Debugw("reminder skipped for missing homework", "homework_id", homeworkID)
			return nil
		}
		return fmt.Errorf("load homework %s: %w", homeworkID, err)
	}
	if hw.IsDone || hw.IsArchived {
		s.logger.Sugar().Debugw("reminder skipped for finished homework", "homework_id", homeworkID)
		return nil
	}

	if current, ok, err := recurrence.HomeworkDeadline(*hw, s.now()); err == nil && ok {
		deadline = current
	}
	msg := notify.Message{
		OwnerID: hw.OwnerID,
		Kind:    notify.KindDeadlineReminder,
		Text:    fmt.Sprintf("Reminder (%s left): %s is due %s", label, hw.Subject, deadline.Format("Mon 02 Jan 15:04")),
	}
	// delivery failures are counted in send and not retried
	_ = s.send(ctx, msg)
	return nil
}
