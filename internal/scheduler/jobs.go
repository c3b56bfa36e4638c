package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/notify"
	"github.com/noah-isme/timetable-notifier/pkg/recurrence"
)

const promptEndMinute = 20

// HomeworkPromptData is the callback payload of a homework prompt choice.
func HomeworkPromptData(lessonID string, answer bool) string {
	if answer {
		return "dz:" + lessonID + ":yes"
	}
	return "dz:" + lessonID + ":no"
}

// CheckLessons is the hourly lesson check. On Monday..Saturday it asks about
// homework for lessons ending at minute 20 of the current hour and reminds
// about lessons starting around now plus the lead time.
func (s *Scheduler) CheckLessons(ctx context.Context) error {
	if s.lessons == nil {
		return errNoSource
	}
	now := s.now()
	day := recurrence.ISOWeekday(now)
	if day == 7 {
		s.logger.Debug("lesson check skipped on sunday")
		return nil
	}

	lessons, err := s.lessons.ListByDay(ctx, day)
	if err != nil {
		return fmt.Errorf("list lessons for day %d: %w", day, err)
	}

	target := now.Add(s.cfg.UpcomingLead)
	var prompts, upcoming, failed int
	for _, lesson := range lessons {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if end, err := recurrence.ParseTimeOfDay(lesson.EndTime); err != nil {
			s.logger.Sugar().Warnw("lesson end time invalid", "lesson_id", lesson.ID, "end_time", lesson.EndTime)
		} else if end.Minute == promptEndMinute && end.Hour == now.Hour() {
			prompts++
			if s.send(ctx, homeworkPrompt(lesson)) != nil {
				failed++
			}
		}

		start, err := recurrence.ParseTimeOfDay(lesson.StartTime)
		if err != nil {
			s.logger.Sugar().Warnw("lesson start time invalid", "lesson_id", lesson.ID, "start_time", lesson.StartTime)
			continue
		}
		if delta := start.On(now).Sub(target); delta >= -s.cfg.UpcomingTolerance && delta <= s.cfg.UpcomingTolerance {
			upcoming++
			if s.send(ctx, upcomingLesson(lesson, s.cfg.UpcomingLead)) != nil {
				failed++
			}
		}
	}

	s.logger.Sugar().Infow("lesson check done", "day", day, "lessons", len(lessons), "prompts", prompts, "upcoming", upcoming, "failed", failed)
	return nil
}

func homeworkPrompt(lesson models.Lesson) notify.Message {
	return notify.Message{
		OwnerID: lesson.OwnerID,
		Kind:    notify.KindHomeworkPrompt,
		Text:    fmt.Sprintf("Was there any homework for %s?", lesson.Summary()),
		Choices: []notify.Choice{
			{Label: "Yes", Data: HomeworkPromptData(lesson.ID, true)},
			{Label: "No", Data: HomeworkPromptData(lesson.ID, false)},
		},
	}
}

func upcomingLesson(lesson models.Lesson, lead time.Duration) notify.Message {
	text := fmt.Sprintf("In %d minutes: %s at %s", int(lead.Minutes()), lesson.Summary(), lesson.StartTime)
	if lesson.Teacher != "" {
		text += ", " + lesson.Teacher
	}
	return notify.Message{OwnerID: lesson.OwnerID, Kind: notify.KindUpcomingLesson, Text: text}
}

// SendDigests tells every owner with unfinished homework how many items are
// pending.
func (s *Scheduler) SendDigests(ctx context.Context) error {
	if s.homeworks == nil {
		return errNoSource
	}
	counts, err := s.homeworks.CountPendingByOwner(ctx)
	if err != nil {
		return fmt.Errorf("count pending homework: %w", err)
	}
	sent := 0
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		msg := notify.Message{
			OwnerID: c.OwnerID,
			Kind:    notify.KindDailyDigest,
			Text:    fmt.Sprintf("You have %d unfinished homework item(s).", c.Count),
		}
		if s.send(ctx, msg) == nil {
			sent++
		}
	}
	s.logger.Sugar().Infow("daily digest done", "owners", len(counts), "sent", sent)
	return nil
}

// ArchiveCompleted moves finished homework into the archive.
func (s *Scheduler) ArchiveCompleted(ctx context.Context) error {
	if s.archive == nil {
		return errNoSource
	}
	_, err := s.archive.Sweep(ctx)
	return err
}
