// Package recurrence computes concrete occurrences of weekly lesson slots.
package recurrence

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a zero-padded "HH:MM" string.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	m := timeOfDayPattern.FindStringSubmatch(raw)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders the value as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// On combines the time of day with the calendar date of day in its location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// ISOWeekday maps time.Weekday onto ISO numbering (Monday=1..Sunday=7).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// NextOccurrence returns the next start of a weekly slot at or after now.
// A slot that already started today (or starts exactly now) rolls over to the
// same weekday next week. dayOfWeek uses ISO numbering; values outside 1..7
// mean the caller broke the lesson invariant and cause a panic.
func NextOccurrence(dayOfWeek int, start TimeOfDay, now time.Time) time.Time {
	if dayOfWeek < 1 || dayOfWeek > 7 {
		panic(fmt.Sprintf("recurrence: day of week %d out of range 1..7", dayOfWeek))
	}

	daysUntil := ((dayOfWeek-ISOWeekday(now))%7 + 7) % 7
	if daysUntil == 0 && !now.Before(start.On(now)) {
		daysUntil = 7
	}

	return start.On(now.AddDate(0, 0, daysUntil))
}

// LessonDeadline is the next start of lesson after now, expressed in now's
// location. It fails only when the stored start time is malformed.
func LessonDeadline(lesson models.Lesson, now time.Time) (time.Time, error) {
	start, err := ParseTimeOfDay(lesson.StartTime)
	if err != nil {
		return time.Time{}, err
	}
	return NextOccurrence(lesson.DayOfWeek, start, now), nil
}

// HomeworkDeadline resolves the effective deadline of a homework item: the
// stored deadline when present, otherwise the next start of its linked
// lesson. ok is false when the item has neither.
func HomeworkDeadline(hw models.HomeworkWithLesson, now time.Time) (deadline time.Time, ok bool, err error) {
	if hw.Deadline != nil {
		return hw.Deadline.In(now.Location()), true, nil
	}
	if hw.LessonDay == nil || hw.LessonStart == nil {
		return time.Time{}, false, nil
	}
	start, err := ParseTimeOfDay(*hw.LessonStart)
	if err != nil {
		return time.Time{}, false, err
	}
	if *hw.LessonDay < 1 || *hw.LessonDay > 7 {
		return time.Time{}, false, fmt.Errorf("lesson day %d out of range", *hw.LessonDay)
	}
	return NextOccurrence(*hw.LessonDay, start, now), true, nil
}
