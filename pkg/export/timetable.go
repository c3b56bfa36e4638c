package export

import (
	"sort"
	"strings"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

var weekdayColumns = []int{1, 2, 3, 4, 5, 6}

// LessonList flattens lessons into one row per lesson, ordered by day and
// start time.
func LessonList(lessons []models.Lesson) Dataset {
	sorted := sortedLessons(lessons)
	rows := make([][]string, 0, len(sorted))
	for _, l := range sorted {
		rows = append(rows, []string{
			models.WeekdayNames[l.DayOfWeek],
			l.StartTime,
			l.EndTime,
			l.CourseCode,
			l.Title,
			string(l.LessonType),
			l.SectionCode,
			l.Teacher,
			l.Room,
		})
	}
	return Dataset{
		Title:   "Timetable",
		Headers: []string{"Day", "Start", "End", "Code", "Title", "Type", "Section", "Teacher", "Room"},
		Rows:    rows,
	}
}

// LessonGrid lays lessons out as a week: one row per distinct time slot, one
// column per weekday Monday..Saturday.
func LessonGrid(lessons []models.Lesson) Dataset {
	type slot struct{ start, end string }
	cells := make(map[slot]map[int][]string)
	var slots []slot

	for _, l := range sortedLessons(lessons) {
		key := slot{l.StartTime, l.EndTime}
		if _, ok := cells[key]; !ok {
			cells[key] = make(map[int][]string)
			slots = append(slots, key)
		}
		cells[key][l.DayOfWeek] = append(cells[key][l.DayOfWeek], l.Summary())
	}
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].start != slots[j].start {
			return slots[i].start < slots[j].start
		}
		return slots[i].end < slots[j].end
	})

	headers := []string{"Time"}
	for _, day := range weekdayColumns {
		headers = append(headers, models.WeekdayNames[day])
	}
	rows := make([][]string, 0, len(slots))
	for _, s := range slots {
		row := []string{s.start + "-" + s.end}
		for _, day := range weekdayColumns {
			row = append(row, strings.Join(cells[s][day], "\n"))
		}
		rows = append(rows, row)
	}
	return Dataset{Title: "Weekly timetable", Headers: headers, Rows: rows}
}

func sortedLessons(lessons []models.Lesson) []models.Lesson {
	out := append([]models.Lesson(nil), lessons...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}
