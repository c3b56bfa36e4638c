package models

import "time"

// LessonType is the category derived from a section marker such as [03-N].
type LessonType string

const (
	LessonTypeUnknown  LessonType = ""
	LessonTypeLecture  LessonType = "Lecture"
	LessonTypePractice LessonType = "Practice"
	LessonTypeLab      LessonType = "Lab"
)

// Lesson is one weekly-recurring timetable slot imported from the portal.
type Lesson struct {
	ID          string     `db:"id" json:"id"`
	OwnerID     string     `db:"owner_id" json:"owner_id"`
	DayOfWeek   int        `db:"day_of_week" json:"day_of_week"`
	StartTime   string     `db:"start_time" json:"start_time"`
	EndTime     string     `db:"end_time" json:"end_time"`
	CourseCode  string     `db:"course_code" json:"course_code,omitempty"`
	Title       string     `db:"title" json:"title,omitempty"`
	LessonType  LessonType `db:"lesson_type" json:"lesson_type,omitempty"`
	SectionCode string     `db:"section_code" json:"section_code,omitempty"`
	Teacher     string     `db:"teacher" json:"teacher,omitempty"`
	Room        string     `db:"room" json:"room,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// DisplayName prefers the course code, then the title.
func (l Lesson) DisplayName() string {
	switch {
	case l.CourseCode != "":
		return l.CourseCode
	case l.Title != "":
		return l.Title
	default:
		return "Lesson"
	}
}

// Summary renders "CODE (Type) - Room" for notification text.
func (l Lesson) Summary() string {
	s := l.DisplayName()
	if l.LessonType != LessonTypeUnknown {
		s += " (" + string(l.LessonType) + ")"
	}
	if l.Room != "" {
		s += " - " + l.Room
	}
	return s
}

// WeekdayNames maps ISO weekday numbers used by lessons to short labels.
var WeekdayNames = map[int]string{1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat"}
