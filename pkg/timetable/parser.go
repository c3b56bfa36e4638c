// Package timetable turns the portal's timetable HTML into lesson slots.
package timetable

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/recurrence"
)

// Status tells callers whether an import should replace the stored lessons.
type Status int

const (
	// StatusNotFound means the timetable table was absent; keep prior data.
	StatusNotFound Status = iota
	// StatusEmpty means the table exists but holds no lessons.
	StatusEmpty
	// StatusFound means at least one lesson was extracted.
	StatusFound
	// StatusMalformed means the table exists but no slot row could be read;
	// keep prior data.
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusFound:
		return "found"
	case StatusMalformed:
		return "malformed"
	default:
		return "not_found"
	}
}

// Replaces reports whether a result with this status should overwrite the
// owner's lesson set.
func (s Status) Replaces() bool {
	return s == StatusEmpty || s == StatusFound
}

// Result is the outcome of one parse.
type Result struct {
	Status      Status          `json:"status"`
	Version     string          `json:"version"`
	Lessons     []models.Lesson `json:"lessons"`
	SkippedRows int             `json:"skipped_rows"`
}

// Parser extracts lessons from a timetable page. Implementations are
// versioned so layout changes can ship side by side.
type Parser interface {
	Version() string
	Parse(html string) Result
}

const (
	clTblVersion = "cltbl/v1"
	footerRows   = 4
	maxDay       = 6
	roomIconSrc  = "images/house.gif"
)

var (
	slotPattern = regexp.MustCompile(`^(\d{2}:\d{2})-(\d{2}:\d{2})$`)
	roomPattern = regexp.MustCompile(`^[A-Z]+\d+`)
)

// ClTblParser reads the `table.clTbl` layout: one row per time slot, one
// column per weekday Monday..Saturday.
type ClTblParser struct {
	logger *zap.Logger
}

// NewClTblParser builds the default parser.
func NewClTblParser(logger *zap.Logger) *ClTblParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClTblParser{logger: logger}
}

// Version implements Parser.
func (p *ClTblParser) Version() string { return clTblVersion }

// Parse implements Parser. It never fails: malformed rows are skipped and
// counted, a missing table yields StatusNotFound.
func (p *ClTblParser) Parse(html string) Result {
	result := Result{Status: StatusNotFound, Version: clTblVersion}
	if strings.TrimSpace(html) == "" {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.Sugar().Warnw("timetable html unreadable", "error", err)
		return result
	}
	table := doc.Find("table.clTbl").First()
	if table.Length() == 0 {
		p.logger.Sugar().Debugw("timetable table not found", "bytes", len(html))
		return result
	}

	rows := table.Find("tr")
	slotRows := 0
	for i := 1; i < rows.Length()-footerRows; i++ {
		cells := rows.Eq(i).ChildrenFiltered("td")
		if cells.Length() < 2 {
			result.SkippedRows++
			p.logger.Sugar().Debugw("timetable row skipped", "row", i, "cells", cells.Length())
			continue
		}
		start, end, ok := parseSlot(cells.First().Text())
		if !ok {
			result.SkippedRows++
			p.logger.Sugar().Debugw("timetable row skipped", "row", i, "slot", strings.TrimSpace(cells.First().Text()))
			continue
		}
		slotRows++

		cells.Slice(1, cells.Length()).Each(func(col int, cell *goquery.Selection) {
			day := col + 1
			if day > maxDay {
				return
			}
			result.Lessons = append(result.Lessons, parseCell(cell, day, start, end)...)
		})
	}

	switch {
	case len(result.Lessons) > 0:
		result.Status = StatusFound
	case slotRows == 0 || result.SkippedRows > 0:
		p.logger.Sugar().Warnw("timetable table unreadable", "rows", rows.Length(), "skipped", result.SkippedRows)
		result.Status = StatusMalformed
	default:
		result.Status = StatusEmpty
	}
	return result
}

func parseSlot(raw string) (string, string, bool) {
	m := slotPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", "", false
	}
	start, err := recurrence.ParseTimeOfDay(m[1])
	if err != nil {
		return "", "", false
	}
	end, err := recurrence.ParseTimeOfDay(m[2])
	if err != nil || end.Minutes() <= start.Minutes() {
		return "", "", false
	}
	return m[1], m[2], true
}

func parseCell(cell *goquery.Selection, day int, start, end string) []models.Lesson {
	anchors := cell.Find("a")
	if anchors.Length() == 0 {
		return nil
	}
	titled := cell.Find("span[title]")

	lessons := make([]models.Lesson, 0, anchors.Length())
	anchors.Each(func(z int, a *goquery.Selection) {
		title, _ := a.Attr("title")
		following := a.NextUntil("a")
		section, lessonType := sectionMarker(following)

		room := roomNearIcon(following)
		if room == "" {
			room = roomByPosition(titled, z)
		}

		lessons = append(lessons, models.Lesson{
			DayOfWeek:   day,
			StartTime:   start,
			EndTime:     end,
			CourseCode:  strings.TrimSpace(a.Text()),
			Title:       strings.TrimSpace(title),
			LessonType:  lessonType,
			SectionCode: section,
			Teacher:     teacherFromDetails(following.Filter(`span[name="details"]`).First()),
			Room:        room,
		})
	})
	return lessons
}

// sectionMarker finds the first bracketed span such as [03-N] among the
// anchor's siblings.
func sectionMarker(following *goquery.Selection) (string, models.LessonType) {
	var (
		code string
		kind models.LessonType
	)
	following.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "span"
	}).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if len(text) < 3 || !strings.HasPrefix(text, "[") || !strings.HasSuffix(text, "]") {
			return true
		}
		code = text
		switch text[len(text)-2] {
		case 'N':
			kind = models.LessonTypeLecture
		case 'P':
			kind = models.LessonTypePractice
		case 'L':
			kind = models.LessonTypeLab
		}
		return false
	})
	return code, kind
}

// roomNearIcon returns the room code from the first non-details span that
// follows the house icon.
func roomNearIcon(following *goquery.Selection) string {
	seenIcon := false
	room := ""
	following.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !seenIcon {
			if src, _ := s.Attr("src"); goquery.NodeName(s) == "img" && src == roomIconSrc {
				seenIcon = true
			} else if s.Find(`img[src="` + roomIconSrc + `"]`).Length() > 0 {
				seenIcon = true
			}
			return true
		}
		if goquery.NodeName(s) != "span" {
			return true
		}
		if name, _ := s.Attr("name"); name == "details" {
			return true
		}
		text := strings.ReplaceAll(strings.TrimSpace(s.Text()), " ", "")
		if roomPattern.MatchString(text) {
			room = text
			return false
		}
		return true
	})
	return room
}

// roomByPosition pairs the z-th anchor with the (2z+1)-th titled span; the
// even positions carry the section markers.
func roomByPosition(titled *goquery.Selection, z int) string {
	idx := 2*z + 1
	if idx >= titled.Length() {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(titled.Eq(idx).Text()), " ", "")
}

// teacherFromDetails returns the last <br>-separated line of the details
// span when it has more than one line.
func teacherFromDetails(details *goquery.Selection) string {
	if details.Length() == 0 {
		return ""
	}
	var (
		lines   []string
		current strings.Builder
	)
	flush := func() {
		if line := strings.TrimSpace(current.String()); line != "" {
			lines = append(lines, line)
		}
		current.Reset()
	}
	details.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "br" {
			flush()
			return
		}
		current.WriteString(s.Text())
	})
	flush()

	if len(lines) < 2 {
		return ""
	}
	return lines[len(lines)-1]
}
