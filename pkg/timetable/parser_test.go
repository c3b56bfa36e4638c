package timetable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-notifier/internal/models"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(raw)
}

func TestClTblParserExtractsLessons(t *testing.T) {
	parser := NewClTblParser(nil)
	result := parser.Parse(loadFixture(t, "timetable.html"))

	require.Equal(t, StatusFound, result.Status)
	assert.Equal(t, "cltbl/v1", result.Version)
	assert.Equal(t, 2, result.SkippedRows)

	want := []models.Lesson{
		{DayOfWeek: 1, StartTime: "08:30", EndTime: "09:20", CourseCode: "MATH101", Title: "Calculus I", LessonType: models.LessonTypeLecture, SectionCode: "[03-N]", Teacher: "Dr. Aliyev", Room: "E117"},
		{DayOfWeek: 3, StartTime: "08:30", EndTime: "09:20", CourseCode: "PHY102", Title: "Physics", LessonType: models.LessonTypePractice, SectionCode: "[14-P]", Room: "F203"},
		{DayOfWeek: 3, StartTime: "08:30", EndTime: "09:20", CourseCode: "CHM110", Title: "Chemistry", LessonType: models.LessonTypeLab, SectionCode: "[02-L]", Room: "G305"},
		{DayOfWeek: 6, StartTime: "11:30", EndTime: "12:20", CourseCode: "HIS100", Title: "History", LessonType: models.LessonTypeUnknown, SectionCode: "[01-X]"},
	}
	assert.Equal(t, want, result.Lessons)
}

func TestClTblParserMissingTable(t *testing.T) {
	parser := NewClTblParser(nil)

	for _, html := range []string{
		"",
		"<html><body><p>Session expired</p></body></html>",
		`<table class="other"><tr><td>08:30-09:20</td><td><a>X1</a></td></tr></table>`,
	} {
		result := parser.Parse(html)
		assert.Equal(t, StatusNotFound, result.Status)
		assert.Empty(t, result.Lessons)
		assert.False(t, result.Status.Replaces())
	}
}

func TestClTblParserEmptyTable(t *testing.T) {
	html := `<table class="clTbl">
		<tr><td>Hour</td><td>Mo</td></tr>
		<tr><td>08:30-09:20</td><td>&nbsp;</td></tr>
		<tr><td>f1</td></tr><tr><td>f2</td></tr><tr><td>f3</td></tr><tr><td>f4</td></tr>
	</table>`

	result := NewClTblParser(nil).Parse(html)
	assert.Equal(t, StatusEmpty, result.Status)
	assert.Empty(t, result.Lessons)
	assert.True(t, result.Status.Replaces())
}

func TestClTblParserTableShorterThanFooter(t *testing.T) {
	html := `<table class="clTbl"><tr><td>Hour</td></tr><tr><td>08:30-09:20</td><td><a>X1</a></td></tr></table>`

	result := NewClTblParser(nil).Parse(html)
	assert.Equal(t, StatusMalformed, result.Status)
	assert.Zero(t, result.SkippedRows)
	assert.False(t, result.Status.Replaces())
}

func TestClTblParserUnreadableSlotsKeepPriorLessons(t *testing.T) {
	html := `<table class="clTbl">
		<tr><td>Hour</td><td>Mo</td></tr>
		<tr><td>8.30 - 9.20</td><td><a title="Calculus I">MATH101</a></td></tr>
		<tr><td>9.30 - 10.20</td><td><a title="Physics">PHY102</a></td></tr>
		<tr><td>f1</td></tr><tr><td>f2</td></tr><tr><td>f3</td></tr><tr><td>f4</td></tr>
	</table>`

	result := NewClTblParser(nil).Parse(html)
	assert.Equal(t, StatusMalformed, result.Status)
	assert.Equal(t, 2, result.SkippedRows)
	assert.Empty(t, result.Lessons)
	assert.False(t, result.Status.Replaces())
}

func TestClTblParserCountsShortRows(t *testing.T) {
	html := `<table class="clTbl">
		<tr><td>Hour</td><td>Mo</td></tr>
		<tr><td colspan="7">Break</td></tr>
		<tr><td>08:30-09:20</td><td><a title="Calculus I">MATH101</a></td></tr>
		<tr><td>f1</td></tr><tr><td>f2</td></tr><tr><td>f3</td></tr><tr><td>f4</td></tr>
	</table>`

	result := NewClTblParser(nil).Parse(html)
	assert.Equal(t, StatusFound, result.Status)
	assert.Equal(t, 1, result.SkippedRows)
	assert.Len(t, result.Lessons, 1)
}

func TestParseSlot(t *testing.T) {
	start, end, ok := parseSlot(" 13:30-14:20 ")
	require.True(t, ok)
	assert.Equal(t, "13:30", start)
	assert.Equal(t, "14:20", end)

	for _, raw := range []string{"9:30-10:20", "13:30 - 14:20", "14:20-13:30", "10:00-10:00", "25:00-26:00", "13:30"} {
		_, _, ok := parseSlot(raw)
		assert.False(t, ok, raw)
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "empty", StatusEmpty.String())
	assert.Equal(t, "found", StatusFound.String())
	assert.Equal(t, "malformed", StatusMalformed.String())
}
