package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
)

type archiveStoreStub struct {
	items    []models.Homework
	from, to time.Time
}

func (s *archiveStoreStub) ArchiveCompleted(_ context.Context, at time.Time) (int64, error) {
	var n int64
	for i := range s.items {
		if s.items[i].IsDone && !s.items[i].IsArchived {
			s.items[i].IsArchived = true
			archivedAt := at
			s.items[i].ArchivedAt = &archivedAt
			n++
		}
	}
	return n, nil
}

func (s *archiveStoreStub) ListArchivedBetween(_ context.Context, _ string, from, to time.Time) ([]models.Homework, error) {
	s.from, s.to = from, to
	return nil, nil
}

func TestArchiveServiceSweepIsIdempotent(t *testing.T) {
	store := &archiveStoreStub{items: []models.Homework{
		{ID: "a", IsDone: true},
		{ID: "b", IsDone: false},
		{ID: "c", IsDone: true},
	}}
	svc := NewArchiveService(store, nil, nil)

	first, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), first)
	snapshot := append([]models.Homework(nil), store.items...)

	second, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second)
	assert.Equal(t, snapshot, store.items)
	assert.False(t, store.items[1].IsArchived)
}

func TestWeekWindow(t *testing.T) {
	loc := time.FixedZone("ALMT", 5*3600)
	// Wednesday
	now := time.Date(2025, time.October, 15, 18, 45, 0, 0, loc)

	from, to := WeekWindow(now, 0)
	assert.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, time.October, 20, 0, 0, 0, 0, loc), to)

	from, to = WeekWindow(now, 2)
	assert.Equal(t, time.Date(2025, time.September, 29, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, time.October, 6, 0, 0, 0, 0, loc), to)

	sunday := time.Date(2025, time.October, 19, 23, 0, 0, 0, loc)
	from, _ = WeekWindow(sunday, 0)
	assert.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, loc), from)
}

func TestArchiveServiceListWeek(t *testing.T) {
	loc := time.FixedZone("ALMT", 5*3600)
	store := &archiveStoreStub{}
	svc := NewArchiveService(store, loc, nil)
	svc.now = func() time.Time { return time.Date(2025, time.October, 15, 12, 0, 0, 0, loc) }

	week, err := svc.ListWeek(context.Background(), "42", 1)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.October, 6, 0, 0, 0, 0, loc), store.from)
	assert.Equal(t, store.to, week.To)
	assert.NotNil(t, week.Items)

	_, err = svc.ListWeek(context.Background(), "42", -1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
