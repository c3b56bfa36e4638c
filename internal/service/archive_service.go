package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/recurrence"
)

const maxWeeksAgo = 520

type archiveStore interface {
	ArchiveCompleted(ctx context.Context, at time.Time) (int64, error)
	ListArchivedBetween(ctx context.Context, ownerID string, from, to time.Time) ([]models.Homework, error)
}

// ArchiveService sweeps finished homework into the archive and browses it
// week by week. Archived rows are never deleted.
type ArchiveService struct {
	repo     archiveStore
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(repo archiveStore, location *time.Location, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &ArchiveService{repo: repo, logger: logger, location: location, now: time.Now}
}

// Sweep archives every finished, not yet archived item. A second run finds
// nothing to do.
func (s *ArchiveService) Sweep(ctx context.Context) (int64, error) {
	count, err := s.repo.ArchiveCompleted(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	s.logger.Sugar().Infow("homework archived", "count", count)
	return count, nil
}

// WeekWindow returns [Monday 00:00, next Monday 00:00) of the week that lies
// weeksAgo weeks before the week containing now.
func WeekWindow(now time.Time, weeksAgo int) (time.Time, time.Time) {
	monday := now.AddDate(0, 0, 1-recurrence.ISOWeekday(now))
	y, m, d := monday.Date()
	from := time.Date(y, m, d-7*weeksAgo, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 7)
}

// ListWeek returns the owner's homework archived in the selected week.
func (s *ArchiveService) ListWeek(ctx context.Context, ownerID string, weeksAgo int) (*dto.ArchiveWeekResponse, error) {
	if weeksAgo < 0 || weeksAgo > maxWeeksAgo {
		return nil, appErrors.Clone(appErrors.ErrValidation, "weeksAgo must be between 0 and 520")
	}
	from, to := WeekWindow(s.now().In(s.location), weeksAgo)
	items, err := s.repo.ListArchivedBetween(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Homework{}
	}
	return &dto.ArchiveWeekResponse{WeeksAgo: weeksAgo, From: from, To: to, Items: items}, nil
}
