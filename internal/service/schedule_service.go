package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/dto"
	"github.com/noah-isme/timetable-notifier/internal/models"
	appErrors "github.com/noah-isme/timetable-notifier/pkg/errors"
	"github.com/noah-isme/timetable-notifier/pkg/export"
	"github.com/noah-isme/timetable-notifier/pkg/jobs"
	"github.com/noah-isme/timetable-notifier/pkg/portal"
	"github.com/noah-isme/timetable-notifier/pkg/timetable"
)

// Import sources, used as metric labels.
const (
	ImportSourcePortal = "portal"
	ImportSourceUpload = "upload"
)

type lessonStore interface {
	ReplaceForOwner(ctx context.Context, ownerID string, lessons []models.Lesson) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.Lesson, error)
}

type timetableFetcher interface {
	FetchTimetable(ctx context.Context, cookies map[string]string, period portal.Period) string
}

type cookieProvider interface {
	ActiveCookies(ctx context.Context, ownerID string) (map[string]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered timetable.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ScheduleService imports timetables and serves the stored lesson set.
type ScheduleService struct {
	lessons  lessonStore
	sessions cookieProvider
	fetcher  timetableFetcher
	parser   timetable.Parser
	cache    *CacheService
	metrics  *MetricsService
	csv      csvRenderer
	pdf      pdfRenderer
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(lessons lessonStore, sessions cookieProvider, fetcher timetableFetcher, parser timetable.Parser, cache *CacheService, metrics *MetricsService, location *time.Location, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = timetable.NewClTblParser(logger)
	}
	if location == nil {
		location = time.UTC
	}
	return &ScheduleService{
		lessons:  lessons,
		sessions: sessions,
		fetcher:  fetcher,
		parser:   parser,
		cache:    cache,
		metrics:  metrics,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// SyncFromPortal fetches the current term's timetable with the owner's
// session and imports it. A page without the timetable table, or one whose
// rows cannot be read, leaves the stored lessons untouched.
func (s *ScheduleService) SyncFromPortal(ctx context.Context, ownerID string) (*dto.ImportResult, error) {
	cookies, err := s.sessions.ActiveCookies(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	period := portal.AcademicPeriodAt(s.now(), s.location)
	html := s.fetcher.FetchTimetable(ctx, cookies, period)

	result, err := s.importParsed(ctx, ownerID, ImportSourcePortal, s.parser.Parse(html))
	if err != nil {
		return result, err
	}
	if !result.Replaced {
		if result.Status == timetable.StatusMalformed.String() {
			return result, appErrors.ErrTimetableMalformed
		}
		return result, appErrors.ErrTimetableNotFound
	}
	return result, nil
}

// ImportHTML imports a timetable page uploaded by the owner.
func (s *ScheduleService) ImportHTML(ctx context.Context, ownerID, html string) (*dto.ImportResult, error) {
	result, err := s.importParsed(ctx, ownerID, ImportSourceUpload, s.parser.Parse(html))
	if err != nil {
		return result, err
	}
	if !result.Replaced {
		if result.Status == timetable.StatusMalformed.String() {
			return result, appErrors.Clone(appErrors.ErrValidation, "timetable rows could not be read")
		}
		return result, appErrors.Clone(appErrors.ErrValidation, "timetable table not found in document")
	}
	return result, nil
}

func (s *ScheduleService) importParsed(ctx context.Context, ownerID, source string, parsed timetable.Result) (*dto.ImportResult, error) {
	result := &dto.ImportResult{
		Status:        parsed.Status.String(),
		ParserVersion: parsed.Version,
		SkippedRows:   parsed.SkippedRows,
	}
	s.metrics.RecordImport(source, result.Status)
	if parsed.SkippedRows > 0 {
		s.logger.Sugar().Warnw("timetable rows skipped", "owner_id", ownerID, "source", source, "skipped", parsed.SkippedRows, "parser", parsed.Version)
	}
	if !parsed.Status.Replaces() {
		s.logger.Sugar().Warnw("timetable unusable, keeping stored lessons", "owner_id", ownerID, "source", source, "status", result.Status)
		return result, nil
	}

	if err := s.lessons.ReplaceForOwner(ctx, ownerID, parsed.Lessons); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, ownerID)

	result.Imported = len(parsed.Lessons)
	result.Replaced = true
	s.logger.Sugar().Infow("timetable imported", "owner_id", ownerID, "source", source, "status", result.Status, "lessons", result.Imported)
	return result, nil
}

// ListLessons returns the owner's lessons, served from cache when possible.
func (s *ScheduleService) ListLessons(ctx context.Context, ownerID string) ([]models.Lesson, error) {
	if lessons, ok := s.cache.Lessons(ctx, ownerID); ok {
		return lessons, nil
	}
	lessons, err := s.lessons.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	s.cache.StoreLessons(ctx, ownerID, lessons)
	return lessons, nil
}

// Export renders the owner's timetable as "pdf" (weekly grid) or "csv"
// (one row per lesson).
func (s *ScheduleService) Export(ctx context.Context, ownerID, format string) (*ExportFile, error) {
	if format != "pdf" && format != "csv" {
		return nil, appErrors.ErrUnsupportedFormat
	}
	lessons, err := s.ListLessons(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stamp := s.now().In(s.location).Format("20060102")
	if format == "csv" {
		body, err := s.csv.Render(export.LessonList(lessons))
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: "timetable-" + stamp + ".csv", ContentType: "text/csv", Body: body}, nil
	}
	body, err := s.pdf.Render(export.LessonGrid(lessons))
	if err != nil {
		return nil, err
	}
	return &ExportFile{Filename: "timetable-" + stamp + ".pdf", ContentType: "application/pdf", Body: body}, nil
}

// HandleSyncJob runs a queued portal sync for job.OwnerID.
func (s *ScheduleService) HandleSyncJob(ctx context.Context, job jobs.Job) error {
	result, err := s.SyncFromPortal(ctx, job.OwnerID)
	if err != nil {
		return fmt.Errorf("sync timetable for %s: %w", job.OwnerID, err)
	}
	s.logger.Sugar().Infow("portal sync finished", "owner_id", job.OwnerID, "job_id", job.ID, "attempt", job.Attempt, "lessons", result.Imported)
	return nil
}
