package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type usernameLister interface {
	ListUsernames(ctx context.Context) ([]string, error)
}

type studentImportRepository interface {
	studentWriter
	ListCodes(ctx context.Context) ([]string, error)
}

type subjectImportRepository interface {
	subjectWriter
	ListKeys(ctx context.Context) ([]models.SubjectKey, error)
}

type teacherImportRepository interface {
	teacherWriter
	teacherDirectory
}

// ImportRepositories groups the storage collaborators of the importer.
type ImportRepositories struct {
	Teachers teacherImportRepository
	Users    usernameLister
	Groups   groupRepository
	Students studentImportRepository
	Subjects subjectImportRepository
}

// ImportService runs bulk imports of teachers, students and subjects. Rows of
// one call are processed strictly in file order.
type ImportService struct {
	repos      ImportRepositories
	normalizer *importer.Normalizer
	writer     *entityWriter
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// NewImportService constructs an ImportService.
func NewImportService(repos ImportRepositories, normalizer *importer.Normalizer, bcryptCost int, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ImportService{
		repos:      repos,
		normalizer: normalizer,
		writer: &entityWriter{
			teachers:   repos.Teachers,
			students:   repos.Students,
			subjects:   repos.Subjects,
			bcryptCost: bcryptCost,
		},
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ImportWorkbook imports the sheets present in wb in dependency order:
// teachers, students, subjects. Every sheet is normalised before the first
// write so an oversized sheet fails the call without partial writes.
func (s *ImportService) ImportWorkbook(ctx context.Context, wb importer.Workbook, opts dto.WorkbookImportOptions) (*models.WorkbookResult, error) {
	if err := s.validator.Struct(opts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid import options")
	}

	var (
		teachers *importer.TeacherBatch
		students *importer.StudentBatch
		subjects *importer.SubjectBatch
		err      error
	)
	if rows, ok := wb.Sheet(models.ImportKindTeachers); ok {
		if teachers, err = s.normalizer.Teachers(rows); err != nil {
			return nil, err
		}
	}
	if rows, ok := wb.Sheet(models.ImportKindStudents); ok {
		if students, err = s.normalizer.Students(rows, opts.StudentYear, opts.StudentGroup); err != nil {
			return nil, err
		}
	}
	if rows, ok := wb.Sheet(models.ImportKindSubjects); ok {
		if subjects, err = s.normalizer.Subjects(rows); err != nil {
			return nil, err
		}
	}

	result := &models.WorkbookResult{StartedAt: s.now().UTC()}
	if teachers != nil {
		if result.Teachers, err = s.importTeachers(ctx, teachers); err != nil {
			return nil, err
		}
	}
	if students != nil {
		if result.Students, err = s.importStudents(ctx, students); err != nil {
			return nil, err
		}
	}
	if subjects != nil {
		if result.Subjects, err = s.importSubjects(ctx, subjects); err != nil {
			return nil, err
		}
	}
	result.FinishedAt = s.now().UTC()
	return result, nil
}

// ImportTeachers imports teacher rows sent as JSON.
func (s *ImportService) ImportTeachers(ctx context.Context, req dto.TeacherImportRequest) (*models.KindResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher rows")
	}
	batch, err := s.normalizer.TeacherRecords(req.Records())
	if err != nil {
		return nil, err
	}
	return s.importTeachers(ctx, batch)
}

// ImportStudents imports student rows sent as JSON.
func (s *ImportService) ImportStudents(ctx context.Context, req dto.StudentImportRequest) (*models.KindResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student rows")
	}
	batch, err := s.normalizer.StudentRecords(req.Records())
	if err != nil {
		return nil, err
	}
	return s.importStudents(ctx, batch)
}

// ImportSubjects imports subject rows sent as JSON.
func (s *ImportService) ImportSubjects(ctx context.Context, req dto.SubjectImportRequest) (*models.KindResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject rows")
	}
	batch, err := s.normalizer.SubjectRecords(req.Records())
	if err != nil {
		return nil, err
	}
	return s.importSubjects(ctx, batch)
}

func (s *ImportService) importTeachers(ctx context.Context, batch *importer.TeacherBatch) (*models.KindResult, error) {
	start := s.now()
	usernames, err := s.repos.Users.ListUsernames(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing usernames")
	}
	guard := importer.NewGuard(usernames)
	result := models.NewKindResult(models.ImportKindTeachers)
	outcomes := rejectOutcomes(batch.Rejects)

	for _, c := range batch.Candidates {
		if claim := guard.Claim(c.Username); claim != importer.ClaimOK {
			outcomes = append(outcomes, claimFailure(c.Row, c.Username, claim))
			continue
		}
		if err := s.writer.writeTeacher(ctx, c); err != nil {
			guard.Release(c.Username)
			s.logger.Warn("teacher import row failed", zap.Int("row", c.Row), zap.String("username", c.Username), zap.Error(err))
			outcomes = append(outcomes, storageFailure(c.Row, c.Username, err))
			continue
		}
		guard.Commit(c.Username)
		outcomes = append(outcomes, models.RowOutcome{Row: c.Row, Key: c.Username, Code: models.OutcomeCreated, Message: msgRegistered})
	}

	return s.finish(result, outcomes, start), nil
}

func (s *ImportService) importStudents(ctx context.Context, batch *importer.StudentBatch) (*models.KindResult, error) {
	start := s.now()
	codes, err := s.repos.Students.ListCodes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing student codes")
	}
	guard := importer.NewGuard(codes)
	resolver := newReferenceResolver(s.repos.Groups, s.repos.Teachers)
	result := models.NewKindResult(models.ImportKindStudents)
	outcomes := rejectOutcomes(batch.Rejects)

	for _, c := range batch.Candidates {
		if claim := guard.Claim(c.Code); claim != importer.ClaimOK {
			outcomes = append(outcomes, claimFailure(c.Row, c.Code, claim))
			continue
		}

		message := msgRegistered
		var groupID *string
		if c.Year > 0 && c.GroupLabel != "" {
			key := models.GroupKey{Year: c.Year, Name: c.GroupLabel}
			groupID, err = resolver.lookupGroup(ctx, key)
			if err != nil {
				guard.Release(c.Code)
				outcomes = append(outcomes, storageFailure(c.Row, c.Code, err))
				continue
			}
			if groupID == nil {
				message = fmt.Sprintf("registered without group (%s not found)", key)
			}
		}

		if err := s.writer.writeStudent(ctx, c, groupID); err != nil {
			guard.Release(c.Code)
			s.logger.Warn("student import row failed", zap.Int("row", c.Row), zap.String("code", c.Code), zap.Error(err))
			outcomes = append(outcomes, storageFailure(c.Row, c.Code, err))
			continue
		}
		guard.Commit(c.Code)
		outcomes = append(outcomes, models.RowOutcome{Row: c.Row, Key: c.Code, Code: models.OutcomeCreated, Message: message})
	}

	return s.finish(result, outcomes, start), nil
}

func (s *ImportService) importSubjects(ctx context.Context, batch *importer.SubjectBatch) (*models.KindResult, error) {
	start := s.now()
	resolver := newReferenceResolver(s.repos.Groups, s.repos.Teachers)

	// Groups are created before existing subject keys are read, so two rows
	// sharing a new group are keyed by the same group id.
	keys := make([]models.GroupKey, 0, len(batch.Candidates))
	for _, c := range batch.Candidates {
		keys = append(keys, c.GroupKey())
	}
	prepared := resolver.ensureGroups(ctx, keys)
	s.logger.Debug("subject groups prepared", zap.Int("prepared", prepared), zap.Int("failed", len(resolver.groupErrs)))

	existing, err := s.repos.Subjects.ListKeys(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing subjects")
	}
	if err := resolver.loadTeachers(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}

	guard := importer.NewGuard(existing)
	result := models.NewKindResult(models.ImportKindSubjects)
	outcomes := rejectOutcomes(batch.Rejects)

	for _, c := range batch.Candidates {
		groupID, err := resolver.groupID(c.GroupKey())
		if err != nil {
			outcomes = append(outcomes, models.RowOutcome{
				Row: c.Row, Key: c.Name, Code: models.OutcomeGroupNotFound,
				Message: fmt.Sprintf("group %s not found: %v", c.GroupKey(), err),
			})
			continue
		}

		key := models.SubjectKey{Year: c.Year, Name: c.Name, GroupID: groupID}
		if claim := guard.Claim(key); claim != importer.ClaimOK {
			outcomes = append(outcomes, claimFailure(c.Row, c.Name, claim))
			continue
		}

		var registrarID *string
		if id, ok := resolver.teacherID(c.RegistrarName); ok {
			registrarID = &id
		}
		instructorIDs, unknown := resolver.instructorIDs(c.Instructors)

		if err := s.writer.writeSubject(ctx, c, groupID, registrarID, instructorIDs); err != nil {
			guard.Release(key)
			s.logger.Warn("subject import row failed", zap.Int("row", c.Row), zap.String("subject", c.Name), zap.Error(err))
			outcomes = append(outcomes, storageFailure(c.Row, c.Name, err))
			continue
		}
		guard.Commit(key)

		outcome := models.RowOutcome{Row: c.Row, Key: c.Name, Code: models.OutcomeCreated, Message: msgRegistered}
		if registrarID == nil {
			outcome.Code = models.OutcomeCreatedWithoutRegistrar
			outcome.Message = msgRegisteredNoInstructor
		}
		if len(unknown) > 0 {
			outcome.Message += " (unknown co-instructors: " + strings.Join(unknown, ", ") + ")"
		}
		outcomes = append(outcomes, outcome)
	}

	return s.finish(result, outcomes, start), nil
}

// finish orders outcomes by source row, fills the counters and records metrics.
func (s *ImportService) finish(result *models.KindResult, outcomes []models.RowOutcome, start time.Time) *models.KindResult {
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].Row < outcomes[j].Row })
	for _, o := range outcomes {
		if o.Code == models.OutcomeInvalidRow {
			s.logger.Debug("import row rejected", zap.String("kind", string(result.Kind)), zap.Int("row", o.Row), zap.String("reason", o.Message))
		}
		result.Add(o)
	}
	result.Summarize()

	s.metrics.ObserveImport(result, s.now().Sub(start))
	s.logger.Info("import sheet finished",
		zap.String("kind", string(result.Kind)),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result
}

func rejectOutcomes(rejects []importer.Reject) []models.RowOutcome {
	outcomes := make([]models.RowOutcome, 0, len(rejects))
	for _, r := range rejects {
		outcomes = append(outcomes, models.RowOutcome{Row: r.Row, Key: r.Key, Code: models.OutcomeInvalidRow, Message: r.Reason})
	}
	return outcomes
}
