package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
)

type mockTeacherRepo struct {
	teachers  []models.Teacher
	users     []models.User
	listErr   error
	createErr map[string]error
}

func (m *mockTeacherRepo) ListNames(ctx context.Context) ([]models.Teacher, error) {
	return m.teachers, m.listErr
}

func (m *mockTeacherRepo) ListUsernames(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	names := make([]string, 0, len(m.users))
	for _, u := range m.users {
		names = append(names, u.Username)
	}
	return names, nil
}

func (m *mockTeacherRepo) CreateWithUser(ctx context.Context, teacher *models.Teacher, user *models.User) error {
	if err := m.createErr[user.Username]; err != nil {
		return err
	}
	teacher.ID = fmt.Sprintf("t%d", len(m.teachers)+1)
	user.ID = fmt.Sprintf("u%d", len(m.users)+1)
	user.TeacherID = &teacher.ID
	m.teachers = append(m.teachers, *teacher)
	m.users = append(m.users, *user)
	return nil
}

type mockGroupRepo struct {
	groups    map[models.GroupKey]string
	ensureErr error
}

func (m *mockGroupRepo) EnsureGroup(ctx context.Context, year int, name string) (string, error) {
	if m.ensureErr != nil {
		return "", m.ensureErr
	}
	if m.groups == nil {
		m.groups = make(map[models.GroupKey]string)
	}
	key := models.GroupKey{Year: year, Name: name}
	if id, ok := m.groups[key]; ok {
		return id, nil
	}
	id := fmt.Sprintf("g%d", len(m.groups)+1)
	m.groups[key] = id
	return id, nil
}

func (m *mockGroupRepo) FindByYearName(ctx context.Context, year int, name string) (*models.Group, error) {
	id, ok := m.groups[models.GroupKey{Year: year, Name: name}]
	if !ok {
		return nil, nil
	}
	return &models.Group{ID: id, Year: year, Name: name}, nil
}

type mockStudentRepo struct {
	students []models.Student
	existing []string
	// failures are consumed in order per code
	failures map[string][]error
}

func (m *mockStudentRepo) ListCodes(ctx context.Context) ([]string, error) {
	return m.existing, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if errs := m.failures[student.StudentCode]; len(errs) > 0 {
		m.failures[student.StudentCode] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	m.students = append(m.students, *student)
	return nil
}

type mockSubjectRepo struct {
	subjects    []models.Subject
	instructors map[string][]string
	existing    []models.SubjectKey
	listErr     error
}

func (m *mockSubjectRepo) ListKeys(ctx context.Context) ([]models.SubjectKey, error) {
	return m.existing, m.listErr
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject, instructorIDs []string) error {
	subject.ID = fmt.Sprintf("sub%d", len(m.subjects)+1)
	m.subjects = append(m.subjects, *subject)
	if m.instructors == nil {
		m.instructors = make(map[string][]string)
	}
	m.instructors[subject.ID] = instructorIDs
	return nil
}

type importFixture struct {
	teachers *mockTeacherRepo
	groups   *mockGroupRepo
	students *mockStudentRepo
	subjects *mockSubjectRepo
	svc      *ImportService
}

func newImportFixture(maxRows int) *importFixture {
	f := &importFixture{
		teachers: &mockTeacherRepo{},
		groups:   &mockGroupRepo{},
		students: &mockStudentRepo{failures: map[string][]error{}},
		subjects: &mockSubjectRepo{},
	}
	normalizer := importer.NewNormalizer(importer.LayoutFor("ja"), maxRows, 2025)
	f.svc = NewImportService(ImportRepositories{
		Teachers: f.teachers,
		Users:    f.teachers,
		Groups:   f.groups,
		Students: f.students,
		Subjects: f.subjects,
	}, normalizer, bcrypt.MinCost, nil, NewMetricsService(), zap.NewNop())
	return f
}

var subjectSheetHeader = []string{"通し番号", "組", "人数", "試験", "科目名", "分野", "形式", "単位数", "担当", "担当合員", "暗証番号"}

func TestReferenceResolverCountsPreparedGroups(t *testing.T) {
	groups := &mockGroupRepo{groups: map[models.GroupKey]string{{Year: 2025, Name: "25A"}: "g-existing"}}
	resolver := newReferenceResolver(groups, &mockTeacherRepo{})

	prepared := resolver.ensureGroups(context.Background(), []models.GroupKey{
		{Year: 2025, Name: "25A"},
		{Year: 2025, Name: "25K"},
		{Year: 2025, Name: "25A"},
	})
	assert.Equal(t, 2, prepared)
	id, err := resolver.groupID(models.GroupKey{Year: 2025, Name: "25A"})
	require.NoError(t, err)
	assert.Equal(t, "g-existing", id)

	groups.ensureErr = errors.New("connection refused")
	prepared = resolver.ensureGroups(context.Background(), []models.GroupKey{{Year: 2024, Name: "24B"}})
	assert.Zero(t, prepared)
	_, err = resolver.groupID(models.GroupKey{Year: 2024, Name: "24B"})
	assert.Error(t, err)
}

func TestImportSubjectsEndToEndWithoutRegistrar(t *testing.T) {
	f := newImportFixture(0)
	wb := importer.SheetSet{
		models.ImportKindSubjects: {
			{"2025年度"},
			subjectSheetHeader,
			{"1", "25K", "30", "定期", "Math", "専", "講", "2", "Yamada", "", "1234"},
		},
	}

	result, err := f.svc.ImportWorkbook(context.Background(), wb, dto.WorkbookImportOptions{})
	require.NoError(t, err)
	assert.Nil(t, result.Teachers)
	assert.Nil(t, result.Students)
	require.NotNil(t, result.Subjects)

	assert.Equal(t, map[models.GroupKey]string{{Year: 2025, Name: "25K"}: "g1"}, f.groups.groups)
	require.Len(t, f.subjects.subjects, 1)
	subject := f.subjects.subjects[0]
	assert.Equal(t, models.CategorySpecialized, subject.Category)
	assert.Equal(t, models.ClassLecture, subject.ClassType)
	assert.Equal(t, 2, subject.Credits)
	assert.Equal(t, "g1", subject.GroupID)
	assert.Nil(t, subject.RegistrarID)

	require.Len(t, result.Subjects.Results, 1)
	outcome := result.Subjects.Results[0]
	assert.True(t, outcome.Success)
	assert.Equal(t, models.OutcomeCreatedWithoutRegistrar, outcome.Code)
	assert.Equal(t, "registered without instructor", outcome.Message)
	assert.Equal(t, 1, result.Subjects.Succeeded)
}

func TestImportWorkbookTeachersBeforeSubjects(t *testing.T) {
	f := newImportFixture(0)
	wb := importer.SheetSet{
		models.ImportKindSubjects: {
			{"2025"},
			subjectSheetHeader,
			{"1", "25K", "", "", "Math", "専", "講", "2", "Yamada", "Suzuki、Nobody", "1234"},
		},
		models.ImportKindTeachers: {
			{"yamada", "pw", "Yamada"},
			{"suzuki", "pw", "Suzuki"},
		},
	}

	result, err := f.svc.ImportWorkbook(context.Background(), wb, dto.WorkbookImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Teachers.Succeeded)

	outcome := result.Subjects.Results[0]
	assert.Equal(t, models.OutcomeCreated, outcome.Code)
	assert.Equal(t, "registered (unknown co-instructors: Nobody)", outcome.Message)

	subject := f.subjects.subjects[0]
	require.NotNil(t, subject.RegistrarID)
	assert.Equal(t, "t1", *subject.RegistrarID)
	assert.Equal(t, []string{"t2"}, f.subjects.instructors[subject.ID])
}

func TestImportSubjectsDuplicateSharingNewGroup(t *testing.T) {
	f := newImportFixture(0)
	req := dto.SubjectImportRequest{Rows: []dto.SubjectImportRow{
		{Year: 2025, Name: "Math", Category: "S", Form: "Lecture", Credits: "2", GroupLabel: "NEW", RegistrarName: "X", AccessPin: "1"},
		{Year: 2025, Name: "Math", Category: "O", Form: "Exercise", Credits: "1", GroupLabel: "NEW", RegistrarName: "X", AccessPin: "2"},
		{Year: 2025, Name: "Math", Category: "bogus", Form: "Lecture", Credits: "1", GroupLabel: "NEW", RegistrarName: "X", AccessPin: "2"},
	}}

	result, err := f.svc.ImportSubjects(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.Equal(t, models.OutcomeCreatedWithoutRegistrar, result.Results[0].Code)
	assert.Equal(t, models.OutcomeDuplicateInFile, result.Results[1].Code)
	assert.Equal(t, "duplicate within file", result.Results[1].Message)
	assert.Equal(t, models.OutcomeInvalidRow, result.Results[2].Code)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, "0001", f.subjects.subjects[0].AccessPIN)
}

func TestImportSubjectsExistingKey(t *testing.T) {
	f := newImportFixture(0)
	f.groups.groups = map[models.GroupKey]string{{Year: 2025, Name: "25K"}: "g-old"}
	f.subjects.existing = []models.SubjectKey{{Year: 2025, Name: "Math", GroupID: "g-old"}}

	result, err := f.svc.ImportSubjects(context.Background(), dto.SubjectImportRequest{Rows: []dto.SubjectImportRow{
		{Year: 2025, Name: "Math", Category: "専", Form: "講", Credits: "2", GroupLabel: "25K", RegistrarName: "X", AccessPin: "1234"},
	}})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAlreadyExists, result.Results[0].Code)
	assert.Equal(t, "already registered", result.Results[0].Message)
	assert.Empty(t, f.subjects.subjects)
}

func TestImportSubjectsGroupCreationFailure(t *testing.T) {
	f := newImportFixture(0)
	f.groups.ensureErr = errors.New("connection reset")

	result, err := f.svc.ImportSubjects(context.Background(), dto.SubjectImportRequest{Rows: []dto.SubjectImportRow{
		{Year: 2025, Name: "Math", Category: "S", Form: "Lecture", Credits: "2", GroupLabel: "25K", RegistrarName: "X", AccessPin: "1234"},
	}})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeGroupNotFound, result.Results[0].Code)
	assert.False(t, result.Results[0].Success)
}

func TestImportSubjectsLoadKeysFailureIsCallLevel(t *testing.T) {
	f := newImportFixture(0)
	f.subjects.listErr = errors.New("db down")

	_, err := f.svc.ImportSubjects(context.Background(), dto.SubjectImportRequest{Rows: []dto.SubjectImportRow{
		{Year: 2025, Name: "Math", Category: "S", Form: "Lecture", Credits: "2", GroupLabel: "25K", RegistrarName: "X", AccessPin: "1234"},
	}})
	require.Error(t, err)
	assert.Empty(t, f.subjects.subjects)
}

func TestImportStudentsDuplicates(t *testing.T) {
	f := newImportFixture(0)
	f.students.existing = []string{"S000"}
	f.groups.groups = map[models.GroupKey]string{{Year: 2025, Name: "25K"}: "g1"}

	result, err := f.svc.ImportStudents(context.Background(), dto.StudentImportRequest{Rows: []dto.StudentImportRow{
		{StudentCode: "S001", DisplayName: "Aoki", Year: 2025, GroupLabel: "25K"},
		{StudentCode: "S001", DisplayName: "Aoki again"},
		{StudentCode: "S000", DisplayName: "Old"},
		{StudentCode: "S002", DisplayName: "Ito", Year: 2025, GroupLabel: "99Z"},
	}})
	require.NoError(t, err)
	require.Len(t, result.Results, 4)

	assert.Equal(t, models.OutcomeCreated, result.Results[0].Code)
	assert.Equal(t, models.OutcomeDuplicateInFile, result.Results[1].Code)
	assert.Equal(t, models.OutcomeAlreadyExists, result.Results[2].Code)
	assert.Equal(t, "already registered", result.Results[2].Message)
	assert.Equal(t, models.OutcomeCreated, result.Results[3].Code)
	assert.Contains(t, result.Results[3].Message, "without group")

	require.Len(t, f.students.students, 2)
	require.NotNil(t, f.students.students[0].GroupID)
	assert.Equal(t, "g1", *f.students.students[0].GroupID)
	assert.Nil(t, f.students.students[1].GroupID)
}

func TestImportStudentsReleasesKeyAfterFailedWrite(t *testing.T) {
	f := newImportFixture(0)
	f.students.failures["S010"] = []error{errors.New("timeout"), nil}
	f.students.failures["S011"] = []error{&pq.Error{Code: "23505"}}

	wb := importer.SheetSet{
		models.ImportKindStudents: {
			{"S010", "Ueda", "", "S011", "Eto"},
			{"S010", "Ueda"},
		},
	}
	result, err := f.svc.ImportWorkbook(context.Background(), wb, dto.WorkbookImportOptions{})
	require.NoError(t, err)
	require.Len(t, result.Students.Results, 3)

	assert.Equal(t, models.OutcomeStorageError, result.Students.Results[0].Code)
	assert.Equal(t, "registration error: timeout", result.Students.Results[0].Message)
	assert.Equal(t, models.OutcomeAlreadyExists, result.Students.Results[1].Code)
	assert.Equal(t, models.OutcomeCreated, result.Students.Results[2].Code)
	assert.Len(t, f.students.students, 1)
}

func TestImportTeachers(t *testing.T) {
	f := newImportFixture(0)
	f.teachers.users = []models.User{{Username: "admin"}}

	result, err := f.svc.ImportTeachers(context.Background(), dto.TeacherImportRequest{Rows: []dto.TeacherImportRow{
		{Username: "yamada", Password: "secret", DisplayName: "Yamada"},
		{Username: "yamada", Password: "other", DisplayName: "Yamada 2"},
		{Username: "admin", Password: "x", DisplayName: "Admin"},
		{Username: "nopass", DisplayName: "No Pass"},
	}})
	require.NoError(t, err)
	codes := make([]models.OutcomeCode, 0, len(result.Results))
	for _, r := range result.Results {
		codes = append(codes, r.Code)
	}
	assert.Equal(t, []models.OutcomeCode{
		models.OutcomeCreated, models.OutcomeDuplicateInFile, models.OutcomeAlreadyExists, models.OutcomeInvalidRow,
	}, codes)
	assert.Equal(t, "teachers: 1 succeeded, 3 failed", result.Message)

	require.Len(t, f.teachers.users, 2)
	created := f.teachers.users[1]
	assert.Equal(t, models.RoleGeneral, created.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("secret")))
}

func TestImportWorkbookRowLimitBeforeWrites(t *testing.T) {
	f := newImportFixture(2)
	wb := importer.SheetSet{
		models.ImportKindTeachers: {{"a", "pw", "A"}},
		models.ImportKindStudents: {{"S1", "x"}, {"S2", "y"}, {"S3", "z"}},
	}
	_, err := f.svc.ImportWorkbook(context.Background(), wb, dto.WorkbookImportOptions{})
	require.Error(t, err)
	assert.Empty(t, f.teachers.users)
}
