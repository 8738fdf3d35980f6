package importer

import (
	"strings"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// SubjectField identifies a column of the subjects sheet.
type SubjectField int

const (
	FieldSerial SubjectField = iota
	FieldGroup
	FieldStudentCount
	FieldExamType
	FieldName
	FieldCategory
	FieldForm
	FieldCredits
	FieldRegistrar
	FieldInstructors
	FieldPIN
)

var subjectFieldNames = map[SubjectField]string{
	FieldGroup:     "group",
	FieldName:      "subject name",
	FieldCategory:  "category",
	FieldForm:      "form",
	FieldCredits:   "credits",
	FieldRegistrar: "registrar",
	FieldPIN:       "access pin",
}

func (f SubjectField) String() string {
	if name, ok := subjectFieldNames[f]; ok {
		return name
	}
	return "column"
}

type marker struct {
	token string
	value string
}

// Layout is the locale-specific column map for the three sheet kinds.
type Layout struct {
	Locale string

	SheetNames map[models.ImportKind][]string

	TeacherHeaders []string
	StudentHeaders []string

	SubjectMarker  string
	SubjectHeaders map[SubjectField][]string

	categories []marker
	forms      []marker
}

// subjectDefaults are the column positions used when a header label is not found.
var subjectDefaults = map[SubjectField]int{
	FieldSerial:       0,
	FieldGroup:        1,
	FieldStudentCount: 2,
	FieldExamType:     3,
	FieldName:         4,
	FieldCategory:     5,
	FieldForm:         6,
	FieldCredits:      7,
	FieldRegistrar:    8,
	FieldInstructors:  9,
	FieldPIN:          10,
}

var japaneseLayout = Layout{
	Locale: "ja",
	SheetNames: map[models.ImportKind][]string{
		models.ImportKindTeachers: {"教員", "教員一覧", "teachers"},
		models.ImportKindStudents: {"学生", "学生一覧", "students"},
		models.ImportKindSubjects: {"科目", "科目一覧", "subjects"},
	},
	TeacherHeaders: []string{"ユーザー名", "ユーザ名", "ID"},
	StudentHeaders: []string{"学籍番号", "番号", "学生番号"},
	SubjectMarker:  "科目名",
	SubjectHeaders: map[SubjectField][]string{
		FieldSerial:       {"通し番号", "No"},
		FieldGroup:        {"組", "クラス"},
		FieldStudentCount: {"人数"},
		FieldExamType:     {"試験"},
		FieldName:         {"科目名"},
		FieldCategory:     {"分野"},
		FieldForm:         {"形式"},
		FieldCredits:      {"単位数", "単位"},
		FieldRegistrar:    {"担当"},
		FieldInstructors:  {"担当合員", "担当教員"},
		FieldPIN:          {"暗証番号"},
	},
	categories: []marker{{"専", string(models.CategorySpecialized)}, {"他", string(models.CategoryOther)}},
	forms:      []marker{{"講", string(models.ClassLecture)}, {"演", string(models.ClassExercise)}},
}

var englishLayout = Layout{
	Locale: "en",
	SheetNames: map[models.ImportKind][]string{
		models.ImportKindTeachers: {"teachers", "instructors", "staff"},
		models.ImportKindStudents: {"students"},
		models.ImportKindSubjects: {"subjects", "curriculum"},
	},
	TeacherHeaders: []string{"username", "user name", "login"},
	StudentHeaders: []string{"student code", "code", "student id"},
	SubjectMarker:  "subject",
	SubjectHeaders: map[SubjectField][]string{
		FieldSerial:       {"no", "serial"},
		FieldGroup:        {"group", "class"},
		FieldStudentCount: {"students", "headcount"},
		FieldExamType:     {"exam", "exam type"},
		FieldName:         {"subject", "subject name"},
		FieldCategory:     {"category", "field"},
		FieldForm:         {"form", "type"},
		FieldCredits:      {"credits"},
		FieldRegistrar:    {"registrar", "instructor"},
		FieldInstructors:  {"co-instructors", "instructors"},
		FieldPIN:          {"pin", "access pin"},
	},
	categories: []marker{{"special", string(models.CategorySpecialized)}, {"other", string(models.CategoryOther)}},
	forms:      []marker{{"lecture", string(models.ClassLecture)}, {"exercise", string(models.ClassExercise)}},
}

// LayoutFor returns the layout for a locale, defaulting to Japanese.
func LayoutFor(locale string) Layout {
	if strings.EqualFold(locale, "en") {
		return englishLayout
	}
	return japaneseLayout
}

// Category maps category text to S or O by marker substring.
func (l Layout) Category(text string) (models.SubjectCategory, bool) {
	if v, ok := matchMarker(l.categories, text); ok {
		return models.SubjectCategory(v), true
	}
	return "", false
}

// Form maps form text to Lecture or Exercise by marker substring.
func (l Layout) Form(text string) (models.ClassType, bool) {
	if v, ok := matchMarker(l.forms, text); ok {
		return models.ClassType(v), true
	}
	return "", false
}

// CategoryCode is Category plus the stored codes S and O, for API records.
func (l Layout) CategoryCode(text string) (models.SubjectCategory, bool) {
	switch text {
	case string(models.CategorySpecialized), string(models.CategoryOther):
		return models.SubjectCategory(text), true
	}
	return l.Category(text)
}

// FormCode is Form plus the stored codes Lecture and Exercise, for API records.
func (l Layout) FormCode(text string) (models.ClassType, bool) {
	switch text {
	case string(models.ClassLecture), string(models.ClassExercise):
		return models.ClassType(text), true
	}
	return l.Form(text)
}

func matchMarker(markers []marker, text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m.token) {
			return m.value, true
		}
	}
	return "", false
}

// SheetKind reports which kind a sheet name belongs to.
func (l Layout) SheetKind(name string) (models.ImportKind, bool) {
	folded := strings.ToLower(NewCell(name).Text())
	for _, kind := range models.ImportOrder {
		for _, candidate := range l.SheetNames[kind] {
			if folded == strings.ToLower(candidate) {
				return kind, true
			}
		}
	}
	return "", false
}

// subjectColumns resolves field positions from a header row.
func (l Layout) subjectColumns(header []string) map[SubjectField]int {
	columns := make(map[SubjectField]int, len(subjectDefaults))
	for field, idx := range subjectDefaults {
		columns[field] = idx
	}
	for i, raw := range header {
		label := strings.ToLower(NewCell(raw).Text())
		if label == "" {
			continue
		}
		for field, labels := range l.SubjectHeaders {
			if containsFold(labels, label) {
				columns[field] = i
			}
		}
	}
	return columns
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
