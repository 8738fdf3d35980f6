package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

const (
	headerScanRows = 5
	studentStride  = 3
	pinLength      = 4
)

var (
	yearPattern         = regexp.MustCompile(`\d{4}`)
	instructorSeparator = regexp.MustCompile(`[、,・/]+`)
)

// Reject is a row that failed normalisation and never reaches the writer.
type Reject struct {
	Row    int
	Key    string
	Reason string
}

type TeacherCandidate struct {
	Row      int
	Username string
	Password string
	Name     string
}

type StudentCandidate struct {
	Row        int
	Code       string
	Name       string
	Year       int
	GroupLabel string
}

type SubjectCandidate struct {
	Row           int
	Year          int
	Name          string
	Category      models.SubjectCategory
	Form          models.ClassType
	Credits       int
	GroupYear     int
	GroupLabel    string
	RegistrarName string
	Instructors   []string
	AccessPIN     string
}

// GroupKey is the natural key of the subject's group.
func (c SubjectCandidate) GroupKey() models.GroupKey {
	return models.GroupKey{Year: c.GroupYear, Name: c.GroupLabel}
}

type TeacherBatch struct {
	Candidates []TeacherCandidate
	Rejects    []Reject
}

type StudentBatch struct {
	Candidates []StudentCandidate
	Rejects    []Reject
}

type SubjectBatch struct {
	Year       int
	Candidates []SubjectCandidate
	Rejects    []Reject
}

// TeacherRecord, StudentRecord and SubjectRecord are pre-split rows supplied
// through the API rather than a sheet.
type TeacherRecord struct {
	Username RawValue
	Password RawValue
	Name     RawValue
}

type StudentRecord struct {
	Code       RawValue
	Name       RawValue
	Year       int
	GroupLabel RawValue
}

type SubjectRecord struct {
	Year          int
	Name          RawValue
	Category      RawValue
	Form          RawValue
	Credits       RawValue
	GroupYear     int
	GroupLabel    RawValue
	RegistrarName RawValue
	Instructors   []string
	AccessPIN     RawValue
}

// Normalizer turns raw sheet rows into typed candidates.
type Normalizer struct {
	layout      Layout
	maxRows     int
	defaultYear int
	now         func() time.Time
}

// NewNormalizer builds a normalizer. maxRows <= 0 disables the row limit and a
// zero defaultYear falls back to the current year.
func NewNormalizer(layout Layout, maxRows, defaultYear int) *Normalizer {
	return &Normalizer{layout: layout, maxRows: maxRows, defaultYear: defaultYear, now: time.Now}
}

func (n *Normalizer) Layout() Layout { return n.layout }

func (n *Normalizer) checkSize(rows int) error {
	if n.maxRows > 0 && rows > n.maxRows {
		return appErrors.Clone(appErrors.ErrImportTooLarge, fmt.Sprintf("sheet has %d rows, limit is %d", rows, n.maxRows))
	}
	return nil
}

func (n *Normalizer) fallbackYear() int {
	if n.defaultYear > 0 {
		return n.defaultYear
	}
	return n.now().Year()
}

// Teachers reads username, password and display name columns. Incomplete rows
// are dropped without a reject.
func (n *Normalizer) Teachers(rows [][]string) (*TeacherBatch, error) {
	if err := n.checkSize(len(rows)); err != nil {
		return nil, err
	}
	batch := &TeacherBatch{}
	for i, row := range rows {
		username, password, name := CellAt(row, 0), CellAt(row, 1), CellAt(row, 2)
		if i == 0 && containsFold(n.layout.TeacherHeaders, username.Text()) {
			continue
		}
		if username.Blank() || password.Blank() || name.Blank() {
			continue
		}
		batch.Candidates = append(batch.Candidates, TeacherCandidate{
			Row:      i + 1,
			Username: username.Text(),
			Password: password.Text(),
			Name:     name.Text(),
		})
	}
	return batch, nil
}

// TeacherRecords normalises API rows. Unlike sheets, an incomplete API row is rejected.
func (n *Normalizer) TeacherRecords(records []TeacherRecord) (*TeacherBatch, error) {
	if err := n.checkSize(len(records)); err != nil {
		return nil, err
	}
	batch := &TeacherBatch{}
	for i, rec := range records {
		username, password, name := rec.Username.Cell(), rec.Password.Cell(), rec.Name.Cell()
		if reason := missing(map[string]Cell{"username": username, "password": password, "display name": name}, "username", "password", "display name"); reason != "" {
			batch.Rejects = append(batch.Rejects, Reject{Row: i + 1, Key: username.Text(), Reason: reason})
			continue
		}
		batch.Candidates = append(batch.Candidates, TeacherCandidate{
			Row:      i + 1,
			Username: username.Text(),
			Password: password.Text(),
			Name:     name.Text(),
		})
	}
	return batch, nil
}

// Students scans each row in groups of three columns (code, name, filler).
// year and group apply to every student on the sheet and may be zero/empty.
func (n *Normalizer) Students(rows [][]string, year int, group string) (*StudentBatch, error) {
	if err := n.checkSize(len(rows)); err != nil {
		return nil, err
	}
	label := NewCell(group).Text()
	batch := &StudentBatch{}
	for i, row := range rows {
		for col := 0; col < len(row); col += studentStride {
			code, name := CellAt(row, col), CellAt(row, col+1)
			if code.Blank() || name.Blank() || containsFold(n.layout.StudentHeaders, code.Text()) {
				continue
			}
			batch.Candidates = append(batch.Candidates, StudentCandidate{
				Row:        i + 1,
				Code:       code.Text(),
				Name:       name.Text(),
				Year:       year,
				GroupLabel: label,
			})
		}
	}
	return batch, nil
}

func (n *Normalizer) StudentRecords(records []StudentRecord) (*StudentBatch, error) {
	if err := n.checkSize(len(records)); err != nil {
		return nil, err
	}
	batch := &StudentBatch{}
	for i, rec := range records {
		code, name := rec.Code.Cell(), rec.Name.Cell()
		if reason := missing(map[string]Cell{"student code": code, "display name": name}, "student code", "display name"); reason != "" {
			batch.Rejects = append(batch.Rejects, Reject{Row: i + 1, Key: code.Text(), Reason: reason})
			continue
		}
		batch.Candidates = append(batch.Candidates, StudentCandidate{
			Row:        i + 1,
			Code:       code.Text(),
			Name:       name.Text(),
			Year:       rec.Year,
			GroupLabel: rec.GroupLabel.Cell().Text(),
		})
	}
	return batch, nil
}

// carryForward holds the last non-blank value seen per inheriting column.
type carryForward struct {
	group, category, form, credits, registrar, pin Cell
}

// apply fills blanks from the accumulator and returns the updated accumulator.
func (cf carryForward) apply(f *subjectFields) carryForward {
	inherit := func(cur *Cell, last Cell) Cell {
		if cur.Blank() {
			*cur = last
		}
		return *cur
	}
	return carryForward{
		group:     inherit(&f.group, cf.group),
		category:  inherit(&f.category, cf.category),
		form:      inherit(&f.form, cf.form),
		credits:   inherit(&f.credits, cf.credits),
		registrar: inherit(&f.registrar, cf.registrar),
		pin:       inherit(&f.pin, cf.pin),
	}
}

type subjectFields struct {
	name, group, category, form, credits, registrar, pin Cell
	instructors                                          []string

	// codes allows the stored category/form codes besides marker text.
	codes bool
}

// Subjects locates the header row, reads the academic year from A1 and then
// normalises each data row with carry-forward.
func (n *Normalizer) Subjects(rows [][]string) (*SubjectBatch, error) {
	if err := n.checkSize(len(rows)); err != nil {
		return nil, err
	}

	batch := &SubjectBatch{Year: n.sheetYear(rows)}
	headerIdx := n.subjectHeaderRow(rows)
	var header []string
	if headerIdx >= 0 {
		header = rows[headerIdx]
	}
	columns := n.layout.subjectColumns(header)

	start := headerIdx + 1
	if headerIdx < 0 {
		start = 1
	}

	var acc carryForward
	for i := start; i < len(rows); i++ {
		row := rows[i]
		fields := subjectFields{
			name:      CellAt(row, columns[FieldName]),
			group:     CellAt(row, columns[FieldGroup]),
			category:  CellAt(row, columns[FieldCategory]),
			form:      CellAt(row, columns[FieldForm]),
			credits:   CellAt(row, columns[FieldCredits]),
			registrar: CellAt(row, columns[FieldRegistrar]),
			pin:       CellAt(row, columns[FieldPIN]),
		}
		if fields.name.Blank() {
			continue
		}
		fields.instructors = splitInstructors(CellAt(row, columns[FieldInstructors]).Text())
		acc = acc.apply(&fields)

		candidate, reject := n.subject(i+1, batch.Year, batch.Year, fields)
		if reject != nil {
			batch.Rejects = append(batch.Rejects, *reject)
			continue
		}
		batch.Candidates = append(batch.Candidates, candidate)
	}
	return batch, nil
}

// SubjectRecords normalises API rows. API rows carry every field, so no carry-forward applies.
func (n *Normalizer) SubjectRecords(records []SubjectRecord) (*SubjectBatch, error) {
	if err := n.checkSize(len(records)); err != nil {
		return nil, err
	}
	batch := &SubjectBatch{Year: n.fallbackYear()}
	for i, rec := range records {
		year := rec.Year
		if year <= 0 {
			year = batch.Year
		}
		groupYear := rec.GroupYear
		if groupYear <= 0 {
			groupYear = year
		}
		instructors := make([]string, 0, len(rec.Instructors))
		for _, name := range rec.Instructors {
			instructors = append(instructors, splitInstructors(name)...)
		}
		fields := subjectFields{
			name:        rec.Name.Cell(),
			group:       rec.GroupLabel.Cell(),
			category:    rec.Category.Cell(),
			form:        rec.Form.Cell(),
			credits:     rec.Credits.Cell(),
			registrar:   rec.RegistrarName.Cell(),
			pin:         rec.AccessPIN.Cell(),
			instructors: instructors,
			codes:       true,
		}
		if fields.name.Blank() {
			batch.Rejects = append(batch.Rejects, Reject{Row: i + 1, Reason: "missing subject name"})
			continue
		}
		candidate, reject := n.subject(i+1, year, groupYear, fields)
		if reject != nil {
			batch.Rejects = append(batch.Rejects, *reject)
			continue
		}
		batch.Candidates = append(batch.Candidates, candidate)
	}
	return batch, nil
}

func (n *Normalizer) subject(row, year, groupYear int, f subjectFields) (SubjectCandidate, *Reject) {
	reject := func(reason string) (SubjectCandidate, *Reject) {
		return SubjectCandidate{}, &Reject{Row: row, Key: f.name.Text(), Reason: reason}
	}

	required := []struct {
		field SubjectField
		cell  Cell
	}{
		{FieldGroup, f.group},
		{FieldCategory, f.category},
		{FieldForm, f.form},
		{FieldCredits, f.credits},
		{FieldRegistrar, f.registrar},
		{FieldPIN, f.pin},
	}
	for _, r := range required {
		if r.cell.Blank() {
			return reject("missing " + r.field.String())
		}
	}

	categoryOf, formOf := n.layout.Category, n.layout.Form
	if f.codes {
		categoryOf, formOf = n.layout.CategoryCode, n.layout.FormCode
	}
	category, ok := categoryOf(f.category.Text())
	if !ok {
		return reject(fmt.Sprintf("unknown category %q", f.category.Text()))
	}
	form, ok := formOf(f.form.Text())
	if !ok {
		return reject(fmt.Sprintf("unknown form %q", f.form.Text()))
	}
	credits, err := f.credits.Int()
	if err != nil {
		return reject(fmt.Sprintf("invalid credits %q", f.credits.Text()))
	}

	return SubjectCandidate{
		Row:           row,
		Year:          year,
		Name:          f.name.Text(),
		Category:      category,
		Form:          form,
		Credits:       credits,
		GroupYear:     groupYear,
		GroupLabel:    f.group.Text(),
		RegistrarName: f.registrar.Text(),
		Instructors:   f.instructors,
		AccessPIN:     padPIN(f.pin.Text()),
	}, nil
}

func (n *Normalizer) subjectHeaderRow(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		for _, raw := range rows[i] {
			if strings.EqualFold(NewCell(raw).Text(), n.layout.SubjectMarker) {
				return i
			}
		}
	}
	return -1
}

func (n *Normalizer) sheetYear(rows [][]string) int {
	a1 := CellAt(firstRow(rows), 0).Text()
	if match := yearPattern.FindString(a1); match != "" {
		if year, err := strconv.Atoi(match); err == nil {
			return year
		}
	}
	return n.fallbackYear()
}

func firstRow(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func splitInstructors(raw string) []string {
	var names []string
	for _, part := range instructorSeparator.Split(NewCell(raw).Text(), -1) {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// padPIN restores leading zeros that spreadsheets drop from numeric PINs.
func padPIN(pin string) string {
	if len(pin) >= pinLength {
		return pin
	}
	if _, err := strconv.Atoi(pin); err != nil {
		return pin
	}
	return strings.Repeat("0", pinLength-len(pin)) + pin
}

func missing(cells map[string]Cell, order ...string) string {
	for _, name := range order {
		if cells[name].Blank() {
			return "missing " + name
		}
	}
	return ""
}
