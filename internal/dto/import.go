package dto

import (
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
)

// TeacherImportRow is one row of POST /imports/teachers.
type TeacherImportRow struct {
	Username    importer.RawValue `json:"username"`
	Password    importer.RawValue `json:"password"`
	DisplayName importer.RawValue `json:"displayName"`
}

// StudentImportRow is one row of POST /imports/students.
type StudentImportRow struct {
	StudentCode importer.RawValue `json:"studentCode"`
	DisplayName importer.RawValue `json:"displayName"`
	Year        int               `json:"year,omitempty" validate:"omitempty,min=1900,max=2999"`
	GroupLabel  importer.RawValue `json:"groupLabel,omitempty"`
}

// SubjectImportRow is one row of POST /imports/subjects.
type SubjectImportRow struct {
	Year            int               `json:"year,omitempty" validate:"omitempty,min=1900,max=2999"`
	Name            importer.RawValue `json:"name"`
	Category        importer.RawValue `json:"category"`
	Form            importer.RawValue `json:"form"`
	Credits         importer.RawValue `json:"credits"`
	GroupYear       int               `json:"groupYear,omitempty" validate:"omitempty,min=1900,max=2999"`
	GroupLabel      importer.RawValue `json:"groupLabel"`
	RegistrarName   importer.RawValue `json:"registrarName"`
	InstructorNames []string          `json:"instructorNames,omitempty"`
	AccessPin       importer.RawValue `json:"accessPin"`
}

// TeacherImportRequest wraps the rows so validation can dive into them.
type TeacherImportRequest struct {
	Rows []TeacherImportRow `json:"rows" validate:"required,min=1,dive"`
}

type StudentImportRequest struct {
	Rows []StudentImportRow `json:"rows" validate:"required,min=1,dive"`
}

type SubjectImportRequest struct {
	Rows []SubjectImportRow `json:"rows" validate:"required,min=1,dive"`
}

// WorkbookImportOptions carries the form fields sent with a workbook upload.
type WorkbookImportOptions struct {
	Filename     string
	StudentYear  int    `validate:"omitempty,min=1900,max=2999"`
	StudentGroup string `validate:"max=64"`
	Async        bool
	RequestedBy  string
}

// ImportJobResponse is returned when a workbook import is accepted.
type ImportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ImportStatus `json:"status"`
}

// TeacherRecords converts API rows to normaliser records.
func (r TeacherImportRequest) Records() []importer.TeacherRecord {
	out := make([]importer.TeacherRecord, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, importer.TeacherRecord{Username: row.Username, Password: row.Password, Name: row.DisplayName})
	}
	return out
}

func (r StudentImportRequest) Records() []importer.StudentRecord {
	out := make([]importer.StudentRecord, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, importer.StudentRecord{Code: row.StudentCode, Name: row.DisplayName, Year: row.Year, GroupLabel: row.GroupLabel})
	}
	return out
}

func (r SubjectImportRequest) Records() []importer.SubjectRecord {
	out := make([]importer.SubjectRecord, 0, len(r.Rows))
	for _, row := range r.Rows {
		out = append(out, importer.SubjectRecord{
			Year:          row.Year,
			Name:          row.Name,
			Category:      row.Category,
			Form:          row.Form,
			Credits:       row.Credits,
			GroupYear:     row.GroupYear,
			GroupLabel:    row.GroupLabel,
			RegistrarName: row.RegistrarName,
			Instructors:   row.InstructorNames,
			AccessPIN:     row.AccessPin,
		})
	}
	return out
}
