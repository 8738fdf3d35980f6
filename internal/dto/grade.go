package dto

import (
	"github.com/noah-isme/gradebook-api/internal/importer"
	"github.com/noah-isme/gradebook-api/internal/models"
)

// GradeEdit is one student's scores as typed in the grade sheet.
type GradeEdit struct {
	StudentID    string            `json:"studentId"`
	EnrollmentID string            `json:"enrollmentId,omitempty"`
	FirstScore   importer.RawValue `json:"firstScore,omitempty"`
	SecondScore  importer.RawValue `json:"secondScore,omitempty"`
	Absences     importer.RawValue `json:"absences,omitempty"`
}

// GradeUpsertRequest is the body of PUT /subjects/:id/grades. An empty edit
// list is a successful no-op.
type GradeUpsertRequest struct {
	Edits []GradeEdit `json:"edits" validate:"omitempty,dive"`
}

// GradeError reports why one student's edit was not saved.
type GradeError struct {
	StudentID string `json:"studentId"`
	Message   string `json:"message"`
}

// SavedGrade pairs a student with the enrollment that now holds the scores.
type SavedGrade struct {
	StudentID    string `json:"studentId"`
	EnrollmentID string `json:"enrollmentId"`
	Created      bool   `json:"created"`
}

// GradeUpsertResult aggregates one upsert call.
type GradeUpsertResult struct {
	Success    bool         `json:"success"`
	SavedCount int          `json:"savedCount"`
	ErrorCount int          `json:"errorCount"`
	Errors     []GradeError `json:"errors"`
	Saved      []SavedGrade `json:"saved"`
}

// GradeSheetResponse lists a subject's students and their grades.
type GradeSheetResponse struct {
	Subject models.Subject         `json:"subject"`
	Rows    []models.GradeSheetRow `json:"rows"`
}
