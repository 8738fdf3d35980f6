package models

import (
	"fmt"
	"time"
)

// ImportKind names one of the three importable entity kinds.
type ImportKind string

const (
	ImportKindTeachers ImportKind = "teachers"
	ImportKindStudents ImportKind = "students"
	ImportKindSubjects ImportKind = "subjects"
)

// ImportOrder is the dependency order in which sheets are processed.
var ImportOrder = []ImportKind{ImportKindTeachers, ImportKindStudents, ImportKindSubjects}

// OutcomeCode classifies a row outcome.
type OutcomeCode string

const (
	OutcomeCreated                 OutcomeCode = "CREATED"
	OutcomeCreatedWithoutRegistrar OutcomeCode = "CREATED_WITHOUT_REGISTRAR"
	OutcomeInvalidRow              OutcomeCode = "INVALID_ROW"
	OutcomeGroupNotFound           OutcomeCode = "GROUP_NOT_FOUND"
	OutcomeDuplicateInFile         OutcomeCode = "DUPLICATE_IN_FILE"
	OutcomeAlreadyExists           OutcomeCode = "ALREADY_EXISTS"
	OutcomeStorageError            OutcomeCode = "STORAGE_ERROR"
)

// Success reports whether the code denotes a written row.
func (c OutcomeCode) Success() bool {
	return c == OutcomeCreated || c == OutcomeCreatedWithoutRegistrar
}

// RowOutcome is the per-row result of an import.
type RowOutcome struct {
	Row     int         `json:"row"`
	Key     string      `json:"key"`
	Success bool        `json:"success"`
	Code    OutcomeCode `json:"code"`
	Message string      `json:"message"`
}

// KindResult aggregates the outcomes for one entity kind.
type KindResult struct {
	Kind      ImportKind   `json:"kind"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Message   string       `json:"message"`
	Results   []RowOutcome `json:"results"`
}

// NewKindResult starts an empty result for kind.
func NewKindResult(kind ImportKind) *KindResult {
	return &KindResult{Kind: kind, Results: []RowOutcome{}}
}

// Add appends an outcome and updates the counters.
func (r *KindResult) Add(outcome RowOutcome) {
	outcome.Success = outcome.Code.Success()
	if outcome.Success {
		r.Succeeded++
	} else {
		r.Failed++
	}
	r.Results = append(r.Results, outcome)
}

// Summarize fills Message from the counters.
func (r *KindResult) Summarize() {
	r.Message = fmt.Sprintf("%s: %d succeeded, %d failed", r.Kind, r.Succeeded, r.Failed)
}

// WorkbookResult aggregates a whole workbook import. Kinds whose sheet was
// absent are nil.
type WorkbookResult struct {
	Teachers   *KindResult `json:"teachers,omitempty"`
	Students   *KindResult `json:"students,omitempty"`
	Subjects   *KindResult `json:"subjects,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Kinds returns the non-nil results in processing order.
func (r *WorkbookResult) Kinds() []*KindResult {
	var out []*KindResult
	for _, k := range []*KindResult{r.Teachers, r.Students, r.Subjects} {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}

// ImportStatus is the lifecycle state of a stored import report.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportReport is the stored record of one workbook import.
type ImportReport struct {
	ID          string          `json:"id"`
	Status      ImportStatus    `json:"status"`
	Filename    string          `json:"filename"`
	RequestedBy string          `json:"requested_by"`
	Error       string          `json:"error,omitempty"`
	Result      *WorkbookResult `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
