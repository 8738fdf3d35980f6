package models

import "fmt"

// SubjectCategory is S (specialized) or O (other).
type SubjectCategory string

const (
	CategorySpecialized SubjectCategory = "S"
	CategoryOther       SubjectCategory = "O"
)

// ClassType is the teaching form of a subject.
type ClassType string

const (
	ClassLecture  ClassType = "Lecture"
	ClassExercise ClassType = "Exercise"
)

// Subject represents a course offered to one group in one year.
type Subject struct {
	ID          string          `db:"id" json:"id"`
	Year        int             `db:"year" json:"year"`
	Name        string          `db:"name" json:"name"`
	Category    SubjectCategory `db:"category" json:"category"`
	ClassType   ClassType       `db:"class_type" json:"class_type"`
	Credits     int             `db:"credits" json:"credits"`
	GroupID     string          `db:"group_id" json:"group_id"`
	RegistrarID *string         `db:"registrar_id" json:"registrar_id,omitempty"`
	AccessPIN   string          `db:"access_pin" json:"-"`
}

// SubjectKey is the natural key of a subject.
type SubjectKey struct {
	Year    int    `db:"year"`
	Name    string `db:"name"`
	GroupID string `db:"group_id"`
}

func (k SubjectKey) String() string {
	return fmt.Sprintf("%d-%s-%s", k.Year, k.Name, k.GroupID)
}

// SubjectFilter narrows a subject listing. TeacherID matches the registrar
// and co-instructors.
type SubjectFilter struct {
	Year      int
	GroupID   string
	TeacherID string
	Search    string
}
