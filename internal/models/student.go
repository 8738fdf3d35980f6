package models

// Student represents a student stored in the database.
type Student struct {
	ID          string  `db:"id" json:"id"`
	StudentCode string  `db:"student_code" json:"student_code"`
	Name        string  `db:"name" json:"name"`
	GroupID     *string `db:"group_id" json:"group_id,omitempty"`
}
