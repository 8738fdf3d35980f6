package models

import "time"

// Enrollment links a student to a subject and carries the grade data.
type Enrollment struct {
	ID                  string    `db:"id" json:"id"`
	StudentID           string    `db:"student_id" json:"student_id"`
	SubjectID           string    `db:"subject_id" json:"subject_id"`
	FirstSemesterScore  *int      `db:"first_semester_score" json:"first_semester_score"`
	SecondSemesterScore *int      `db:"second_semester_score" json:"second_semester_score"`
	Absences            int       `db:"absences" json:"absences"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// GradeSheetRow is one student of the subject's group with the enrollment, if any.
type GradeSheetRow struct {
	StudentID           string  `db:"student_id" json:"student_id"`
	StudentCode         string  `db:"student_code" json:"student_code"`
	StudentName         string  `db:"student_name" json:"student_name"`
	EnrollmentID        *string `db:"enrollment_id" json:"enrollment_id"`
	FirstSemesterScore  *int    `db:"first_semester_score" json:"first_semester_score"`
	SecondSemesterScore *int    `db:"second_semester_score" json:"second_semester_score"`
	Absences            *int    `db:"absences" json:"absences"`
}
