package models

import "fmt"

// Group is a class cohort identified by (year, name).
type Group struct {
	ID   string `db:"id" json:"id"`
	Year int    `db:"year" json:"year"`
	Name string `db:"name" json:"name"`
}

// GroupKey is the natural key of a group.
type GroupKey struct {
	Year int
	Name string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%d-%s", k.Year, k.Name)
}
