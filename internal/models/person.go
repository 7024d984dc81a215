// Package models defines core data structures for persons, search queries, and search results.
package models

import "time"

// Person is a row of the persons table, the record type kept in the full-text index.
type Person struct {
	ID                int64     `json:"id"`
	IDEndp            string    `json:"_id_endp"`
	PrefLabel         string    `json:"pref_label"`
	Forename          string    `json:"forename"`
	ForenameAltLabels string    `json:"forename_alt_labels"`
	Surname           string    `json:"surname"`
	SurnameAltLabels  string    `json:"surname_alt_labels"`
	FirstMentionDate  string    `json:"first_mention_date,omitempty"`
	LastMentionDate   string    `json:"last_mention_date,omitempty"`
	DeathDate         string    `json:"death_date,omitempty"`
	IsCanon           bool      `json:"is_canon"`
	Comment           string    `json:"comment,omitempty"`
	Bibliography      string    `json:"bibliography,omitempty"`
	LastEditor        string    `json:"_last_editor,omitempty"`
	CreatedAt         time.Time `json:"_created_at"`
	UpdatedAt         time.Time `json:"_updated_at"`
}

// PersonInput is the input for creating or updating a person.
type PersonInput struct {
	PrefLabel         string `json:"pref_label"`
	Forename          string `json:"forename,omitempty"`
	ForenameAltLabels string `json:"forename_alt_labels"`
	Surname           string `json:"surname,omitempty"`
	SurnameAltLabels  string `json:"surname_alt_labels"`
	FirstMentionDate  string `json:"first_mention_date,omitempty"`
	LastMentionDate   string `json:"last_mention_date,omitempty"`
	DeathDate         string `json:"death_date,omitempty"`
	IsCanon           bool   `json:"is_canon"`
	Comment           string `json:"comment,omitempty"`
	Bibliography      string `json:"bibliography,omitempty"`
	LastEditor        string `json:"_last_editor,omitempty"`
}

// Validate reports the first missing required field.
func (in *PersonInput) Validate() error {
	if in.PrefLabel == "" {
		return &ValidationError{Field: "pref_label"}
	}
	return nil
}

// Apply copies the input onto p, leaving identifiers and timestamps untouched.
func (in *PersonInput) Apply(p *Person) {
	p.PrefLabel = in.PrefLabel
	p.Forename = in.Forename
	p.ForenameAltLabels = in.ForenameAltLabels
	p.Surname = in.Surname
	p.SurnameAltLabels = in.SurnameAltLabels
	p.FirstMentionDate = in.FirstMentionDate
	p.LastMentionDate = in.LastMentionDate
	p.DeathDate = in.DeathDate
	p.IsCanon = in.IsCanon
	p.Comment = in.Comment
	p.Bibliography = in.Bibliography
	p.LastEditor = in.LastEditor
}

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return e.Field + " is required"
}
