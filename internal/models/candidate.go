package models

import (
	"github.com/google/uuid"
)

// Candidate is the person taking exams. Authentication happens upstream;
// this row carries only what grading and artifact generation need.
type Candidate struct {
	Name  string
	Email string
	Model
	// Whether a passing result should also produce a certificate artifact
	CertificateOption bool
}

func (Candidate) TableName() string {
	return "candidates"
}

func (c Candidate) GetID() uuid.UUID {
	return c.ID
}
