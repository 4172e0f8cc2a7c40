package models

import "time"

type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
	JobPending JobStatus = "pending"
)

// VerificationJob is the outcome the verification service reported for one
// verification id.
type VerificationJob struct {
	VerificationID string
	CheckToken     string
	Status         JobStatus
	Message        string
}

// Quota is the last known verification-service balance.
type Quota struct {
	Total          int       `json:"total"`
	RemainingQuota int       `json:"remaining_quota"`
	Cost           int       `json:"cost"`
	Used           int       `json:"used"`
	Capacity       int       `json:"capacity"`
	UpdatedAt      time.Time `json:"updated_at"`
}
