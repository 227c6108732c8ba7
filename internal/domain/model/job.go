package model

import (
	"strconv"
	"time"
)

// JobKind names a unit of background work.
type JobKind string

const (
	JobAwardPass  JobKind = "award_pass"
	JobDecaySweep JobKind = "decay_sweep"
)

// Job is processed by the serialized award writer.
type Job struct {
	Kind           JobKind
	ProfessionalID int64
	RequestedAt    time.Time
}

// Key identifies the job's kind and professional.
func (j Job) Key() string {
	return string(j.Kind) + ":" + strconv.FormatInt(j.ProfessionalID, 10)
}
