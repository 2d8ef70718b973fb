package common

import (
	"github.com/google/uuid"
)

// Typed id prefixes keep log lines and API payloads self-describing.

// NewProjectID generates a unique project ID with the "prj_" prefix
func NewProjectID() string {
	return "prj_" + uuid.New().String()
}

// NewJobID generates a unique pipeline job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewArtifactID generates a unique artifact ID with the "art_" prefix
func NewArtifactID() string {
	return "art_" + uuid.New().String()
}

// NewReferenceID generates a unique cross-department reference ID with the "ref_" prefix
func NewReferenceID() string {
	return "ref_" + uuid.New().String()
}

// NewMembershipID generates a unique membership ID with the "mem_" prefix
func NewMembershipID() string {
	return "mem_" + uuid.New().String()
}

// NewNotificationID generates a unique notification ID with the "ntf_" prefix
func NewNotificationID() string {
	return "ntf_" + uuid.New().String()
}

// NewTrendID generates a unique trend cluster ID with the "trd_" prefix
func NewTrendID() string {
	return "trd_" + uuid.New().String()
}
