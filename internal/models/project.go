package models

import (
	"fmt"
	"time"
)

// Department identifies the owning department of a project.
type Department string

const (
	DepartmentIntelligence Department = "intelligence"
	DepartmentStrategy     Department = "strategy"
	DepartmentCreative     Department = "creative"
)

// Valid reports whether the department is one of the known departments.
func (d Department) Valid() bool {
	switch d {
	case DepartmentIntelligence, DepartmentStrategy, DepartmentCreative:
		return true
	}
	return false
}

// AutonomyLevel controls how much of the pipeline runs without human release.
type AutonomyLevel string

const (
	AutonomyManual     AutonomyLevel = "manual"
	AutonomyFullAuto   AutonomyLevel = "full_auto"
	AutonomySupervised AutonomyLevel = "supervised"
)

// ProjectStatus is a department-scoped lifecycle status.
type ProjectStatus string

const (
	// Creative pipeline statuses
	StatusRequested       ProjectStatus = "requested"
	StatusNarrativeReview ProjectStatus = "narrative_review"
	StatusBrandCollection ProjectStatus = "brand_collection"
	StatusInProgress      ProjectStatus = "in_progress"
	StatusReview          ProjectStatus = "review"
	StatusLive            ProjectStatus = "live"
	StatusRevision        ProjectStatus = "revision"

	// Strategy pipeline statuses
	StatusResearchQueued   ProjectStatus = "research_queued"
	StatusResearching      ProjectStatus = "researching"
	StatusResearchReview   ProjectStatus = "research_review"
	StatusResearchComplete ProjectStatus = "research_complete"

	// Intelligence pipeline statuses
	StatusTracking ProjectStatus = "tracking"
	StatusAnalyzed ProjectStatus = "analyzed"

	// StatusOnHold is reachable from any status in any department and is
	// excluded from timelines. The prior status is kept in HeldStatus so a
	// resume restores it.
	StatusOnHold ProjectStatus = "on_hold"
)

// Project is a client engagement tracked through a department pipeline.
// Status is only mutated through guarded lifecycle transitions; the held
// status field is populated only while the project is on hold.
type Project struct {
	ID            string        `json:"id" badgerhold:"key"`
	Department    Department    `json:"department"`
	Status        ProjectStatus `json:"status" badgerholdIndex:"Status"`
	Name          string        `json:"name"`
	Company       string        `json:"company"`
	Autonomy      AutonomyLevel `json:"autonomy"`
	Notes         string        `json:"notes,omitempty"`
	// SourceContext is the token-budgeted upstream summary written by a
	// promotion. Denormalized for cheap repeated reads by the pipeline; the
	// untruncated copy lives on the promotion's reference row.
	SourceContext string        `json:"source_context,omitempty"`
	HeldStatus    ProjectStatus `json:"held_status,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// InitialStatus returns the entry status for a department's pipeline.
func InitialStatus(dept Department) (ProjectStatus, error) {
	switch dept {
	case DepartmentCreative:
		return StatusRequested, nil
	case DepartmentStrategy:
		return StatusResearchQueued, nil
	case DepartmentIntelligence:
		return StatusTracking, nil
	}
	return "", fmt.Errorf("%w: unknown department %q", ErrValidationFailed, dept)
}

// StatusesFor returns the legal status set for a department. StatusOnHold is
// legal everywhere and is included in each set.
func StatusesFor(dept Department) []ProjectStatus {
	switch dept {
	case DepartmentCreative:
		return []ProjectStatus{
			StatusRequested, StatusNarrativeReview, StatusBrandCollection,
			StatusInProgress, StatusReview, StatusLive, StatusRevision,
			StatusOnHold,
		}
	case DepartmentStrategy:
		return []ProjectStatus{
			StatusResearchQueued, StatusResearching, StatusResearchReview,
			StatusResearchComplete, StatusOnHold,
		}
	case DepartmentIntelligence:
		return []ProjectStatus{StatusTracking, StatusAnalyzed, StatusOnHold}
	}
	return nil
}

// HasStatus reports whether status is legal for the department.
func HasStatus(dept Department, status ProjectStatus) bool {
	for _, s := range StatusesFor(dept) {
		if s == status {
			return true
		}
	}
	return false
}

// IsOnHold reports whether the project is currently held.
func (p *Project) IsOnHold() bool {
	return p.Status == StatusOnHold
}
