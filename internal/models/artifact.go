package models

import "time"

// ArtifactKind distinguishes the reviewable artifact types a project carries.
type ArtifactKind string

const (
	ArtifactNarrative ArtifactKind = "narrative"
	ArtifactResearch  ArtifactKind = "research"
)

// ArtifactStatus is the review state of a single artifact version.
type ArtifactStatus string

const (
	// ArtifactPendingReview is the entry state for narrative versions.
	ArtifactPendingReview ArtifactStatus = "pending_review"
	// ArtifactDraft is the entry state for research versions.
	ArtifactDraft      ArtifactStatus = "draft"
	ArtifactApproved   ArtifactStatus = "approved"
	ArtifactRejected   ArtifactStatus = "rejected"
	ArtifactSuperseded ArtifactStatus = "superseded"
)

// Artifact is one version of a reviewable artifact (narrative or research
// row). Versions are monotonic per project and kind; a version leaves its
// pending state exactly once, enforced by a conditional status update in
// storage. Superseded versions are retained for audit.
type Artifact struct {
	ID        string         `json:"id" badgerhold:"key"`
	ProjectID string         `json:"project_id" badgerholdIndex:"ProjectID"`
	Kind      ArtifactKind   `json:"kind"`
	Version   int            `json:"version"`
	Status    ArtifactStatus `json:"status"`
	Content   string         `json:"content,omitempty"`
	// QualityScore is set by the generation worker (0..1). Forwarded as part
	// of the upstream context on promotion.
	QualityScore  float64    `json:"quality_score,omitempty"`
	RevisionNotes string     `json:"revision_notes,omitempty"`
	ReviewedBy    string     `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PendingStatus returns the entry review state for an artifact kind.
func PendingStatus(kind ArtifactKind) ArtifactStatus {
	if kind == ArtifactResearch {
		return ArtifactDraft
	}
	return ArtifactPendingReview
}

// IsPending reports whether the artifact is still awaiting a decision.
func (a *Artifact) IsPending() bool {
	return a.Status == ArtifactPendingReview || a.Status == ArtifactDraft
}
