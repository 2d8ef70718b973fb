package models

import (
	"encoding/json"
	"time"
)

// ReferenceRelationship classifies a cross-department edge.
type ReferenceRelationship string

const (
	RelationshipPromotedTo ReferenceRelationship = "promoted_to"
	RelationshipReferences ReferenceRelationship = "references"
	RelationshipTracking   ReferenceRelationship = "tracking"
)

// SourceType identifies what kind of record a reference endpoint names.
type SourceType string

const (
	SourceTypeProject SourceType = "project"
	SourceTypeTrend   SourceType = "trend"
)

// CrossDeptReference is an append-only provenance edge between departments.
// No transition logic attaches to it; it is consumed for display and for
// re-deriving upstream context. The metadata carries the untruncated
// forwarded context, so a promoted project's source_context is always a
// prefix of what is stored here.
type CrossDeptReference struct {
	ID               string                `json:"id" badgerhold:"key"`
	SourceDepartment Department            `json:"source_department"`
	SourceType       SourceType            `json:"source_type"`
	SourceID         string                `json:"source_id" badgerholdIndex:"SourceID"`
	TargetDepartment Department            `json:"target_department"`
	TargetType       SourceType            `json:"target_type"`
	TargetID         string                `json:"target_id" badgerholdIndex:"TargetID"`
	Relationship     ReferenceRelationship `json:"relationship"`
	Metadata         json.RawMessage       `json:"metadata,omitempty"`
	Actor            string                `json:"actor"`
	CreatedAt        time.Time             `json:"created_at"`
}

// PromotionMetadata is the metadata shape recorded on a promoted_to edge.
type PromotionMetadata struct {
	ForwardedContext string  `json:"forwarded_context"`
	ContextTokens    int     `json:"context_tokens"`
	QualityScore     float64 `json:"quality_score,omitempty"`
	Actor            string  `json:"actor"`
}
