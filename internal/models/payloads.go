package models

import (
	"encoding/json"
	"fmt"
)

// Job payloads are opaque to the queue core; these typed shapes exist for
// the boundaries that produce and decode them (the lifecycle state machine
// on enqueue, the worker pool on claim).

// GenerationPayload parameterizes narrative and research jobs.
type GenerationPayload struct {
	// RevisionNotes carries reviewer feedback into the next generation
	// attempt after a rejection.
	RevisionNotes string `json:"revision_notes,omitempty"`
	// PreviousVersion is the artifact version the revision supersedes.
	PreviousVersion int `json:"previous_version,omitempty"`
	// SourceContext is the promoted upstream summary, when present.
	SourceContext string `json:"source_context,omitempty"`
}

// BuildPayload parameterizes build jobs.
type BuildPayload struct {
	SkipAssets bool `json:"skip_assets,omitempty"`
	// Revision marks a rebuild triggered from the revision stage.
	Revision bool `json:"revision,omitempty"`
}

// GenerationResult is what a worker reports when a narrative or research
// job completes.
type GenerationResult struct {
	Content      string  `json:"content"`
	QualityScore float64 `json:"quality_score,omitempty"`
}

// MarshalPayload encodes a typed payload for storage on a job row.
func MarshalPayload(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// DecodeGenerationResult decodes a worker completion result. An empty result
// is valid for job types that produce no artifact.
func DecodeGenerationResult(data json.RawMessage) (*GenerationResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed generation result: %v", ErrValidationFailed, err)
	}
	return &result, nil
}

// DecodeGenerationPayload decodes a generation job payload at the worker
// boundary.
func DecodeGenerationPayload(data json.RawMessage) (*GenerationPayload, error) {
	if len(data) == 0 {
		return &GenerationPayload{}, nil
	}
	var payload GenerationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed generation payload: %v", ErrValidationFailed, err)
	}
	return &payload, nil
}
