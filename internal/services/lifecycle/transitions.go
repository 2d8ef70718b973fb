package lifecycle

import (
	"github.com/ternarybob/fabrica/internal/models"
)

// Transition is one legal directed edge in a department's status graph.
// Encoding transitions as data keeps guards in one place and makes the
// graph exhaustively testable.
type Transition struct {
	From models.ProjectStatus
	To   models.ProjectStatus
}

// transitionTable holds the directed transition set per department.
// StatusOnHold edges are implicit: any status may move to on_hold and back
// to the held status.
var transitionTable = map[models.Department][]Transition{
	models.DepartmentCreative: {
		{models.StatusRequested, models.StatusNarrativeReview},       // narrative generated
		{models.StatusNarrativeReview, models.StatusBrandCollection}, // narrative approved
		{models.StatusNarrativeReview, models.StatusRequested},       // narrative rejected, regenerating
		{models.StatusBrandCollection, models.StatusInProgress},      // build started
		{models.StatusInProgress, models.StatusReview},               // build completed
		{models.StatusReview, models.StatusLive},                     // approved
		{models.StatusReview, models.StatusRevision},                 // changes requested
		{models.StatusRevision, models.StatusInProgress},             // rebuild started
	},
	models.DepartmentStrategy: {
		{models.StatusResearchQueued, models.StatusResearching},      // research claimed
		{models.StatusResearching, models.StatusResearchReview},      // research produced
		{models.StatusResearchReview, models.StatusResearchComplete}, // research approved
		{models.StatusResearchReview, models.StatusResearching},      // research rejected, rerunning
	},
	models.DepartmentIntelligence: {
		{models.StatusTracking, models.StatusAnalyzed},
	},
}

// CanTransition reports whether from -> to is a legal edge for the
// department. Hold edges are legal from and to every department status.
func CanTransition(dept models.Department, from, to models.ProjectStatus) bool {
	if from == to {
		return false
	}
	if to == models.StatusOnHold {
		return models.HasStatus(dept, from)
	}
	if from == models.StatusOnHold {
		return models.HasStatus(dept, to)
	}
	for _, t := range transitionTable[dept] {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Transitions returns a copy of the department's explicit transition set.
func Transitions(dept models.Department) []Transition {
	src := transitionTable[dept]
	out := make([]Transition, len(src))
	copy(out, src)
	return out
}

// reviewStage maps an artifact kind to the project status that gates its
// review, and the statuses a decision moves the project to.
type reviewStage struct {
	ExpectedStatus models.ProjectStatus // project status while the artifact awaits review
	OnApprove      models.ProjectStatus // next stage after approval
	OnReject       models.ProjectStatus // backward stage while regenerating
	RetryJob       models.JobType       // generation job re-enqueued on rejection
}

var reviewStages = map[models.ArtifactKind]reviewStage{
	models.ArtifactNarrative: {
		ExpectedStatus: models.StatusNarrativeReview,
		OnApprove:      models.StatusBrandCollection,
		OnReject:       models.StatusRequested,
		RetryJob:       models.JobTypeNarrative,
	},
	models.ArtifactResearch: {
		ExpectedStatus: models.StatusResearchReview,
		OnApprove:      models.StatusResearchComplete,
		OnReject:       models.StatusResearching,
		RetryJob:       models.JobTypeResearch,
	},
}
