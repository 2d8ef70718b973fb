package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fabrica/internal/interfaces"
	"github.com/ternarybob/fabrica/internal/models"
	"github.com/ternarybob/fabrica/internal/services/lifecycle"
	"github.com/ternarybob/fabrica/internal/services/pipeline"
)

// ProjectHandler handles project lifecycle API requests
type ProjectHandler struct {
	lifecycle *lifecycle.Service
	pipeline  *pipeline.Service
	logger    arbor.ILogger
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(lifecycleService *lifecycle.Service, pipelineService *pipeline.Service, logger arbor.ILogger) *ProjectHandler {
	return &ProjectHandler{
		lifecycle: lifecycleService,
		pipeline:  pipelineService,
		logger:    logger,
	}
}

// CreateProjectRequest is the POST /api/projects body.
type CreateProjectRequest struct {
	Department string `json:"department" validate:"required,oneof=intelligence strategy creative"`
	Name       string `json:"name" validate:"required,max=200"`
	Company    string `json:"company" validate:"max=200"`
	Autonomy   string `json:"autonomy" validate:"omitempty,oneof=manual full_auto supervised"`
	Notes      string `json:"notes" validate:"max=10000"`
}

// CreateHandler creates a project and seeds its pipeline
// POST /api/projects
func (h *ProjectHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	actor := Actor(r)
	if actor == "" {
		WriteError(w, http.StatusBadRequest, "actor identity is required")
		return
	}

	var req CreateProjectRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	project, err := h.lifecycle.CreateProject(r.Context(), &lifecycle.CreateProjectRequest{
		Department: models.Department(req.Department),
		Name:       req.Name,
		Company:    req.Company,
		Autonomy:   models.AutonomyLevel(req.Autonomy),
		Notes:      req.Notes,
		Actor:      actor,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create project")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, project)
}

// ListHandler returns projects matching the filter
// GET /api/projects?department=creative&status=review&limit=50&offset=0
func (h *ProjectHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	projects, err := h.lifecycle.ListProjects(r.Context(), &interfaces.ProjectListOptions{
		Department: r.URL.Query().Get("department"),
		Status:     r.URL.Query().Get("status"),
		Limit:      QueryInt(r, "limit", 50),
		Offset:     QueryInt(r, "offset", 0),
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list projects")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// GetHandler returns a single project
// GET /api/projects/{id}
func (h *ProjectHandler) GetHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	project, err := h.lifecycle.GetProject(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// DeleteHandler hard-deletes a project with cascade
// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := h.lifecycle.DeleteProject(r.Context(), projectID, Actor(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "project deleted")
}

// ArtifactsHandler returns a project's artifact versions
// GET /api/projects/{id}/artifacts
func (h *ProjectHandler) ArtifactsHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	artifacts, err := h.lifecycle.ListArtifacts(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"artifacts": artifacts})
}

// JobsHandler returns a project's pipeline jobs, newest first
// GET /api/projects/{id}/jobs
func (h *ProjectHandler) JobsHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	jobs, err := h.pipeline.ListByProject(r.Context(), projectID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// StartBuildRequest is the POST /api/projects/{id}/build body.
type StartBuildRequest struct {
	SkipAssets bool `json:"skip_assets"`
}

// BuildHandler starts the build stage
// POST /api/projects/{id}/build
func (h *ProjectHandler) BuildHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	var req StartBuildRequest
	if r.ContentLength > 0 && !DecodeAndValidate(w, r, &req) {
		return
	}

	if err := h.lifecycle.StartBuild(r.Context(), projectID, Actor(r), req.SkipAssets); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "build started")
}

// ApprovalRequest is the POST /api/projects/{id}/approval body.
type ApprovalRequest struct {
	Action string `json:"action" validate:"required,oneof=approve request_changes escalate"`
	Notes  string `json:"notes" validate:"max=10000"`
}

// ApprovalHandler applies the client verdict on a built deliverable
// POST /api/projects/{id}/approval
func (h *ProjectHandler) ApprovalHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	var req ApprovalRequest
	if !DecodeAndValidate(w, r, &req) {
		return
	}

	err := h.lifecycle.ApplyApproval(r.Context(), projectID, lifecycle.ApprovalAction(req.Action), Actor(r), req.Notes)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "approval applied")
}

// ResumeRevisionHandler relaunches the build after requested changes
// POST /api/projects/{id}/resume-revision
func (h *ProjectHandler) ResumeRevisionHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := h.lifecycle.ResumeRevision(r.Context(), projectID, Actor(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "revision build started")
}

// HoldHandler parks a project
// POST /api/projects/{id}/hold
func (h *ProjectHandler) HoldHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := h.lifecycle.Hold(r.Context(), projectID, Actor(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "project on hold")
}

// ResumeHandler restores a held project
// POST /api/projects/{id}/resume
func (h *ProjectHandler) ResumeHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	if err := h.lifecycle.Resume(r.Context(), projectID, Actor(r)); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "project resumed")
}

// AddMemberRequest is the POST /api/projects/{id}/members body.
type AddMemberRequest struct {
	UserID string `json:"user_id" validate:"required,max=200"`
	Role   string `json:"role" validate:"required,oneof=owner editor viewer"`
}

// MembersHandler lists or adds project members
// GET|POST /api/projects/{id}/members
func (h *ProjectHandler) MembersHandler(w http.ResponseWriter, r *http.Request, projectID string) {
	switch r.Method {
	case http.MethodGet:
		members, err := h.lifecycle.ListMembers(r.Context(), projectID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"members": members})

	case http.MethodPost:
		var req AddMemberRequest
		if !DecodeAndValidate(w, r, &req) {
			return
		}
		membership, err := h.lifecycle.AddMember(r.Context(), projectID, Actor(r), req.UserID, models.Role(req.Role))
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, membership)

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// RemoveMemberHandler revokes a membership
// DELETE /api/projects/{id}/members/{userID}
func (h *ProjectHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request, projectID, userID string) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	if err := h.lifecycle.RemoveMember(r.Context(), projectID, Actor(r), userID); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteSuccess(w, "member removed")
}

// PathSegment extracts the nth path segment (0-based) from a trimmed URL
// path, or "" when absent.
func PathSegment(path string, n int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if n < len(parts) {
		return parts[n]
	}
	return ""
}
