package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/fabrica/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Projects (lifecycle state machine)
	mux.HandleFunc("/api/projects", s.handleProjectsRoute) // GET (list), POST (create)
	mux.HandleFunc("/api/projects/", s.handleProjectRoutes)

	// API routes - Artifacts (review decisions)
	mux.HandleFunc("/api/artifacts/", s.handleArtifactRoutes)

	// API routes - Jobs (pipeline queue)
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - Worker pool protocol
	mux.HandleFunc("/api/worker/claim", s.app.JobHandler.ClaimHandler)
	mux.HandleFunc("/api/worker/jobs/", s.handleWorkerJobRoutes)

	// API routes - Promotions (cross-department)
	mux.HandleFunc("/api/promotions", s.handlePromotionsRoute)

	// API routes - Trends (intelligence)
	mux.HandleFunc("/api/trends", s.handleTrendsRoute)
	mux.HandleFunc("/api/trends/", s.handleTrendRoutes)

	// API routes - Notifications
	mux.HandleFunc("/api/notifications", s.app.NotificationHandler.ListHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.StatusHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

func (s *Server) handleProjectsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.ProjectHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.ProjectHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleProjectRoutes dispatches /api/projects/{id} and its subresources
func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	projectID := handlers.PathSegment(r.URL.Path, 2)
	if projectID == "" {
		http.Error(w, "Project ID is required", http.StatusBadRequest)
		return
	}

	sub := handlers.PathSegment(r.URL.Path, 3)
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.app.ProjectHandler.GetHandler(w, r, projectID)
		case http.MethodDelete:
			s.app.ProjectHandler.DeleteHandler(w, r, projectID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}

	case "artifacts":
		if r.Method == http.MethodGet {
			s.app.ProjectHandler.ArtifactsHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "jobs":
		if r.Method == http.MethodGet {
			s.app.ProjectHandler.JobsHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "provenance":
		if r.Method == http.MethodGet {
			s.app.PromotionHandler.ProvenanceHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "build":
		if r.Method == http.MethodPost {
			s.app.ProjectHandler.BuildHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "approval":
		if r.Method == http.MethodPost {
			s.app.ProjectHandler.ApprovalHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "resume-revision":
		if r.Method == http.MethodPost {
			s.app.ProjectHandler.ResumeRevisionHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "hold":
		if r.Method == http.MethodPost {
			s.app.ProjectHandler.HoldHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "resume":
		if r.Method == http.MethodPost {
			s.app.ProjectHandler.ResumeHandler(w, r, projectID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "members":
		if userID := handlers.PathSegment(r.URL.Path, 4); userID != "" {
			s.app.ProjectHandler.RemoveMemberHandler(w, r, projectID, userID)
			return
		}
		s.app.ProjectHandler.MembersHandler(w, r, projectID)

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleArtifactRoutes dispatches /api/artifacts/{id} and /decision
func (s *Server) handleArtifactRoutes(w http.ResponseWriter, r *http.Request) {
	artifactID := handlers.PathSegment(r.URL.Path, 2)
	if artifactID == "" {
		http.Error(w, "Artifact ID is required", http.StatusBadRequest)
		return
	}

	switch handlers.PathSegment(r.URL.Path, 3) {
	case "":
		if r.Method == http.MethodGet {
			s.app.ArtifactHandler.GetHandler(w, r, artifactID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	case "decision":
		if r.Method == http.MethodPost {
			s.app.ArtifactHandler.DecisionHandler(w, r, artifactID)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleJobRoutes dispatches /api/jobs/{id} and its subresources
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID := handlers.PathSegment(r.URL.Path, 2)
	if jobID == "" {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	sub := handlers.PathSegment(r.URL.Path, 3)
	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.app.JobHandler.GetHandler(w, r, jobID)
	case sub == "position" && r.Method == http.MethodGet:
		s.app.JobHandler.PositionHandler(w, r, jobID)
	case sub == "retry" && r.Method == http.MethodPost:
		s.app.JobHandler.RetryHandler(w, r, jobID)
	case sub == "escalate" && r.Method == http.MethodPost:
		s.app.JobHandler.EscalateHandler(w, r, jobID)
	case sub == "release" && r.Method == http.MethodPost:
		s.app.JobHandler.ReleaseHandler(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleWorkerJobRoutes dispatches /api/worker/jobs/{id}/{report}
func (s *Server) handleWorkerJobRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := handlers.PathSegment(r.URL.Path, 3)
	if jobID == "" {
		http.Error(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	switch handlers.PathSegment(r.URL.Path, 4) {
	case "progress":
		s.app.JobHandler.ProgressHandler(w, r, jobID)
	case "complete":
		s.app.JobHandler.CompleteHandler(w, r, jobID)
	case "fail":
		s.app.JobHandler.FailHandler(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handlePromotionsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.PromotionHandler.PromoteHandler(w, r)
	case http.MethodGet:
		s.app.PromotionHandler.PromotionsHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrendsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.app.TrendHandler.SaveHandler(w, r)
	case http.MethodGet:
		s.app.TrendHandler.ListHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTrendRoutes(w http.ResponseWriter, r *http.Request) {
	trendID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/trends/"), "/")
	if trendID == "" {
		http.Error(w, "Trend ID is required", http.StatusBadRequest)
		return
	}
	if r.Method == http.MethodGet {
		s.app.TrendHandler.GetHandler(w, r, trendID)
		return
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
