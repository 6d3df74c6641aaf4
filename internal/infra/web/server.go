// Package web serves the admin API: job creation, inspection, cancellation,
// confirmation and artifact download.
package web

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"async-import-export/internal/resource"
	"async-import-export/internal/usecase"
)

type Server struct {
	exportUC *usecase.ExportJobUseCase
	importUC *usecase.ImportJobUseCase
	registry *resource.Registry
	apiKey   string
	auth     *AuthManager // optional, nil disables session login
	pageSize int
	log      *zerolog.Logger
}

func NewServer(
	exportUC *usecase.ExportJobUseCase,
	importUC *usecase.ImportJobUseCase,
	registry *resource.Registry,
	apiKey string,
	auth *AuthManager,
	pageSize int,
	logger *zerolog.Logger,
) *Server {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Server{
		exportUC: exportUC,
		importUC: importUC,
		registry: registry,
		apiKey:   apiKey,
		auth:     auth,
		pageSize: pageSize,
		log:      logger,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	exportRouter := s.authMiddleware(s.exportJobsRouter())
	mux.Handle("/api/v1/export-jobs", exportRouter)
	mux.Handle("/api/v1/export-jobs/", exportRouter)

	importRouter := s.authMiddleware(s.importJobsRouter())
	mux.Handle("/api/v1/import-jobs", importRouter)
	mux.Handle("/api/v1/import-jobs/", importRouter)

	mux.Handle("/api/v1/resources", s.authMiddleware(resourcesHandler(s.registry)))

	if s.auth != nil {
		mux.HandleFunc("/api/v1/auth/login", s.loginHandler)
		mux.HandleFunc("/api/v1/auth/logout", s.logoutHandler)
	}

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// authMiddleware accepts either the raw admin API key as a bearer token or a
// session JWT minted by the login endpoint.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if s.auth != nil {
			if _, err := s.auth.ParseFromRequest(r); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loginHandler exchanges the API key for a session cookie.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	authHeader := r.Header.Get("Authorization")
	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" ||
		s.apiKey == "" || tokenParts[1] != s.apiKey {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to mint session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.auth.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// exportJobsRouter dispatches /api/v1/export-jobs[/{id}[/{action}]].
func (s *Server) exportJobsRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/export-jobs"), "/")

		if path == "" {
			switch r.Method {
			case http.MethodGet:
				exportListHandler(s.exportUC, s.pageSize)(w, r)
			case http.MethodPost:
				exportCreateHandler(s.exportUC)(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		id, action, _ := strings.Cut(path, "/")
		switch {
		case action == "" && r.Method == http.MethodGet:
			exportGetHandler(s.exportUC)(w, r, id)
		case action == "progress" && r.Method == http.MethodGet:
			exportProgressHandler(s.exportUC)(w, r, id)
		case action == "cancel" && r.Method == http.MethodPost:
			exportCancelHandler(s.exportUC)(w, r, id)
		case action == "download" && r.Method == http.MethodGet:
			exportDownloadHandler(s.exportUC)(w, r, id)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})
}

// importJobsRouter dispatches /api/v1/import-jobs[/{id}[/{action}]].
func (s *Server) importJobsRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/import-jobs"), "/")

		if path == "" {
			switch r.Method {
			case http.MethodGet:
				importListHandler(s.importUC, s.pageSize)(w, r)
			case http.MethodPost:
				importCreateHandler(s.importUC)(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		id, action, _ := strings.Cut(path, "/")
		switch {
		case action == "" && r.Method == http.MethodGet:
			importGetHandler(s.importUC)(w, r, id)
		case action == "progress" && r.Method == http.MethodGet:
			importProgressHandler(s.importUC)(w, r, id)
		case action == "cancel" && r.Method == http.MethodPost:
			importCancelHandler(s.importUC)(w, r, id)
		case action == "confirm" && r.Method == http.MethodPost:
			importConfirmHandler(s.importUC)(w, r, id)
		case action == "download" && r.Method == http.MethodGet:
			importDownloadHandler(s.importUC)(w, r, id)
		default:
			http.Error(w, "Not found", http.StatusNotFound)
		}
	})
}
