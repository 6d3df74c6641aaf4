package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"async-import-export/internal/domain"
	"async-import-export/internal/domain/model"
	"async-import-export/internal/resource"
	"async-import-export/internal/usecase"
)

// maxUploadBytes bounds the multipart form held in memory on import creation.
const maxUploadBytes = 64 << 20

type exportCreateRequest struct {
	ResourceKey string       `json:"resource_key"`
	FileFormat  string       `json:"file_format"`
	Params      model.Params `json:"params"`
}

type listResponse struct {
	Jobs   any `json:"jobs"`
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func exportCreateHandler(exportUC *usecase.ExportJobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req exportCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		job, err := exportUC.Create(r.Context(), req.ResourceKey, req.FileFormat, req.Params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func exportListHandler(exportUC *usecase.ExportJobUseCase, pageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := pagination(r, pageSize)
		jobs, total, err := exportUC.List(r.Context(), offset, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Jobs: jobs, Total: total, Offset: offset, Limit: limit})
	}
}

func exportGetHandler(exportUC *usecase.ExportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		job, err := exportUC.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func exportProgressHandler(exportUC *usecase.ExportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		p, err := exportUC.Progress(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func exportCancelHandler(exportUC *usecase.ExportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		if err := exportUC.Cancel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func exportDownloadHandler(exportUC *usecase.ExportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		rc, filename, err := exportUC.Download(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		defer rc.Close()
		serveArtifact(w, rc, filename)
	}
}

// importCreateHandler accepts a multipart form: the input file under "file",
// plus resource_key and the optional skip_confirm, force_import, fail_fast
// and params fields.
func importCreateHandler(importUC *usecase.ImportJobUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Failed to read file", http.StatusBadRequest)
			return
		}

		var params model.Params
		if raw := r.FormValue("params"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				http.Error(w, "Invalid params field", http.StatusBadRequest)
				return
			}
		}
		opts := model.ImportOptions{
			SkipConfirm: formBool(r, "skip_confirm"),
			ForceImport: formBool(r, "force_import"),
			FailFast:    formBool(r, "fail_fast"),
		}

		job, err := importUC.Create(r.Context(), r.FormValue("resource_key"),
			header.Filename, data, params, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, job)
	}
}

func importListHandler(importUC *usecase.ImportJobUseCase, pageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, limit := pagination(r, pageSize)
		jobs, total, err := importUC.List(r.Context(), offset, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Jobs: jobs, Total: total, Offset: offset, Limit: limit})
	}
}

func importGetHandler(importUC *usecase.ImportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		job, err := importUC.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func importProgressHandler(importUC *usecase.ImportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		p, err := importUC.Progress(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func importCancelHandler(importUC *usecase.ImportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		if err := importUC.Cancel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func importConfirmHandler(importUC *usecase.ImportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		job, err := importUC.Confirm(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func importDownloadHandler(importUC *usecase.ImportJobUseCase) func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, id string) {
		rc, filename, err := importUC.Download(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		defer rc.Close()
		serveArtifact(w, rc, filename)
	}
}

// resourcesHandler lists the registered resource keys.
func resourcesHandler(registry *resource.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"resources": registry.Keys()})
	}
}

func pagination(r *http.Request, pageSize int) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > pageSize {
		limit = pageSize
	}
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

func formBool(r *http.Request, field string) bool {
	v, _ := strconv.ParseBool(r.FormValue(field))
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func serveArtifact(w http.ResponseWriter, rc io.Reader, filename string) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	io.Copy(w, rc)
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNoArtifact):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUnknownResource),
		errors.Is(err, domain.ErrUnknownFormat),
		errors.Is(err, domain.ErrTooManyRows),
		errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrInvalidRows),
		errors.Is(err, domain.ErrAlreadyClaimed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
