// Package server exposes the job API over HTTP. Submission is asynchronous:
// POST returns a job id immediately and results are polled.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/formpilot/fieldmap/internal/common"
	"github.com/formpilot/fieldmap/internal/entity"
	"github.com/formpilot/fieldmap/internal/export"
	"github.com/formpilot/fieldmap/internal/service"
)

// SubmitRequest is the body for POST /v1/jobs. SourceFields and TargetSchema
// are kept raw so they go through schema validation, not lenient decoding.
type SubmitRequest struct {
	SourceFields json.RawMessage   `json:"source_fields"`
	TargetSchema json.RawMessage   `json:"target_schema"`
	Options      entity.JobOptions `json:"options"`
}

type JobAPI struct {
	svc    *service.Service
	export *export.Service
	logger *slog.Logger
}

func NewJobAPI(svc *service.Service, exp *export.Service, logger *slog.Logger) *JobAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobAPI{svc: svc, export: exp, logger: logger}
}

// Router builds the HTTP surface.
func (a *JobAPI) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/jobs", a.handleSubmit)
	r.Get("/v1/jobs/{job_id}", a.handleStatus)
	r.Get("/v1/jobs/{job_id}/result", a.handleResult)
	r.Get("/v1/jobs/{job_id}/export", a.handleExport)
	r.Delete("/v1/jobs/{job_id}", a.handleCancel)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (a *JobAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sources, err := service.ParseSourceFields(req.SourceFields)
	if err != nil {
		a.parseError(w, "source_fields", err)
		return
	}
	targets, err := service.ParseTargetSchema(req.TargetSchema)
	if err != nil {
		a.parseError(w, "target_schema", err)
		return
	}

	jobID, err := a.svc.Submit(r.Context(), sources, targets, req.Options)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": jobID.String()})
}

func (a *JobAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	view, err := a.svc.GetStatus(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

func (a *JobAPI) handleResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	result, pending, err := a.svc.GetResult(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if pending {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": jobID.String(), "state": "pending"})
		return
	}
	json.NewEncoder(w).Encode(result)
}

func (a *JobAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	data, err := a.export.ReviewWorkbookXLSX(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="mappings-`+jobID.String()+`.xlsx"`)
	w.Write(data)
}

func (a *JobAPI) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID, ok := a.jobID(w, r)
	if !ok {
		return
	}
	if err := a.svc.Cancel(r.Context(), jobID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *JobAPI) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		http.Error(w, "Invalid job_id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// parseError answers 400 for documents the caller got wrong; anything else
// (a broken embedded schema) is an internal failure.
func (a *JobAPI) parseError(w http.ResponseWriter, field string, err error) {
	if errors.Is(err, common.ErrSchemaInvalid) {
		http.Error(w, field+": "+err.Error(), http.StatusBadRequest)
		return
	}
	a.writeError(w, err)
}

// writeError translates service-layer status errors into HTTP responses.
func (a *JobAPI) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, common.ErrNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument:
			http.Error(w, st.Message(), http.StatusBadRequest)
			return
		case codes.NotFound:
			http.Error(w, st.Message(), http.StatusNotFound)
			return
		case codes.Unavailable:
			http.Error(w, st.Message(), http.StatusServiceUnavailable)
			return
		}
	}
	a.logger.Error("api.request.failed", "error", err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}
