// ============================================================================
// HTTP Binding Layer — thin submit/getJob surface
// ============================================================================
//
// Package: internal/httpapi
// Purpose: spec.md §1/§6 deliberately puts route mapping/deserialization
// out of scope for the core; this package is the thin glue that satisfies
// it: POST /jobs accepts a job name + raw payload and returns the tracking
// identifier immediately, GET /jobs/:id returns the current snapshot.
//
// The teacher repo has no HTTP router idiom of its own (its only external
// surface was gRPC, whose generated code is unavailable in the retrieval
// pack — see DESIGN.md). gin-gonic/gin is grounded on
// yungbote-neurobridge-backend/internal/http, used in the same thin
// handler -> service -> JSON envelope shape as its internal/http/handlers/
// job.go and internal/http/response package.
// ============================================================================

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ChuLiYu/beaver-queue/pkg/job"
)

// Service is the interface the handlers call into: internal/controller.
// Controller satisfies it directly.
type Service interface {
	Submit(ctx context.Context, name string, payload []byte, snap job.Snapshot, maxRetries *int) (job.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (job.Job, error)
}

// APIError mirrors yungbote-neurobridge-backend/internal/http/response's
// error envelope shape.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope is the JSON body returned on any non-2xx response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

func respondOK(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// JobIDHeaderName is the default header carrying a caller-supplied
// idempotency key (spec.md §6's jobIdHeaderName), overridable via
// NewHandler's jobIDHeaderName argument.
const JobIDHeaderName = "X-Job-Id"

// Handler binds Service to gin routes.
type Handler struct {
	svc             Service
	jobIDHeaderName string
}

// NewHandler constructs a Handler. jobIDHeaderName may be empty to use
// JobIDHeaderName.
func NewHandler(svc Service, jobIDHeaderName string) *Handler {
	if jobIDHeaderName == "" {
		jobIDHeaderName = JobIDHeaderName
	}
	return &Handler{svc: svc, jobIDHeaderName: jobIDHeaderName}
}

// Register mounts POST /jobs and GET /jobs/:id onto r, in the thin
// handler -> service -> JSON envelope shape described above.
func (h *Handler) Register(r gin.IRouter) {
	r.Use(cors.Default())
	r.POST("/jobs", h.submitJob)
	r.GET("/jobs/:id", h.getJob)
}

type submitRequest struct {
	Name       string          `json:"name" binding:"required"`
	Payload    json.RawMessage `json:"payload"`
	MaxRetries *int            `json:"max_retries"`
}

func (h *Handler) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, job.CodeValidationError, err)
		return
	}

	snap := snapshotFromRequest(c, h.jobIDHeaderName)

	j, err := h.svc.Submit(c.Request.Context(), req.Name, []byte(req.Payload), snap, req.MaxRetries)
	if err != nil {
		status := http.StatusInternalServerError
		code := job.CodeJobStoreError
		if je, ok := err.(*job.Error); ok {
			code = je.Code
			switch je.Code {
			case job.CodeInvalidJob, job.CodeInvalidJobID, job.CodeValidationError:
				status = http.StatusBadRequest
			}
		}
		respondError(c, status, code, err)
		return
	}

	respondOK(c, http.StatusAccepted, gin.H{"job": j})
}

func (h *Handler) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, job.CodeInvalidJobID, err)
		return
	}

	j, err := h.svc.GetJob(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		code := job.CodeJobStoreError
		if je, ok := err.(*job.Error); ok {
			code = je.Code
			if je.Code == job.CodeJobNotFound {
				status = http.StatusNotFound
			}
		}
		respondError(c, status, code, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"job": j})
}

// snapshotFromRequest captures the spec.md §6 Snapshot type: headers,
// route params, and query params, preserving multi-valued/ordered keys.
func snapshotFromRequest(c *gin.Context, jobIDHeaderName string) job.Snapshot {
	headers := make(map[string][]*string, len(c.Request.Header))
	for k, vs := range c.Request.Header {
		values := make([]*string, len(vs))
		for i, v := range vs {
			v := v
			values[i] = &v
		}
		headers[k] = values
	}

	routeParams := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		routeParams[p.Key] = p.Value
	}

	var queryParams []job.KV
	for k, vs := range c.Request.URL.Query() {
		values := make([]*string, len(vs))
		for i, v := range vs {
			v := v
			values[i] = &v
		}
		queryParams = append(queryParams, job.KV{Key: k, Values: values})
	}

	snap := job.Snapshot{Headers: headers, RouteParams: routeParams, QueryParams: queryParams}
	if raw := c.GetHeader(jobIDHeaderName); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			snap.OptionalJobID = &id
		}
	}
	return snap
}
