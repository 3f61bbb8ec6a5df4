package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobpkg "github.com/ChuLiYu/beaver-queue/pkg/job"
)

type fakeService struct {
	submitFn func(ctx context.Context, name string, payload []byte, snap jobpkg.Snapshot, maxRetries *int) (jobpkg.Job, error)
	getFn    func(ctx context.Context, id uuid.UUID) (jobpkg.Job, error)
}

func (f *fakeService) Submit(ctx context.Context, name string, payload []byte, snap jobpkg.Snapshot, maxRetries *int) (jobpkg.Job, error) {
	return f.submitFn(ctx, name, payload, snap, maxRetries)
}

func (f *fakeService) GetJob(ctx context.Context, id uuid.UUID) (jobpkg.Job, error) {
	return f.getFn(ctx, id)
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc, "").Register(r)
	return r
}

func TestSubmitJobReturns202(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{
		submitFn: func(ctx context.Context, name string, payload []byte, snap jobpkg.Snapshot, maxRetries *int) (jobpkg.Job, error) {
			assert.Equal(t, "echo", name)
			return jobpkg.Job{ID: id, Name: name, Status: jobpkg.StatusQueued}, nil
		},
	}
	r := newTestRouter(svc)

	body, _ := json.Marshal(map[string]any{"name": "echo", "payload": map[string]string{"k": "v"}})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestSubmitJobValidationError(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobNotFound(t *testing.T) {
	svc := &fakeService{
		getFn: func(ctx context.Context, id uuid.UUID) (jobpkg.Job, error) {
			return jobpkg.Job{}, jobpkg.New(jobpkg.CodeJobNotFound, "no such job")
		},
	}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	svc := &fakeService{}
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
