package jobsource

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ruteri/smartcard-provisioning-worker/api"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Operator endpoints.
const (
	EnqueuePath   = "/api/v1/jobs"
	JobResultPath = "/api/v1/jobs/{job_id}/status"
)

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler is an in-memory job source. Jobs are handed out in FIFO order to
// any registered worker.
type Handler struct {
	log   *slog.Logger
	token string

	mu       sync.Mutex
	workers  map[string]struct{}
	queue    []interfaces.Job
	inFlight map[string]string // job id -> worker id
	results  map[string]interfaces.JobOutcome
}

// NewHandler creates a job source accepting only requests bearing token.
func NewHandler(log *slog.Logger, token string) *Handler {
	return &Handler{
		log:      log,
		token:    token,
		workers:  make(map[string]struct{}),
		inFlight: make(map[string]string),
		results:  make(map[string]interfaces.JobOutcome),
	}
}

// RegisterRoutes mounts the worker and operator endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authorize)
		r.Post(api.RegisterPath, h.HandleRegister)
		r.Get("/api/v1/worker/{worker_id}/job", h.HandleGetJob)
		r.Post("/api/v1/worker/{worker_id}/job/{job_id}/status", h.HandleJobStatus)
		r.Post(EnqueuePath, h.HandleEnqueue)
		r.Get(JobResultPath, h.HandleJobResult)
	})
}

// Enqueue adds a job, assigning an id if it has none. Returns the job id.
func (h *Handler) Enqueue(job interfaces.Job) string {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.queue = append(h.queue, job)
	return job.JobID
}

// Result returns the reported outcome of a job.
func (h *Handler) Result(jobID string) (interfaces.JobOutcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	outcome, ok := h.results[jobID]
	return outcome, ok
}

func (h *Handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get(api.AuthorizationHeader), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			h.writeError(w, r, &RequestError{http.StatusUnauthorized, errors.New("invalid token")})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleRegister registers a worker id.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterWorkerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ID == "" {
		h.writeError(w, r, &RequestError{http.StatusBadRequest, errors.New("empty worker id")})
		return
	}

	h.mu.Lock()
	_, exists := h.workers[req.ID]
	h.workers[req.ID] = struct{}{}
	h.mu.Unlock()

	if exists {
		h.writeError(w, r, &RequestError{http.StatusConflict, interfaces.ErrAlreadyRegistered})
		return
	}

	h.log.Info("Worker registered", "worker_id", req.ID)
	w.WriteHeader(http.StatusCreated)
}

// HandleGetJob hands the next pending job to a worker.
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "worker_id")

	h.mu.Lock()
	if _, ok := h.workers[workerID]; !ok {
		h.mu.Unlock()
		h.writeError(w, r, &RequestError{http.StatusForbidden, fmt.Errorf("unknown worker %q", workerID)})
		return
	}
	if len(h.queue) == 0 {
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	job := h.queue[0]
	h.queue = h.queue[1:]
	h.inFlight[job.JobID] = workerID
	h.mu.Unlock()

	h.log.Info("Job assigned", "job_id", job.JobID, "worker_id", workerID)
	writeJSON(w, http.StatusOK, job)
}

// HandleJobStatus records the outcome reported by the worker the job was
// assigned to.
func (h *Handler) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "worker_id")
	jobID := chi.URLParam(r, "job_id")

	var req api.JobStatusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.mu.Lock()
	assignee, ok := h.inFlight[jobID]
	if !ok || assignee != workerID {
		h.mu.Unlock()
		h.writeError(w, r, &RequestError{http.StatusNotFound, fmt.Errorf("job %q is not assigned to worker %q", jobID, workerID)})
		return
	}
	delete(h.inFlight, jobID)
	h.results[jobID] = req.Outcome()
	h.mu.Unlock()

	h.log.Info("Job finished", "job_id", jobID, "worker_id", workerID, "success", req.Success, "error_kind", req.ErrorKind)
	w.WriteHeader(http.StatusNoContent)
}

// HandleEnqueue adds a job from the request body.
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var job interfaces.Job
	if err := h.decode(r, &job); err != nil {
		h.writeError(w, r, err)
		return
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if err := job.Validate(); err != nil {
		h.writeError(w, r, &RequestError{http.StatusBadRequest, err})
		return
	}

	jobID := h.Enqueue(job)
	writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
}

// HandleJobResult returns the reported outcome of a job.
func (h *Handler) HandleJobResult(w http.ResponseWriter, r *http.Request) {
	outcome, ok := h.Result(chi.URLParam(r, "job_id"))
	if !ok {
		h.writeError(w, r, &RequestError{http.StatusNotFound, errors.New("no result yet")})
		return
	}
	writeJSON(w, http.StatusOK, api.NewJobStatusRequest(outcome))
}

func (h *Handler) decode(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &RequestError{http.StatusBadRequest, fmt.Errorf("could not parse request body: %w", err)}
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}
	h.log.Debug("Request failed", "path", r.URL.Path, "status", status, "err", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
