package jobsource

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/smartcard-provisioning-worker/api"
	"github.com/ruteri/smartcard-provisioning-worker/interfaces"
	"github.com/stretchr/testify/mock"
)

// DefaultTimeout bounds a single job-source request.
const DefaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

// Client implements interfaces.JobSource against a remote HTTP job source.
type Client struct {
	// ServerAddr is the base URL of the job source, e.g. https://core:50055
	ServerAddr string

	log        *slog.Logger
	token      string
	httpClient *http.Client
}

// NewClient creates a client authenticating with token. tlsConfig may be nil
// to use the system trust store.
func NewClient(log *slog.Logger, serverAddr, token string, tlsConfig *tls.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}

	return &Client{
		ServerAddr: strings.TrimRight(serverAddr, "/"),
		log:        log,
		token:      token,
		httpClient: &http.Client{Transport: transport, Timeout: DefaultTimeout},
	}
}

// RegisterWorker announces the worker to the job source.
func (c *Client) RegisterWorker(ctx context.Context, workerID string) error {
	resp, err := c.do(ctx, http.MethodPost, api.RegisterPath, api.RegisterWorkerRequest{ID: workerID})
	if err != nil {
		return fmt.Errorf("could not request register endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return interfaces.ErrAlreadyRegistered
	case isSuccess(resp.StatusCode):
		return nil
	default:
		return responseError("register", resp)
	}
}

// GetJob fetches the next pending job, or nil if there is none.
func (c *Client) GetJob(ctx context.Context, workerID string) (*interfaces.Job, error) {
	resp, err := c.do(ctx, http.MethodGet, api.JobPath(workerID), nil)
	if err != nil {
		return nil, fmt.Errorf("could not request job endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, responseError("job", resp)
	}

	var job interfaces.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("could not parse job response: %w", err)
	}
	return &job, nil
}

// ReportJobResult delivers the outcome of a job.
func (c *Client) ReportJobResult(ctx context.Context, workerID, jobID string, outcome interfaces.JobOutcome) error {
	resp, err := c.do(ctx, http.MethodPost, api.JobStatusPath(workerID, jobID), api.NewJobStatusRequest(outcome))
	if err != nil {
		return fmt.Errorf("could not request job status endpoint: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return responseError("job status", resp)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ServerAddr+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.AuthorizationHeader, "Bearer "+c.token)

	requestID := uuid.NewString()
	req.Header.Set(api.RequestIDHeader, requestID)
	c.log.Debug("Job source request", "method", method, "path", path, "request_id", requestID)

	return c.httpClient.Do(req)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func responseError(endpoint string, resp *http.Response) error {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s endpoint returned non-2xx response: %d", endpoint, resp.StatusCode)
	}
	return fmt.Errorf("%s endpoint returned error %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

// MockJobSource implements interfaces.JobSource for testing.
type MockJobSource struct {
	mock.Mock
}

func (m *MockJobSource) RegisterWorker(ctx context.Context, workerID string) error {
	args := m.Called(ctx, workerID)
	return args.Error(0)
}

func (m *MockJobSource) GetJob(ctx context.Context, workerID string) (*interfaces.Job, error) {
	args := m.Called(ctx, workerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.Job), args.Error(1)
}

func (m *MockJobSource) ReportJobResult(ctx context.Context, workerID, jobID string, outcome interfaces.JobOutcome) error {
	args := m.Called(ctx, workerID, jobID, outcome)
	return args.Error(0)
}

var _ interfaces.JobSource = (*Client)(nil)
var _ interfaces.JobSource = (*MockJobSource)(nil)
