package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by a JobStore for an unknown job ID.
var ErrJobNotFound = errors.New("job not found")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRecordModelOutput archives one assistant flow run.
	JobTypeRecordModelOutput JobType = "record_model_output"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// AuditJob carries the record of one assistant flow run to the audit workers.
type AuditJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Flow names the assistant operation, e.g. "extract_text" or "chat".
	Flow string `json:"flow"`

	// Succeeded reports whether the flow returned a result to the caller.
	Succeeded bool `json:"succeeded"`

	// ModelName identifies the backend that served the flow.
	ModelName string `json:"model_name"`

	// Input is a short description of what the caller submitted.
	Input string `json:"input,omitempty"`

	// Output is the JSON encoded result handed back to the caller.
	Output string `json:"output,omitempty"`

	// FlowError is the error the flow failed with, if any.
	FlowError string `json:"flow_error,omitempty"`

	// LatencyMS is how long the flow took end to end.
	LatencyMS int64 `json:"latency_ms"`

	// ImageMIMEType and ImageData hold the receipt submitted to image extraction.
	// ImageData is dropped from the job once the receipt has been archived.
	ImageMIMEType string `json:"image_mime_type,omitempty"`
	ImageData     []byte `json:"-"`

	// ReceiptURI is the archive location of the receipt, once uploaded.
	ReceiptURI string `json:"receipt_uri,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job itself failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AuditJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AuditJob) GetType() JobType {
	return JobTypeRecordModelOutput
}

// GetStatus implements the Job interface.
func (j *AuditJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishAudit publishes an audit job.
	PublishAudit(ctx context.Context, job *AuditJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AuditJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*AuditJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AuditJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Flow filters jobs by assistant operation.
	Flow string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
