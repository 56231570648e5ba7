// Package audit records every assistant flow run off the request path: the
// actions publish entries, workers archive receipts and model outputs.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/jobs"
	"github.com/dvloznov/bizledger/internal/logger"
)

// Flow names used in audit entries.
const (
	FlowExtractText  = "extract_text"
	FlowExtractImage = "extract_image"
	FlowInsight      = "insight"
	FlowChat         = "chat"
)

const publishTimeout = 100 * time.Millisecond

// Entry describes one finished flow run.
type Entry struct {
	Flow      string
	Succeeded bool
	Input     string
	Output    any
	Err       error
	Image     *datauri.Image
	Latency   time.Duration
}

// Recorder turns entries into audit jobs. It never blocks a request for long:
// when the queue is full the entry is dropped and a warning is logged.
type Recorder struct {
	publisher jobs.Publisher
	modelName string
}

// NewRecorder creates a recorder that labels entries with modelName.
func NewRecorder(publisher jobs.Publisher, modelName string) *Recorder {
	return &Recorder{publisher: publisher, modelName: modelName}
}

// Record publishes e as an audit job.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	log := logger.FromContext(ctx)

	job, err := r.newJob(e)
	if err != nil {
		log.Warn().Err(err).Str("flow", e.Flow).Msg("Dropping audit entry")
		return
	}

	// The request context may end as soon as the response is written.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.publisher.PublishAudit(pubCtx, job); err != nil {
		log.Warn().Err(err).Str("flow", e.Flow).Msg("Dropping audit entry")
		return
	}
	log.Debug().Str("job_id", job.JobID).Str("flow", e.Flow).Msg("Audit entry queued")
}

func (r *Recorder) newJob(e Entry) (*jobs.AuditJob, error) {
	job := &jobs.AuditJob{
		Flow:      e.Flow,
		Succeeded: e.Succeeded,
		ModelName: r.modelName,
		Input:     truncate(e.Input, 4000),
		LatencyMS: e.Latency.Milliseconds(),
	}
	if e.Output != nil {
		out, err := json.Marshal(e.Output)
		if err != nil {
			return nil, fmt.Errorf("newJob: encode output: %w", err)
		}
		job.Output = string(out)
	}
	if e.Err != nil {
		job.FlowError = e.Err.Error()
	}
	if e.Image != nil {
		job.ImageMIMEType = e.Image.MIMEType
		job.ImageData = e.Image.Data
	}
	return job, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
