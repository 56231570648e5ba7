package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/jobs"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/receipts"
	"github.com/google/uuid"
)

// ReceiptUploader stores receipt images. *receipts.Archive implements it.
type ReceiptUploader interface {
	Upload(ctx context.Context, objectName string, img datauri.Image) (string, error)
}

// Processor handles audit jobs taken off the queue.
type Processor struct {
	outputs  ledger.OutputWriter
	receipts ReceiptUploader
	now      func() time.Time
}

// NewProcessor creates a processor. uploader may be nil, in which case receipt
// images are not archived.
func NewProcessor(outputs ledger.OutputWriter, uploader ReceiptUploader) *Processor {
	return &Processor{outputs: outputs, receipts: uploader, now: time.Now}
}

// OutputID is the model output key for an audit job. It is stable across
// retries of the same job, so a retried insert cannot add a second row.
func OutputID(jobID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("bizledger:model-output:"+jobID)).String()
}

// Handle implements jobs.JobHandler. A failed step returns an error so the
// queue retries the job; an uploaded receipt is not uploaded again.
func (p *Processor) Handle(ctx context.Context, job jobs.Job) error {
	aj, ok := job.(*jobs.AuditJob)
	if !ok {
		return fmt.Errorf("Handle: unexpected job type %s", job.GetType())
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"job_id": aj.JobID,
		"flow":   aj.Flow,
	})

	if p.receipts != nil && len(aj.ImageData) > 0 && aj.ReceiptURI == "" {
		img := datauri.Image{MIMEType: aj.ImageMIMEType, Data: aj.ImageData}
		uri, err := p.receipts.Upload(ctx, receipts.ObjectName(aj.JobID, aj.CreatedAt, img), img)
		if err != nil {
			return fmt.Errorf("Handle: archive receipt: %w", err)
		}
		aj.ReceiptURI = uri
		aj.ImageData = nil
		log.Info().Str("receipt_uri", uri).Msg("Receipt archived")
	}

	out := ledger.ModelOutput{
		OutputID:   OutputID(aj.JobID),
		JobID:      aj.JobID,
		Flow:       aj.Flow,
		ModelName:  aj.ModelName,
		Succeeded:  aj.Succeeded,
		Input:      aj.Input,
		RawJSON:    aj.Output,
		Error:      aj.FlowError,
		ReceiptURI: aj.ReceiptURI,
		LatencyMS:  aj.LatencyMS,
		CreatedAt:  p.now(),
	}
	if err := p.outputs.InsertModelOutput(ctx, out); err != nil {
		return fmt.Errorf("Handle: insert model output: %w", err)
	}

	log.Debug().Msg("Model output archived")
	return nil
}
