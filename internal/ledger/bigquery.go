package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/domain"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	transactionsTable = "transactions"
	modelOutputsTable = "model_outputs"
)

// TransactionRow is the BigQuery shape of a ledger transaction.
type TransactionRow struct {
	TransactionID   string              `bigquery:"transaction_id"`   // REQUIRED
	Kind            string              `bigquery:"kind"`             // REQUIRED revenue|expense
	TransactionDate civil.Date          `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat            `bigquery:"amount"`           // REQUIRED NUMERIC
	Description     string              `bigquery:"description"`      // REQUIRED
	Category        string              `bigquery:"category"`         // REQUIRED
	ProjectID       bigquery.NullString `bigquery:"project_id"`       // NULLABLE
	Source          bigquery.NullString `bigquery:"source"`           // NULLABLE
	CreatedTS       time.Time           `bigquery:"created_ts"`       // REQUIRED
}

// ModelOutputRow is the BigQuery shape of an archived flow run.
type ModelOutputRow struct {
	OutputID   string              `bigquery:"output_id"`   // REQUIRED
	JobID      string              `bigquery:"job_id"`      // REQUIRED
	Flow       string              `bigquery:"flow"`        // REQUIRED
	ModelName  string              `bigquery:"model_name"`  // REQUIRED
	Succeeded  bool                `bigquery:"succeeded"`   // REQUIRED
	Input      bigquery.NullString `bigquery:"input"`       // NULLABLE
	RawJSON    bigquery.NullJSON   `bigquery:"raw_json"`    // NULLABLE
	Error      bigquery.NullString `bigquery:"error"`       // NULLABLE
	ReceiptURI bigquery.NullString `bigquery:"receipt_uri"` // NULLABLE
	LatencyMS  int64               `bigquery:"latency_ms"`
	CreatedTS  time.Time           `bigquery:"created_ts"` // REQUIRED
}

func toRow(tx domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		Kind:            string(tx.Kind),
		TransactionDate: tx.Date,
		Amount:          new(big.Rat).SetFloat64(tx.Amount),
		Description:     tx.Description,
		Category:        tx.Category,
		ProjectID:       nullString(tx.ProjectID),
		Source:          nullString(string(tx.Source)),
		CreatedTS:       tx.CreatedAt,
	}
}

func (r *TransactionRow) toTransaction() domain.Transaction {
	var amount float64
	if r.Amount != nil {
		amount, _ = r.Amount.Float64()
	}
	return domain.Transaction{
		ID:          r.TransactionID,
		Kind:        domain.Kind(r.Kind),
		Date:        r.TransactionDate,
		Amount:      amount,
		Description: r.Description,
		Category:    r.Category,
		ProjectID:   r.ProjectID.StringVal,
		Source:      domain.Source(r.Source.StringVal),
		CreatedAt:   r.CreatedTS,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// BigQueryStore keeps the ledger and the model output archive in one BigQuery dataset.
// It holds a shared client; call Close when done.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
}

// NewBigQueryStore creates a BigQuery client for projectID.
func NewBigQueryStore(ctx context.Context, projectID, datasetID string) (*BigQueryStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewBigQueryStore: project ID is required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryStore: creating client: %w", err)
	}
	return &BigQueryStore{client: client, dataset: datasetID}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQueryStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureTables creates the dataset and both tables when they are missing.
func (s *BigQueryStore) EnsureTables(ctx context.Context) error {
	ds := s.client.Dataset(s.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !alreadyExists(err) {
		return fmt.Errorf("EnsureTables: creating dataset %s: %w", s.dataset, err)
	}

	tables := []struct {
		name string
		row  any
	}{
		{transactionsTable, TransactionRow{}},
		{modelOutputsTable, ModelOutputRow{}},
	}
	for _, t := range tables {
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("EnsureTables: inferring %s schema: %w", t.name, err)
		}
		meta := &bigquery.TableMetadata{Schema: schema}
		if err := ds.Table(t.name).Create(ctx, meta); err != nil && !alreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating table %s: %w", t.name, err)
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

// Insert implements Store with a streaming insert.
func (s *BigQueryStore) Insert(ctx context.Context, tx domain.Transaction) error {
	inserter := s.client.Dataset(s.dataset).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, toRow(tx)); err != nil {
		return fmt.Errorf("Insert: inserting row: %w", err)
	}
	return nil
}

// List implements Store.
func (s *BigQueryStore) List(ctx context.Context, f Filter) ([]domain.Transaction, error) {
	q := s.client.Query(`
		SELECT
			transaction_id,
			kind,
			transaction_date,
			amount,
			description,
			category,
			project_id,
			source,
			created_ts
		FROM ` + "`" + s.dataset + "." + transactionsTable + "`" + `
		WHERE (@start_date IS NULL OR transaction_date >= @start_date)
		  AND (@end_date IS NULL OR transaction_date <= @end_date)
		  AND (@kind = '' OR kind = @kind)
		ORDER BY transaction_date, created_ts
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: nullDate(f.Start)},
		{Name: "end_date", Value: nullDate(f.End)},
		{Name: "kind", Value: string(f.Kind)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: query read: %w", err)
	}

	out := []domain.Transaction{}
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating rows: %w", err)
		}
		out = append(out, r.toTransaction())
	}
	return out, nil
}

func nullDate(d civil.Date) bigquery.NullDate {
	return bigquery.NullDate{Date: d, Valid: d.IsValid()}
}

// InsertModelOutput implements OutputWriter. It uses DML so the row is
// immediately visible to queries, unlike the streaming buffer. The MERGE keys
// on output_id, so replaying an output that already committed is a no-op.
func (s *BigQueryStore) InsertModelOutput(ctx context.Context, out ModelOutput) error {
	q := s.client.Query(`
		MERGE ` + "`" + s.dataset + "." + modelOutputsTable + "`" + ` T
		USING (SELECT @output_id AS output_id) S
		ON T.output_id = S.output_id
		WHEN NOT MATCHED THEN
			INSERT (
				output_id, job_id, flow, model_name, succeeded,
				input, raw_json, error, receipt_uri, latency_ms, created_ts
			)
			VALUES (
				@output_id, @job_id, @flow, @model_name, @succeeded,
				@input, PARSE_JSON(@raw_json), @error, @receipt_uri, @latency_ms, @created_ts
			)
	`)

	rawJSON := bigquery.NullString{StringVal: out.RawJSON, Valid: out.RawJSON != ""}
	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: out.OutputID},
		{Name: "job_id", Value: out.JobID},
		{Name: "flow", Value: out.Flow},
		{Name: "model_name", Value: out.ModelName},
		{Name: "succeeded", Value: out.Succeeded},
		{Name: "input", Value: nullString(out.Input)},
		{Name: "raw_json", Value: rawJSON},
		{Name: "error", Value: nullString(out.Error)},
		{Name: "receipt_uri", Value: nullString(out.ReceiptURI)},
		{Name: "latency_ms", Value: out.LatencyMS},
		{Name: "created_ts", Value: out.CreatedAt},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("InsertModelOutput: running merge query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("InsertModelOutput: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("InsertModelOutput: job error: %w", err)
	}

	return nil
}

var (
	_ Store        = (*BigQueryStore)(nil)
	_ OutputWriter = (*BigQueryStore)(nil)
)
