// Package actions is the boundary between callers and the assistant flows.
// Every action validates its input, runs one flow and returns a Result;
// failures never escape as errors.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/audit"
	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/flows"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/schema"
)

// User-facing messages.
const (
	MsgNotEnoughData   = "Not enough data to generate insights. Please add some revenue and expenses first."
	MsgInsightFailed   = "We had trouble generating insights. Please try again later."
	MsgExtractFailed   = "Could not extract a transaction. Please check the details and try again."
	MsgChatFailed      = "The assistant could not answer right now. Please try again later."
	MsgServiceDown     = "The AI service is unavailable right now. Please try again later."
	MsgUnreadableReply = "The AI returned a response we could not understand. Please try again."
)

// Flows is the set of flow operations the actions run. *flows.Service implements it.
type Flows interface {
	TextToTransaction(ctx context.Context, text string, currentDate civil.Date) (domain.TransactionDraft, error)
	ImageToTransaction(ctx context.Context, image datauri.Image, currentDate civil.Date) (domain.TransactionDraft, error)
	GenerateInsight(ctx context.Context, revenueJSON, expenseJSON string) (domain.InsightResult, error)
	Chat(ctx context.Context, history []domain.ConversationTurn, financialContext string) (domain.ChatAnswer, error)
}

// Auditor receives a record of every flow run. *audit.Recorder implements it.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// TextRequest asks for a transaction draft from free text.
type TextRequest struct {
	Text string `json:"text"`
	// CurrentDate is YYYY-MM-DD; empty means today.
	CurrentDate string `json:"currentDate,omitempty"`
}

// ImageRequest asks for a transaction draft from a receipt image.
type ImageRequest struct {
	ImageDataURI string `json:"imageDataUri"`
	CurrentDate  string `json:"currentDate,omitempty"`
}

// InsightRequest carries two serialized, chronologically sorted collections.
type InsightRequest struct {
	RevenueJSON string `json:"revenueJson"`
	ExpenseJSON string `json:"expenseJson"`
}

// InsightResponse is the data of a successful insight action.
type InsightResponse struct {
	Insights string `json:"insights"`
}

// ChatRequest carries the caller-owned transcript and the grounding context.
type ChatRequest struct {
	History          []domain.ConversationTurn `json:"history"`
	TransactionsJSON string                    `json:"transactionsJson"`
}

// Options configure an Assistant. Zero values are valid.
type Options struct {
	// Now supplies the default current date. Defaults to time.Now.
	Now func() time.Time
	// Auditor, if set, receives every flow run.
	Auditor Auditor
}

// Assistant exposes the assistant actions. It is safe for concurrent use.
type Assistant struct {
	flows   Flows
	now     func() time.Time
	auditor Auditor
}

// New creates an Assistant over flows.
func New(f Flows, opts Options) *Assistant {
	a := &Assistant{flows: f, now: opts.Now, auditor: opts.Auditor}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// ExtractFromText turns a free-text description into a transaction draft.
func (a *Assistant) ExtractFromText(ctx context.Context, req TextRequest) Result[domain.TransactionDraft] {
	start := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		return a.rejectDraft(ctx, audit.FlowExtractText, "Please describe the transaction.", errors.New("text is empty"))
	}
	currentDate, err := a.currentDate(req.CurrentDate)
	if err != nil {
		return a.rejectDraft(ctx, audit.FlowExtractText, "The current date must be formatted as YYYY-MM-DD.", err)
	}

	draft, err := a.flows.TextToTransaction(ctx, req.Text, currentDate)
	a.record(ctx, audit.Entry{
		Flow:      audit.FlowExtractText,
		Succeeded: err == nil,
		Input:     req.Text,
		Output:    outputOrNil(draft, err),
		Err:       err,
		Latency:   time.Since(start),
	})
	if err != nil {
		return Fail[domain.TransactionDraft](a.failure(ctx, "ExtractFromText", err, MsgExtractFailed))
	}
	return OK(draft)
}

// ExtractFromImage turns a receipt or invoice image into a transaction draft.
// The image must be a data:<mime>;base64,<payload> URI; anything else is
// rejected before the model is called.
func (a *Assistant) ExtractFromImage(ctx context.Context, req ImageRequest) Result[domain.TransactionDraft] {
	start := time.Now()

	img, err := datauri.Parse(req.ImageDataURI)
	if err != nil {
		return a.rejectDraft(ctx, audit.FlowExtractImage, "The image could not be read. Please upload a JPEG, PNG or PDF file.", err)
	}
	currentDate, err := a.currentDate(req.CurrentDate)
	if err != nil {
		return a.rejectDraft(ctx, audit.FlowExtractImage, "The current date must be formatted as YYYY-MM-DD.", err)
	}

	draft, err := a.flows.ImageToTransaction(ctx, img, currentDate)
	a.record(ctx, audit.Entry{
		Flow:      audit.FlowExtractImage,
		Succeeded: err == nil,
		Input:     fmt.Sprintf("%s image, %d bytes", img.MIMEType, len(img.Data)),
		Output:    outputOrNil(draft, err),
		Err:       err,
		Image:     &img,
		Latency:   time.Since(start),
	})
	if err != nil {
		return Fail[domain.TransactionDraft](a.failure(ctx, "ExtractFromImage", err, MsgExtractFailed))
	}
	return OK(draft)
}

// GenerateInsight surfaces anomalies in the revenue and expense history.
// When both collections are empty the model is not called and a fixed
// message is returned as a successful result.
func (a *Assistant) GenerateInsight(ctx context.Context, req InsightRequest) Result[InsightResponse] {
	if flows.IsEmptyCollection(req.RevenueJSON) && flows.IsEmptyCollection(req.ExpenseJSON) {
		return OK(InsightResponse{Insights: MsgNotEnoughData})
	}

	start := time.Now()
	res, err := a.flows.GenerateInsight(ctx, req.RevenueJSON, req.ExpenseJSON)
	a.record(ctx, audit.Entry{
		Flow:      audit.FlowInsight,
		Succeeded: err == nil,
		Input:     fmt.Sprintf("revenue: %d bytes, expenses: %d bytes", len(req.RevenueJSON), len(req.ExpenseJSON)),
		Output:    outputOrNil(res, err),
		Err:       err,
		Latency:   time.Since(start),
	})
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Error generating insights")
		return Fail[InsightResponse](MsgInsightFailed)
	}
	return OK(InsightResponse{Insights: res.Text})
}

// InsightsFromTransactions splits ledger records by kind, sorts each side
// chronologically and runs GenerateInsight on the serialized collections.
func (a *Assistant) InsightsFromTransactions(ctx context.Context, txs []domain.Transaction) Result[InsightResponse] {
	var revenue, expense []domain.Transaction
	for _, tx := range txs {
		switch tx.Kind {
		case domain.KindRevenue:
			revenue = append(revenue, tx)
		case domain.KindExpense:
			expense = append(expense, tx)
		}
	}
	if len(revenue) == 0 && len(expense) == 0 {
		return OK(InsightResponse{Insights: MsgNotEnoughData})
	}

	ledger.SortChronologically(revenue)
	ledger.SortChronologically(expense)

	revJSON, err := marshalCollection(revenue)
	if err != nil {
		return Fail[InsightResponse](a.failure(ctx, "InsightsFromTransactions", err, MsgInsightFailed))
	}
	expJSON, err := marshalCollection(expense)
	if err != nil {
		return Fail[InsightResponse](a.failure(ctx, "InsightsFromTransactions", err, MsgInsightFailed))
	}

	return a.GenerateInsight(ctx, InsightRequest{RevenueJSON: revJSON, ExpenseJSON: expJSON})
}

// Chat answers the last user turn of the transcript, grounded in TransactionsJSON.
func (a *Assistant) Chat(ctx context.Context, req ChatRequest) Result[domain.ChatAnswer] {
	if err := flows.ValidateHistory(req.History); err != nil {
		a.logRejected(ctx, audit.FlowChat, err)
		msg := "Please ask a question first."
		if len(req.History) > 0 {
			msg = "The conversation must end with your question."
		}
		return Fail[domain.ChatAnswer](msg)
	}

	start := time.Now()
	answer, err := a.flows.Chat(ctx, req.History, req.TransactionsJSON)
	a.record(ctx, audit.Entry{
		Flow:      audit.FlowChat,
		Succeeded: err == nil,
		Input:     req.History[len(req.History)-1].Text,
		Output:    outputOrNil(answer, err),
		Err:       err,
		Latency:   time.Since(start),
	})
	if err != nil {
		return Fail[domain.ChatAnswer](a.failure(ctx, "Chat", err, MsgChatFailed))
	}
	return OK(answer)
}

// currentDate parses s, defaulting to today's date from the assistant's clock.
func (a *Assistant) currentDate(s string) (civil.Date, error) {
	if strings.TrimSpace(s) == "" {
		return civil.DateOf(a.now()), nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: current date %q: %v", domain.ErrMalformedInput, s, err)
	}
	return d, nil
}

func (a *Assistant) rejectDraft(ctx context.Context, flow, msg string, err error) Result[domain.TransactionDraft] {
	if !errors.Is(err, domain.ErrMalformedInput) {
		err = fmt.Errorf("%w: %w", domain.ErrMalformedInput, err)
	}
	a.logRejected(ctx, flow, err)
	return Fail[domain.TransactionDraft](msg)
}

func (a *Assistant) logRejected(ctx context.Context, flow string, err error) {
	log := logger.FromContext(ctx)
	log.Info().Err(err).Str("flow", flow).Msg("Rejected assistant input")
}

// failure logs err and maps it to a message the caller can show directly.
func (a *Assistant) failure(ctx context.Context, op string, err error, fallback string) string {
	log := logger.FromContext(ctx)
	log.Error().Err(err).Str("action", op).Msg("Assistant action failed")

	var fieldErr *schema.FieldError
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return fallback
	case errors.Is(err, domain.ErrServiceUnavailable):
		return MsgServiceDown
	case errors.As(err, &fieldErr):
		return fmt.Sprintf("The AI could not determine a valid %s for this transaction. Please add more detail and try again.", fieldErr.Field)
	case errors.Is(err, domain.ErrMalformedOutput):
		return MsgUnreadableReply
	}
	return fallback
}

func (a *Assistant) record(ctx context.Context, e audit.Entry) {
	if a.auditor == nil {
		return
	}
	a.auditor.Record(ctx, e)
}

func outputOrNil[T any](v T, err error) any {
	if err != nil {
		return nil
	}
	return v
}

func marshalCollection(txs []domain.Transaction) (string, error) {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	b, err := json.Marshal(txs)
	if err != nil {
		return "", fmt.Errorf("marshal transactions: %w", err)
	}
	return string(b), nil
}
