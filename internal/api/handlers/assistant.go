package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dvloznov/bizledger/internal/actions"
	"github.com/dvloznov/bizledger/internal/api/middleware"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/rs/zerolog"
)

// Assistant is the action boundary served over HTTP. *actions.Assistant implements it.
type Assistant interface {
	ExtractFromText(ctx context.Context, req actions.TextRequest) actions.Result[domain.TransactionDraft]
	ExtractFromImage(ctx context.Context, req actions.ImageRequest) actions.Result[domain.TransactionDraft]
	GenerateInsight(ctx context.Context, req actions.InsightRequest) actions.Result[actions.InsightResponse]
	InsightsFromTransactions(ctx context.Context, txs []domain.Transaction) actions.Result[actions.InsightResponse]
	Chat(ctx context.Context, req actions.ChatRequest) actions.Result[domain.ChatAnswer]
}

// AssistantHandler handles the /api/assistant endpoints. Every decodable
// request is answered with 200 and a Result envelope.
type AssistantHandler struct {
	assistant Assistant
	ledger    ledger.Store
	log       zerolog.Logger
}

// NewAssistantHandler creates a new assistant handler. The ledger supplies
// grounding data when a request omits it.
func NewAssistantHandler(assistant Assistant, store ledger.Store, log zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: assistant,
		ledger:    store,
		log:       log,
	}
}

// ExtractText handles POST /api/assistant/extract-text
func (h *AssistantHandler) ExtractText(w http.ResponseWriter, r *http.Request) {
	var req actions.TextRequest
	if _, err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.assistant.ExtractFromText(r.Context(), req))
}

// ExtractImage handles POST /api/assistant/extract-image
func (h *AssistantHandler) ExtractImage(w http.ResponseWriter, r *http.Request) {
	var req actions.ImageRequest
	if _, err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, h.assistant.ExtractFromImage(r.Context(), req))
}

// Insights handles POST /api/assistant/insights. Without both collections in
// the body, insights are generated from the whole ledger.
func (h *AssistantHandler) Insights(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RevenueJSON *string `json:"revenueJson"`
		ExpenseJSON *string `json:"expenseJson"`
	}
	if _, err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()

	if req.RevenueJSON != nil || req.ExpenseJSON != nil {
		middleware.WriteJSON(w, http.StatusOK, h.assistant.GenerateInsight(ctx, actions.InsightRequest{
			RevenueJSON: deref(req.RevenueJSON),
			ExpenseJSON: deref(req.ExpenseJSON),
		}))
		return
	}

	txs, err := h.ledger.List(ctx, ledger.Filter{})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load ledger for insights")
		middleware.WriteJSON(w, http.StatusOK, actions.Fail[actions.InsightResponse](actions.MsgInsightFailed))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.assistant.InsightsFromTransactions(ctx, txs))
}

// Chat handles POST /api/assistant/chat. When transactionsJson is omitted the
// current ledger is used as grounding context.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		History          []domain.ConversationTurn `json:"history"`
		TransactionsJSON *string                   `json:"transactionsJson"`
	}
	if _, err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx := r.Context()

	financialContext := deref(req.TransactionsJSON)
	if req.TransactionsJSON == nil {
		snapshot, err := h.ledgerSnapshot(ctx)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to load ledger for chat")
			middleware.WriteJSON(w, http.StatusOK, actions.Fail[domain.ChatAnswer](actions.MsgChatFailed))
			return
		}
		financialContext = snapshot
	}

	middleware.WriteJSON(w, http.StatusOK, h.assistant.Chat(ctx, actions.ChatRequest{
		History:          req.History,
		TransactionsJSON: financialContext,
	}))
}

func (h *AssistantHandler) ledgerSnapshot(ctx context.Context) (string, error) {
	txs, err := h.ledger.List(ctx, ledger.Filter{})
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(txs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
