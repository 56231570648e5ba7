package handlers

import (
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/api/middleware"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store ledger.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(store ledger.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter ledger.Filter

	if s := query.Get("start_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		filter.Start = d
	}
	if s := query.Get("end_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		filter.End = d
	}
	if s := query.Get("type"); s != "" {
		filter.Kind = domain.Kind(strings.ToLower(s))
		if !filter.Kind.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, "type must be revenue or expense")
			return
		}
	}

	transactions, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	// Return array directly for frontend compatibility
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// CreateTransaction handles POST /api/transactions. The body is a confirmed
// draft, typically one returned by an extraction endpoint.
func (h *TransactionsHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		domain.TransactionDraft
		ProjectID string        `json:"projectId"`
		Source    domain.Source `json:"source"`
	}
	if _, err := decodeBody(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Kind = domain.Kind(strings.ToLower(string(req.Kind)))
	if err := schema.Check(req.TransactionDraft); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Source {
	case "":
		req.Source = domain.SourceManual
	case domain.SourceManual, domain.SourceText, domain.SourceImage:
	default:
		middleware.WriteError(w, http.StatusBadRequest, "source must be manual, text or image")
		return
	}

	tx := domain.FromDraft(uuid.New().String(), req.TransactionDraft, req.Source, h.now().UTC())
	tx.ProjectID = req.ProjectID

	if err := h.store.Insert(r.Context(), tx); err != nil {
		h.log.Error().Err(err).Msg("Failed to insert transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	h.log.Info().Str("transaction_id", tx.ID).Str("source", string(tx.Source)).Msg("Transaction created")
	middleware.WriteJSON(w, http.StatusCreated, tx)
}
