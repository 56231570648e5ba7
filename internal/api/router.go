// Package api assembles the HTTP surface of the service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/bizledger/internal/api/handlers"
	"github.com/dvloznov/bizledger/internal/api/middleware"
	"github.com/dvloznov/bizledger/internal/jobs"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/rs/zerolog"
)

// Deps are the collaborators served by the router.
type Deps struct {
	Assistant handlers.Assistant
	Ledger    ledger.Store
	Jobs      jobs.JobStore
	Log       zerolog.Logger
}

// NewRouter registers every endpoint and wraps the mux in the middleware chain.
func NewRouter(d Deps) http.Handler {
	assistantHandler := handlers.NewAssistantHandler(d.Assistant, d.Ledger, d.Log)
	transactionsHandler := handlers.NewTransactionsHandler(d.Ledger, d.Log)
	auditHandler := handlers.NewAuditHandler(d.Jobs, d.Log)

	mux := http.NewServeMux()

	// Assistant endpoints
	mux.HandleFunc("/api/assistant/extract-text", postOnly(assistantHandler.ExtractText))
	mux.HandleFunc("/api/assistant/extract-image", postOnly(assistantHandler.ExtractImage))
	mux.HandleFunc("/api/assistant/insights", postOnly(assistantHandler.Insights))
	mux.HandleFunc("/api/assistant/chat", postOnly(assistantHandler.Chat))

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.ListTransactions(w, r)
		case http.MethodPost:
			transactionsHandler.CreateTransaction(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Audit endpoints
	mux.HandleFunc("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			auditHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/audit/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			auditHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(d.Log)(
		middleware.Logger(d.Log)(
			middleware.RequestID(d.Log)(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}
