package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/actions"
	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/flows"
	"github.com/dvloznov/bizledger/internal/jobs"
	"github.com/dvloznov/bizledger/internal/jobs/inmemory"
	"github.com/dvloznov/bizledger/internal/ledger"
	"github.com/dvloznov/bizledger/internal/logger"
	"github.com/dvloznov/bizledger/internal/schema"
)

type stubModel struct {
	mu         sync.Mutex
	structured string
	text       string
	systems    []string
	prompts    []string
}

func (m *stubModel) GenerateStructured(ctx context.Context, prompt string, image *datauri.Image, s *schema.Schema) (domain.TransactionDraft, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return s.Decode([]byte(m.structured))
}

func (m *stubModel) GenerateText(ctx context.Context, system, prompt string, history []domain.ConversationTurn) (string, error) {
	m.mu.Lock()
	m.systems = append(m.systems, system)
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.text, nil
}

type fixture struct {
	handler http.Handler
	model   *stubModel
	ledger  *ledger.MemoryStore
	jobs    *inmemory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model := &stubModel{
		structured: `{"description":"Software subscription","category":"Software","amount":150,"type":"expense","date":"2024-06-01"}`,
		text:       "Rent is your biggest expense.",
	}
	store := ledger.NewMemoryStore()
	jobStore := inmemory.NewStore()
	assistant := actions.New(flows.NewService(model), actions.Options{
		Now: func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
	})

	return &fixture{
		handler: NewRouter(Deps{
			Assistant: assistant,
			Ledger:    store,
			Jobs:      jobStore,
			Log:       logger.NewWithWriter(io.Discard),
		}),
		model:  model,
		ledger: store,
		jobs:   jobStore,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestExtractText(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/assistant/extract-text", `{"text":"Paid $150 for software subscription today","currentDate":"2024-06-01"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[actions.Result[domain.TransactionDraft]](t, rec)
	if !res.Success || res.Data.Amount != 150 || res.Data.Kind != domain.KindExpense {
		t.Errorf("result = %+v", res)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestExtractImage_Rejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/assistant/extract-image", `{"imageDataUri":"not-an-image"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	res := decode[actions.Result[domain.TransactionDraft]](t, rec)
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v", res)
	}
	if len(f.model.prompts) != 0 {
		t.Error("model called for a malformed image")
	}
}

func TestBadBodyAndMethod(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/assistant/chat", `{"history":`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/assistant/chat", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET chat: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/transactions", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE transactions: status = %d", rec.Code)
	}
}

func TestInsights(t *testing.T) {
	f := newFixture(t)

	// Empty ledger, no body: short-circuit without a model call.
	rec := f.do(t, http.MethodPost, "/api/assistant/insights", "")
	res := decode[actions.Result[actions.InsightResponse]](t, rec)
	if !res.Success || res.Data.Insights != actions.MsgNotEnoughData {
		t.Errorf("result = %+v", res)
	}
	if len(f.model.prompts) != 0 {
		t.Error("model called for an empty ledger")
	}

	// Explicit collections.
	f.model.text = "Spending is steady."
	rec = f.do(t, http.MethodPost, "/api/assistant/insights", `{"revenueJson":"[{\"amount\":5}]","expenseJson":"[]"}`)
	res = decode[actions.Result[actions.InsightResponse]](t, rec)
	if !res.Success || res.Data.Insights != "Spending is steady." {
		t.Errorf("result = %+v", res)
	}
}

func TestChat_UsesLedgerWhenContextOmitted(t *testing.T) {
	f := newFixture(t)
	_ = f.ledger.Insert(context.Background(), domain.Transaction{
		ID: "t1", Kind: domain.KindExpense, Date: civil.Date{Year: 2024, Month: 5, Day: 1},
		Amount: 2000, Description: "May rent", Category: "Rent",
	})

	rec := f.do(t, http.MethodPost, "/api/assistant/chat", `{"history":[{"role":"user","content":"What was my biggest expense?"}]}`)
	res := decode[actions.Result[domain.ChatAnswer]](t, rec)
	if !res.Success || res.Data.Answer == "" {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(f.model.systems[0], "May rent") {
		t.Error("ledger snapshot not used as grounding context")
	}
}

func TestChat_AssistantLastTurn(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/assistant/chat", `{"history":[{"role":"user","content":"hi"},{"role":"model","content":"hello"}],"transactionsJson":"[]"}`)
	res := decode[actions.Result[domain.ChatAnswer]](t, rec)
	if res.Success {
		t.Errorf("result = %+v", res)
	}
	if len(f.model.prompts) != 0 {
		t.Error("model called for an assistant-final history")
	}
}

func TestTransactions_CreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/transactions", `{"description":"Logo design","category":"Client Work","amount":800,"type":"Revenue","date":"2024-06-02","source":"text"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	created := decode[domain.Transaction](t, rec)
	if created.ID == "" || created.Kind != domain.KindRevenue || created.Source != domain.SourceText {
		t.Errorf("created = %+v", created)
	}

	rec = f.do(t, http.MethodPost, "/api/transactions", `{"description":"x","category":"y","amount":-1,"type":"expense","date":"2024-06-02"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative amount: status = %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/transactions?start_date=2024-06-01&end_date=2024-06-30", "")
	list := decode[[]domain.Transaction](t, rec)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	if rec := f.do(t, http.MethodGet, "/api/transactions?start_date=June", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: status = %d", rec.Code)
	}
}

func TestAuditEndpoints(t *testing.T) {
	f := newFixture(t)
	_ = f.jobs.SaveJob(context.Background(), &jobs.AuditJob{JobID: "job-1", Flow: "chat", Status: jobs.JobStatusCompleted})

	rec := f.do(t, http.MethodGet, "/api/audit?flow=chat", "")
	body := decode[struct {
		Jobs  []jobs.AuditJob `json:"jobs"`
		Count int             `json:"count"`
	}](t, rec)
	if body.Count != 1 || body.Jobs[0].JobID != "job-1" {
		t.Errorf("body = %+v", body)
	}

	if rec := f.do(t, http.MethodGet, "/api/audit/job-1", ""); rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/audit/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec := newFixture(t).do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
