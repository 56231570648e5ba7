package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/bizledger/internal/datauri"
	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/schema"
)

const validDraftJSON = `{"description":"Software subscription","category":"Software","amount":150,"type":"expense","date":"2024-06-01"}`

func fastInvoker(b Backend, retries int) *Invoker {
	return NewInvoker(b, Options{Timeout: time.Second, MaxRetries: retries, Backoff: time.Millisecond})
}

func TestNewInvoker_Defaults(t *testing.T) {
	inv := NewInvoker(&scriptedBackend{}, Options{})
	if inv.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", inv.timeout, DefaultTimeout)
	}
	if inv.backoff != defaultBackoff {
		t.Errorf("backoff = %v, want %v", inv.backoff, defaultBackoff)
	}
	if inv.maxRetries != 0 {
		t.Errorf("maxRetries = %d, want 0", inv.maxRetries)
	}

	negative := NewInvoker(&scriptedBackend{}, Options{MaxRetries: -1})
	if negative.maxRetries != 0 {
		t.Errorf("maxRetries = %d, want 0 for a negative value", negative.maxRetries)
	}
}

func TestInvoker_ZeroRetriesMakesOneAttempt(t *testing.T) {
	fail := Transient(errors.New("503"))
	b := &scriptedBackend{errs: []error{fail, fail, fail}}

	_, err := fastInvoker(b, 0).GenerateText(context.Background(), "", "q", nil)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if b.calls() != 1 {
		t.Errorf("calls = %d, want 1", b.calls())
	}
}

func TestOptionsBudget(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want time.Duration
	}{
		{name: "single attempt", opts: Options{Timeout: 30 * time.Second}, want: 30 * time.Second},
		{name: "negative retries", opts: Options{Timeout: 30 * time.Second, MaxRetries: -1}, want: 30 * time.Second},
		{name: "defaults", opts: Options{}, want: DefaultTimeout},
		{
			name: "two retries",
			opts: Options{Timeout: 10 * time.Second, MaxRetries: 2, Backoff: time.Second},
			// 3 attempts + (1s + 0.5s) + (4s + 2s) of backoff
			want: 30*time.Second + 7500*time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Budget(); got != tt.want {
				t.Errorf("Budget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenerateStructured(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{name: "bare json", reply: validDraftJSON},
		{name: "fenced json", reply: "```json\n" + validDraftJSON + "\n```"},
		{name: "json with prose", reply: "Sure! Here it is: " + validDraftJSON + " Let me know."},
		{name: "not json", reply: "I could not read the receipt.", wantErr: domain.ErrMalformedOutput},
		{name: "negative amount", reply: `{"description":"x","category":"y","amount":-5,"type":"expense","date":"2024-06-01"}`, wantErr: domain.ErrSchemaViolation},
		{name: "bad kind", reply: `{"description":"x","category":"y","amount":5,"type":"refund","date":"2024-06-01"}`, wantErr: domain.ErrSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &scriptedBackend{replies: []string{tt.reply}}
			d, err := fastInvoker(b, 2).GenerateStructured(context.Background(), "prompt", nil, &schema.Transaction)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if b.calls() != 1 {
					t.Errorf("calls = %d, output errors must not be retried", b.calls())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Amount != 150 || d.Kind != domain.KindExpense || d.Date.String() != "2024-06-01" {
				t.Errorf("draft = %+v", d)
			}
		})
	}
}

func TestGenerateStructured_PassesImageAndSchema(t *testing.T) {
	b := &scriptedBackend{replies: []string{validDraftJSON}}
	img := &datauri.Image{MIMEType: "image/png", Data: []byte("png")}

	if _, err := fastInvoker(b, 0).GenerateStructured(context.Background(), "read this", img, &schema.Transaction); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := b.requests[0]
	if req.Image != img {
		t.Error("image was not forwarded to the backend")
	}
	if req.Schema == nil || req.Schema.Name != "transaction" {
		t.Error("schema was not forwarded to the backend")
	}
	if req.Prompt != "read this" {
		t.Errorf("prompt = %q", req.Prompt)
	}
}

func TestGenerateText(t *testing.T) {
	history := []domain.ConversationTurn{{Speaker: domain.SpeakerUser, Text: "hi"}, {Speaker: domain.SpeakerAssistant, Text: "hello"}}
	b := &scriptedBackend{replies: []string{"  Your biggest expense was Rent.  "}}

	got, err := fastInvoker(b, 0).GenerateText(context.Background(), "system", "question", history)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "  Your biggest expense was Rent.  " {
		t.Errorf("reply should be returned unmodified, got %q", got)
	}
	req := b.requests[0]
	if req.System != "system" || req.Prompt != "question" || len(req.History) != 2 || req.Schema != nil {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestGenerateText_EmptyReply(t *testing.T) {
	b := &scriptedBackend{replies: []string{"   "}}
	_, err := fastInvoker(b, 0).GenerateText(context.Background(), "", "q", nil)
	if !errors.Is(err, domain.ErrMalformedOutput) {
		t.Fatalf("error = %v, want ErrMalformedOutput", err)
	}
}

func TestInvoker_RetriesTransientFailures(t *testing.T) {
	b := &scriptedBackend{
		errs:    []error{Transient(errors.New("503")), Transient(errors.New("429"))},
		replies: []string{"", "", "ok"},
	}
	got, err := fastInvoker(b, 2).GenerateText(context.Background(), "", "q", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || b.calls() != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, b.calls())
	}
}

func TestInvoker_GivesUpAfterMaxRetries(t *testing.T) {
	fail := Transient(errors.New("503"))
	b := &scriptedBackend{errs: []error{fail, fail, fail, fail}}

	_, err := fastInvoker(b, 2).GenerateText(context.Background(), "", "q", nil)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if b.calls() != 3 {
		t.Errorf("calls = %d, want 3", b.calls())
	}
}

func TestInvoker_DoesNotRetryPermanentFailures(t *testing.T) {
	b := &scriptedBackend{errs: []error{errors.New("400 bad request")}}

	_, err := fastInvoker(b, 2).GenerateText(context.Background(), "", "q", nil)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if b.calls() != 1 {
		t.Errorf("calls = %d, want 1", b.calls())
	}
}

func TestInvoker_TimesOutEachCall(t *testing.T) {
	b := &scriptedBackend{block: true}
	inv := NewInvoker(b, Options{Timeout: 10 * time.Millisecond, MaxRetries: 1, Backoff: time.Millisecond})

	start := time.Now()
	_, err := inv.GenerateText(context.Background(), "", "q", nil)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want it to carry the deadline", err)
	}
	if b.calls() != 2 {
		t.Errorf("calls = %d, want 2 (timeouts are retried)", b.calls())
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not enforced")
	}
}

func TestInvoker_StopsWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &scriptedBackend{block: true}

	_, err := fastInvoker(b, 3).GenerateText(ctx, "", "q", nil)
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if b.calls() != 1 {
		t.Errorf("calls = %d, want 1", b.calls())
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Here you go:\n{\"a\":1}\nThanks", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSON(tt.in); got != tt.want {
				t.Errorf("CleanJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
