package prompts

import (
	"strings"
	"testing"

	"github.com/dvloznov/bizledger/internal/schema"
)

func TestRender(t *testing.T) {
	tmpl := Template{Name: "greeting", Vars: []string{"name"}, Text: "Hello {{.name}}!"}

	tests := []struct {
		name    string
		vars    map[string]string
		want    string
		wantErr bool
	}{
		{name: "all variables", vars: map[string]string{"name": "Ana"}, want: "Hello Ana!"},
		{name: "empty value is allowed", vars: map[string]string{"name": ""}, want: "Hello !"},
		{name: "missing variable", vars: map[string]string{}, wantErr: true},
		{name: "undeclared variable", vars: map[string]string{"name": "Ana", "extra": "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tmpl, tt.vars)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Render() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_DoesNotEscape(t *testing.T) {
	got, err := Render(Template{Name: "raw", Vars: []string{"v"}, Text: "{{.v}}"}, map[string]string{"v": `[{"a":"<b>&"}]`})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if got != `[{"a":"<b>&"}]` {
		t.Errorf("Render() = %q, want the value verbatim", got)
	}
}

func TestDeclaredVarsMatchTemplates(t *testing.T) {
	for _, tmpl := range []Template{TextExtraction, ImageExtraction, Insight, ChatSystem} {
		for _, v := range tmpl.Vars {
			if !strings.Contains(tmpl.Text, "{{."+v+"}}") {
				t.Errorf("%s declares %q but never uses it", tmpl.Name, v)
			}
		}
	}
}

func TestBuildTextExtraction(t *testing.T) {
	got, err := BuildTextExtraction("Paid $150 for software subscription today", "2024-06-01")
	if err != nil {
		t.Fatalf("BuildTextExtraction() error: %v", err)
	}
	for _, want := range []string{
		"Paid $150 for software subscription today",
		"The current date is 2024-06-01",
		"positive number",
		schema.Transaction.Instructions(),
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestBuildImageExtraction(t *testing.T) {
	got, err := BuildImageExtraction("2024-06-01")
	if err != nil {
		t.Fatalf("BuildImageExtraction() error: %v", err)
	}
	for _, want := range []string{
		"assume it's an expense",
		"If no date is found on the receipt, use the current date",
		"The current date is 2024-06-01",
		"STRICT JSON only",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildInsight(t *testing.T) {
	got, err := BuildInsight(`[{"amount":10}]`, `[]`)
	if err != nil {
		t.Fatalf("BuildInsight() error: %v", err)
	}
	if !strings.Contains(got, `Revenue Data: [{"amount":10}]`) || !strings.Contains(got, "Expense Data: []") {
		t.Errorf("insight prompt does not embed data:\n%s", got)
	}
}

func TestBuildChatSystem(t *testing.T) {
	ctx := `[{"category":"Rent","amount":2000,"type":"expense"}]`
	got, err := BuildChatSystem(ctx)
	if err != nil {
		t.Fatalf("BuildChatSystem() error: %v", err)
	}
	if !strings.HasSuffix(got, ctx) {
		t.Errorf("system prompt should end with the context verbatim:\n%s", got)
	}
	if !strings.Contains(got, "Do not make up information") {
		t.Errorf("system prompt missing grounding rule")
	}
}
