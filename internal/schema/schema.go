// Package schema defines the structured shape of a transaction draft once and
// derives everything else from it: the validator, the field instructions the
// prompts embed, and the response schema handed to the model provider.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/bizledger/internal/domain"
	"google.golang.org/genai"
)

// FieldKind is the JSON-level type of a field.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindEnum   FieldKind = "enum"
	KindDate   FieldKind = "date"
)

// Field describes one property of the structured output.
type Field struct {
	Name        string
	Kind        FieldKind
	Description string
	Enum        []string // only for KindEnum
}

// Schema is an ordered list of required fields.
type Schema struct {
	Name   string
	Fields []Field
}

// Transaction is the schema shared by the text and image extraction flows.
var Transaction = Schema{
	Name: "transaction",
	Fields: []Field{
		{Name: "description", Kind: KindString, Description: "A concise description of the transaction."},
		{Name: "category", Kind: KindString, Description: "A relevant category for the transaction (e.g., 'Client Work', 'Software', 'Office Supplies')."},
		{Name: "amount", Kind: KindNumber, Description: "The transaction amount as a positive number."},
		{Name: "type", Kind: KindEnum, Description: "The type of transaction.", Enum: []string{string(domain.KindRevenue), string(domain.KindExpense)}},
		{Name: "date", Kind: KindDate, Description: "The date of the transaction in 'YYYY-MM-DD' format."},
	},
}

// FieldError names the offending field of a schema violation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schema violation: field %q %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, domain.ErrSchemaViolation) match.
func (e *FieldError) Unwrap() error {
	return domain.ErrSchemaViolation
}

// Instructions renders the fields as a bullet list for prompt text.
func (s Schema) Instructions() string {
	var b strings.Builder
	for _, f := range s.Fields {
		b.WriteString("- \"" + f.Name + "\": ")
		switch f.Kind {
		case KindEnum:
			quoted := make([]string, len(f.Enum))
			for i, v := range f.Enum {
				quoted[i] = "\"" + v + "\""
			}
			b.WriteString("one of " + strings.Join(quoted, " | "))
		case KindDate:
			b.WriteString("string, ISO format \"YYYY-MM-DD\"")
		default:
			b.WriteString(string(f.Kind))
		}
		b.WriteString(". " + f.Description + "\n")
	}
	return b.String()
}

// GenAI converts the schema into a Gemini response schema.
func (s Schema) GenAI() *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}
	for _, f := range s.Fields {
		prop := &genai.Schema{Description: f.Description}
		switch f.Kind {
		case KindNumber:
			prop.Type = genai.TypeNumber
		case KindEnum:
			prop.Type = genai.TypeString
			prop.Enum = append([]string(nil), f.Enum...)
		case KindDate:
			prop.Type = genai.TypeString
		default:
			prop.Type = genai.TypeString
		}
		out.Properties[f.Name] = prop
		out.Required = append(out.Required, f.Name)
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
	}
	return out
}

// Decode parses a JSON object and validates it.
func (s Schema) Decode(raw []byte) (domain.TransactionDraft, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.TransactionDraft{}, fmt.Errorf("%w: decode %s object: %v", domain.ErrMalformedOutput, s.Name, err)
	}
	if obj == nil {
		return domain.TransactionDraft{}, fmt.Errorf("%w: %s object is null", domain.ErrMalformedOutput, s.Name)
	}
	return s.Validate(obj)
}

// Validate checks every declared field of obj and returns the normalized draft.
func (s Schema) Validate(obj map[string]any) (domain.TransactionDraft, error) {
	values := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := obj[f.Name]
		if !ok || raw == nil {
			return domain.TransactionDraft{}, &FieldError{Field: f.Name, Reason: "is missing"}
		}
		v, err := f.coerce(raw)
		if err != nil {
			return domain.TransactionDraft{}, err
		}
		values[f.Name] = v
	}

	d := domain.TransactionDraft{}
	d.Description, _ = values["description"].(string)
	d.Category, _ = values["category"].(string)
	d.Amount, _ = values["amount"].(float64)
	if k, ok := values["type"].(string); ok {
		d.Kind = domain.Kind(k)
	}
	d.Date, _ = values["date"].(civil.Date)

	if err := Check(d); err != nil {
		return domain.TransactionDraft{}, err
	}
	return d, nil
}

// Check validates an already typed draft.
func Check(d domain.TransactionDraft) error {
	if strings.TrimSpace(d.Description) == "" {
		return &FieldError{Field: "description", Reason: "is empty"}
	}
	if strings.TrimSpace(d.Category) == "" {
		return &FieldError{Field: "category", Reason: "is empty"}
	}
	if math.IsNaN(d.Amount) || math.IsInf(d.Amount, 0) || d.Amount <= 0 {
		return &FieldError{Field: "amount", Reason: fmt.Sprintf("must be a positive number, got %v", d.Amount)}
	}
	if !d.Kind.Valid() {
		return &FieldError{Field: "type", Reason: fmt.Sprintf("must be revenue or expense, got %q", d.Kind)}
	}
	if !d.Date.IsValid() {
		return &FieldError{Field: "date", Reason: "is not a valid calendar date"}
	}
	return nil
}

func (f Field) coerce(raw any) (any, error) {
	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has type %T, want string", raw)}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &FieldError{Field: f.Name, Reason: "is empty"}
		}
		return s, nil

	case KindNumber:
		return f.coerceNumber(raw)

	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has type %T, want string", raw)}
		}
		norm := strings.ToLower(strings.TrimSpace(s))
		for _, v := range f.Enum {
			if norm == v {
				return v, nil
			}
		}
		return nil, &FieldError{Field: f.Name, Reason: fmt.Sprintf("must be one of %v, got %q", f.Enum, s)}

	case KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has type %T, want string", raw)}
		}
		d, err := ParseDate(s)
		if err != nil {
			return nil, &FieldError{Field: f.Name, Reason: err.Error()}
		}
		return d, nil
	}
	return nil, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has unsupported kind %q", f.Kind)}
}

func (f Field) coerceNumber(raw any) (float64, error) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, &FieldError{Field: f.Name, Reason: fmt.Sprintf("is not numeric: %q", v)}
		}
		n = parsed
	case string:
		clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(v))
		parsed, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return 0, &FieldError{Field: f.Name, Reason: fmt.Sprintf("is not numeric: %q", v)}
		}
		n = parsed
	default:
		return 0, &FieldError{Field: f.Name, Reason: fmt.Sprintf("has type %T, want number", raw)}
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, &FieldError{Field: f.Name, Reason: fmt.Sprintf("must be a positive number, got %v", n)}
	}
	return n, nil
}

// ParseDate accepts YYYY-MM-DD. An RFC 3339 timestamp is reduced to its date.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return civil.DateOf(ts), nil
	}
	return civil.Date{}, fmt.Errorf("%q is not a YYYY-MM-DD date", s)
}
