// Package prompts holds the instruction templates sent to the model and a
// strict renderer over each template's declared variables.
package prompts

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/dvloznov/bizledger/internal/schema"
)

// Template is a named prompt with a fixed set of variables.
type Template struct {
	Name string
	Text string
	Vars []string
}

// TextExtraction turns a free-text description into a transaction.
var TextExtraction = Template{
	Name: "text_extraction",
	Vars: []string{"text", "currentDate", "fields"},
	Text: `You are an AI assistant that helps users create financial transactions from natural language.
Parse the following text to extract the transaction details.
- The amount should always be a positive number.
- Determine if it's 'revenue' (money coming in) or 'expense' (money going out).
- Infer a suitable category.
- The current date is {{.currentDate}}. Use this to resolve relative dates like "today", "yesterday" or "last Tuesday".

Output a single JSON object with these fields:
{{.fields}}
Return ONLY valid raw JSON. Do NOT wrap the response in code fences.

Text: {{.text}}`,
}

// ImageExtraction reads a receipt or invoice attached to the request.
var ImageExtraction = Template{
	Name: "image_extraction",
	Vars: []string{"currentDate", "fields"},
	Text: `You are an AI assistant that helps users create financial transactions by analyzing images of receipts or invoices.
Analyze the attached image to extract the transaction details.
- The amount should always be a positive number.
- Determine if it's 'revenue' (e.g., an invoice you sent) or 'expense' (e.g., a receipt for a purchase). If it's ambiguous, assume it's an expense.
- Extract the business name or a concise summary for the description.
- Infer a suitable category (e.g., 'Client Work', 'Software', 'Office Supplies', 'Meals', 'Travel').
- The current date is {{.currentDate}}. Use this to resolve relative dates. If no date is found on the receipt, use the current date.

Output a single JSON object with these fields:
{{.fields}}
Output STRICT JSON only: no comments, no explanation, no Markdown.
The response must begin with "{" and end with "}".`,
}

// Insight asks for anomalies across revenue and expense history.
var Insight = Template{
	Name: "insight",
	Vars: []string{"revenueData", "expenseData"},
	Text: `You are an AI-powered financial analyst. Analyze the provided revenue and expense data and provide insights, such as identifying unusual revenue spikes or spending patterns.
Both collections are sorted chronologically.

Revenue Data: {{.revenueData}}
Expense Data: {{.expenseData}}

Insights:`,
}

// ChatSystem bounds the chat assistant to the supplied transactions.
var ChatSystem = Template{
	Name: "chat_system",
	Vars: []string{"transactions"},
	Text: `You are an expert financial analyst AI assistant for a small business owner. Your goal is to answer the user's questions based on the provided financial data and conversation history. Be helpful, insightful, and clear in your responses. Analyze the provided JSON data of transactions to answer the user's question. The transaction data contains revenue and expenses. Do not make up information if the answer is not in the provided data.

Transaction Data:
{{.transactions}}`,
}

// Render substitutes vars into t. Every declared variable must be supplied
// and no undeclared variable is accepted.
func Render(t Template, vars map[string]string) (string, error) {
	declared := make(map[string]bool, len(t.Vars))
	for _, v := range t.Vars {
		declared[v] = true
		if _, ok := vars[v]; !ok {
			return "", fmt.Errorf("Render %s: missing variable %q", t.Name, v)
		}
	}

	var unknown []string
	for k := range vars {
		if !declared[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", fmt.Errorf("Render %s: undeclared variables %v", t.Name, unknown)
	}

	tmpl, err := template.New(t.Name).Option("missingkey=error").Parse(t.Text)
	if err != nil {
		return "", fmt.Errorf("Render %s: parse: %w", t.Name, err)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("Render %s: execute: %w", t.Name, err)
	}
	return b.String(), nil
}

// BuildTextExtraction renders the text extraction prompt. currentDate must be YYYY-MM-DD.
func BuildTextExtraction(text, currentDate string) (string, error) {
	return Render(TextExtraction, map[string]string{
		"text":        text,
		"currentDate": currentDate,
		"fields":      schema.Transaction.Instructions(),
	})
}

// BuildImageExtraction renders the receipt extraction prompt.
func BuildImageExtraction(currentDate string) (string, error) {
	return Render(ImageExtraction, map[string]string{
		"currentDate": currentDate,
		"fields":      schema.Transaction.Instructions(),
	})
}

// BuildInsight renders the insight prompt from two serialized collections.
func BuildInsight(revenueData, expenseData string) (string, error) {
	return Render(Insight, map[string]string{
		"revenueData": revenueData,
		"expenseData": expenseData,
	})
}

// BuildChatSystem renders the chat system prompt around the financial context.
func BuildChatSystem(transactions string) (string, error) {
	return Render(ChatSystem, map[string]string{
		"transactions": transactions,
	})
}
