package main

import (
	"strings"
	"testing"

	"github.com/dvloznov/bizledger/internal/domain"
)

func TestParseTransactions(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "yaml list",
			data: `
- type: expense
  date: 2024-06-01
  amount: 150
  description: Software subscription
  category: Software
- type: Revenue
  date: 2024-06-02
  amount: 800
  description: Logo design
  category: Client Work
`,
		},
		{
			name: "yaml document",
			data: `
transactions:
  - {type: expense, date: 2024-06-01, amount: 150, description: Software subscription, category: Software}
  - {type: revenue, date: 2024-06-02, amount: 800, description: Logo design, category: Client Work}
`,
		},
		{
			name: "json list",
			data: `[{"type":"expense","date":"2024-06-01","amount":150,"description":"Software subscription","category":"Software"},
{"type":"revenue","date":"2024-06-02","amount":800,"description":"Logo design","category":"Client Work"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs, err := parseTransactions([]byte(tt.data))
			if err != nil {
				t.Fatalf("parseTransactions: %v", err)
			}
			if len(txs) != 2 {
				t.Fatalf("got %d transactions", len(txs))
			}
			if txs[0].Kind != domain.KindExpense || txs[0].Date.String() != "2024-06-01" || txs[0].Amount != 150 {
				t.Errorf("txs[0] = %+v", txs[0])
			}
			if txs[1].Kind != domain.KindRevenue || txs[1].ID != "local-2" {
				t.Errorf("txs[1] = %+v", txs[1])
			}
		})
	}
}

func TestParseTransactions_Invalid(t *testing.T) {
	_, err := parseTransactions([]byte(`- {type: transfer, date: 2024-06-01, amount: 1, description: x, category: y}`))
	if err == nil || !strings.Contains(err.Error(), "transaction 1") {
		t.Errorf("error = %v", err)
	}
}

func TestSniffMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := sniffMIME(png); got != "image/png" {
		t.Errorf("sniffMIME(png) = %q", got)
	}
	if got := sniffMIME([]byte("%PDF-1.7\n")); got != "application/pdf" {
		t.Errorf("sniffMIME(pdf) = %q", got)
	}
}
