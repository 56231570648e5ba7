package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/bizledger/internal/domain"
	"github.com/dvloznov/bizledger/internal/schema"
	"gopkg.in/yaml.v3"
)

// transactionsFile is the on-disk shape: either a bare list or {transactions: [...]}.
type transactionsFile struct {
	Transactions []domain.Transaction `yaml:"transactions"`
}

// loadTransactionsFile reads YAML or JSON (JSON is valid YAML) and validates each record.
func loadTransactionsFile(path string) ([]domain.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseTransactions(data)
}

func parseTransactions(data []byte) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if isYAMLList(data) {
		if err := yaml.Unmarshal(data, &txs); err != nil {
			return nil, fmt.Errorf("parse transactions: %w", err)
		}
	} else {
		var f transactionsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse transactions: %w", err)
		}
		txs = f.Transactions
	}

	for i := range txs {
		tx := &txs[i]
		tx.Kind = domain.Kind(strings.ToLower(string(tx.Kind)))
		if tx.ID == "" {
			tx.ID = fmt.Sprintf("local-%d", i+1)
		}
		err := schema.Check(domain.TransactionDraft{
			Description: tx.Description,
			Category:    tx.Category,
			Amount:      tx.Amount,
			Kind:        tx.Kind,
			Date:        tx.Date,
		})
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
	}
	return txs, nil
}

func isYAMLList(data []byte) bool {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return false
	}
	return node.Content[0].Kind == yaml.SequenceNode
}
