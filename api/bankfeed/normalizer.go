package bankfeed

import (
	"strings"
	"unicode"

	"NexoCorpERP/api/bankfeed/aggregator"

	"github.com/shopspring/decimal"
)

var (
	creditTypeTokens = []string{
		"credit", "income", "inflow", "entrada", "receita", "deposit", "receipt",
	}
	debitTypeTokens = []string{
		"debit", "expense", "outflow", "saida", "saída", "despesa",
		"withdrawal", "payment",
	}
)

// NormalizeAggregatorTransaction converts one upstream transaction into the
// canonical record persisted by the upsert engine. The aggregator's type
// label wins over the amount sign; the sign is the fallback when the label
// is absent or unrecognized.
func NormalizeAggregatorTransaction(tx aggregator.Transaction, connectionID string, segmentID *string) CanonicalTransaction {
	amount := decimal.NewFromFloat(tx.Amount)
	direction := mapTypeToDirection(tx.Type, amount)

	connID := connectionID
	record := CanonicalTransaction{
		ExternalID:   strings.TrimSpace(tx.ID),
		ConnectionID: &connID,
		AccountID:    resolveAccountID(tx),
		Date:         normalizeTxnDate(tx.Date),
		Description:  sanitizeDescription(tx.Description),
		Amount:       amount.Abs().Round(2).InexactFloat64(),
		Direction:    direction,
		Type:         legacyType(direction),
		Status:       StatusPosted,
		Category:     nilIfBlank(tx.Category),
		Institution:  inferInstitution(tx),
		SegmentID:    segmentID,
		Raw:          tx.Raw,
	}

	if tx.Balance != nil {
		b := decimal.NewFromFloat(*tx.Balance).Round(2).InexactFloat64()
		record.Balance = &b
	}

	return record
}

func mapTypeToDirection(typeLabel string, amount decimal.Decimal) Direction {
	normalized := strings.ToLower(strings.TrimSpace(typeLabel))
	if normalized != "" {
		for _, token := range creditTypeTokens {
			if strings.Contains(normalized, token) {
				return DirectionReceivable
			}
		}
		for _, token := range debitTypeTokens {
			if strings.Contains(normalized, token) {
				return DirectionPayable
			}
		}
	}
	if amount.IsNegative() {
		return DirectionPayable
	}
	return DirectionReceivable
}

// resolveAccountID prefers the transaction's own account reference, then
// the aggregator metadata, and leaves the column NULL otherwise.
func resolveAccountID(tx aggregator.Transaction) *string {
	if v := strings.TrimSpace(tx.AccountID); v != "" {
		return &v
	}
	if tx.Metadata != nil {
		if raw, ok := tx.Metadata["accountId"]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				v := strings.TrimSpace(s)
				return &v
			}
		}
	}
	return nil
}

func inferInstitution(tx aggregator.Transaction) *string {
	if tx.Metadata != nil {
		if raw, ok := tx.Metadata["institution"]; ok {
			if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
				v := strings.TrimSpace(s)
				return &v
			}
		}
	}
	return nil
}

// normalizeTxnDate trims the timestamp portion of ISO datetimes so the
// stored date column is always plain YYYY-MM-DD.
func normalizeTxnDate(s string) string {
	cleaned := strings.TrimSpace(s)
	if len(cleaned) >= 10 && cleaned[4] == '-' && cleaned[7] == '-' {
		return cleaned[:10]
	}
	if iso, ok := parseStatementDate(cleaned); ok {
		return iso
	}
	return cleaned
}

// sanitizeDescription trims, collapses internal whitespace, and strips
// control characters. Empty descriptions fall back to the placeholder so
// the dedup fingerprint stays stable.
func sanitizeDescription(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.TrimSpace(s) {
		// tab and newline are both control and space; space wins so word
		// boundaries survive the control strip
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return DefaultDescription
	}
	return out
}

func nilIfBlank(s string) *string {
	if v := strings.TrimSpace(s); v != "" {
		return &v
	}
	return nil
}
