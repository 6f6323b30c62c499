package bankfeed

import (
	"encoding/json"
	"testing"

	"NexoCorpERP/api/bankfeed/aggregator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAggregatorTransaction(t *testing.T) {
	raw := json.RawMessage(`{"id":"tx-1","providerField":"kept"}`)
	balance := 1500.505
	tx := aggregator.Transaction{
		ID:          " tx-1 ",
		AccountID:   "acc-9",
		Date:        "2024-03-15T10:22:00Z",
		Description: "  Pagamento \t de  boleto\n",
		Amount:      -123.456,
		Type:        "DEBIT",
		Category:    "Utilities",
		Balance:     &balance,
		Raw:         raw,
	}

	rec := NormalizeAggregatorTransaction(tx, "conn-1", nil)

	assert.Equal(t, "tx-1", rec.ExternalID)
	require.NotNil(t, rec.ConnectionID)
	assert.Equal(t, "conn-1", *rec.ConnectionID)
	require.NotNil(t, rec.AccountID)
	assert.Equal(t, "acc-9", *rec.AccountID)
	assert.Equal(t, "2024-03-15", rec.Date)
	assert.Equal(t, "Pagamento de boleto", rec.Description)
	assert.Equal(t, 123.46, rec.Amount)
	assert.Equal(t, DirectionPayable, rec.Direction)
	assert.Equal(t, TypeDespesa, rec.Type)
	assert.Equal(t, StatusPosted, rec.Status)
	require.NotNil(t, rec.Category)
	assert.Equal(t, "Utilities", *rec.Category)
	require.NotNil(t, rec.Balance)
	assert.Equal(t, 1500.51, *rec.Balance)
	assert.Equal(t, raw, rec.Raw)
}

func TestNormalizeTypeLabelWinsOverSign(t *testing.T) {
	// a credit labeled transaction with a negative amount stays receivable
	tx := aggregator.Transaction{ID: "tx-2", Amount: -50, Type: "CREDIT"}
	rec := NormalizeAggregatorTransaction(tx, "conn-1", nil)
	assert.Equal(t, DirectionReceivable, rec.Direction)
	assert.Equal(t, TypeReceita, rec.Type)
	assert.Equal(t, 50.00, rec.Amount)
}

func TestNormalizeSignFallback(t *testing.T) {
	cases := []struct {
		amount float64
		label  string
		want   Direction
	}{
		{-10, "", DirectionPayable},
		{10, "", DirectionReceivable},
		{-10, "something-unknown", DirectionPayable},
		{10, "entrada", DirectionReceivable},
		{10, "saida", DirectionPayable},
	}
	for _, tc := range cases {
		rec := NormalizeAggregatorTransaction(aggregator.Transaction{ID: "x", Amount: tc.amount, Type: tc.label}, "c", nil)
		assert.Equal(t, tc.want, rec.Direction, "amount=%v label=%q", tc.amount, tc.label)
	}
}

func TestNormalizeAccountIDFromMetadata(t *testing.T) {
	tx := aggregator.Transaction{
		ID:       "tx-3",
		Metadata: map[string]interface{}{"accountId": "meta-acc", "institution": "Banco Alfa"},
	}
	rec := NormalizeAggregatorTransaction(tx, "conn-1", nil)
	require.NotNil(t, rec.AccountID)
	assert.Equal(t, "meta-acc", *rec.AccountID)
	require.NotNil(t, rec.Institution)
	assert.Equal(t, "Banco Alfa", *rec.Institution)
}

func TestNormalizeBlankDescriptionGetsPlaceholder(t *testing.T) {
	rec := NormalizeAggregatorTransaction(aggregator.Transaction{ID: "tx-4", Description: "  \t "}, "conn-1", nil)
	assert.Equal(t, DefaultDescription, rec.Description)
}

func TestNormalizeSegmentPropagates(t *testing.T) {
	segment := "seg-7"
	rec := NormalizeAggregatorTransaction(aggregator.Transaction{ID: "tx-5"}, "conn-1", &segment)
	require.NotNil(t, rec.SegmentID)
	assert.Equal(t, "seg-7", *rec.SegmentID)
}

func TestSanitizeDescription(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeDescription("  a \n b\t\tc "))
	assert.Equal(t, "a b", sanitizeDescription("a\t\tb"))
	assert.Equal(t, "a b", sanitizeDescription("a\nb"))
	assert.Equal(t, DefaultDescription, sanitizeDescription("\x00\x01"))
}
