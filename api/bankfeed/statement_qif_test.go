package bankfeed

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQIF = `!Type:Bank
D15/03/2024
T-1234,56
PPagamento fornecedor
MParcela 3 de 12
NDOC-77
^
D16/03/2024
T500,00
PRecebimento cliente
^
D17/03/2024
T0,00
^`

func TestParseQIFStatement(t *testing.T) {
	txs, err := ParseQIFStatement(sampleQIF)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, "2024-03-15", txs[0].Date)
	assert.Equal(t, "Pagamento fornecedor", txs[0].Description)
	assert.Equal(t, 1234.56, txs[0].Amount)
	assert.Equal(t, DirectionPayable, txs[0].Direction)
	assert.Equal(t, "DOC-77", txs[0].ExternalID)

	assert.Equal(t, DirectionReceivable, txs[1].Direction)
	assert.Equal(t, 500.00, txs[1].Amount)
	assert.Empty(t, txs[1].ExternalID)
}

func TestParseQIFStatementMemoFallback(t *testing.T) {
	content := "!Type:Bank\nD01/04/2024\nT-10,00\nMTarifa mensal\n^\n"

	txs, err := ParseQIFStatement(content)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Tarifa mensal", txs[0].Description)
}

func TestParseQIFStatementMissingFieldsSkipped(t *testing.T) {
	content := "!Type:Bank\nPSem data nem valor\n^\nD02/04/2024\nT75,00\n^\n"

	txs, err := ParseQIFStatement(content)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, 75.00, txs[0].Amount)
}

func TestParseQIFStatementNotQIF(t *testing.T) {
	_, err := ParseQIFStatement("Data;Valor\n01/01/2024;10,00")
	require.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestParseQIFStatementEmpty(t *testing.T) {
	_, err := ParseQIFStatement("!Type:Bank\n^\n")
	require.True(t, errors.Is(err, ErrEmptyStatement))
}
