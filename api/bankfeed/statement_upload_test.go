package bankfeed

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"NexoCorpERP/api/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintExternalIDStable(t *testing.T) {
	tx := txn("")
	a := FingerprintExternalID(tx)
	b := FingerprintExternalID(tx)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "stmt-")

	// any field change produces a different fingerprint
	changed := tx
	changed.Amount = 10.01
	assert.NotEqual(t, a, FingerprintExternalID(changed))

	changed = tx
	changed.Direction = DirectionReceivable
	assert.NotEqual(t, a, FingerprintExternalID(changed))
}

func TestParseStatementFileDispatch(t *testing.T) {
	csv := []byte("Data;Descrição;Valor\n01/03/2024;Pix;10,00\n")
	txs, err := ParseStatementFile("extrato.csv", csv)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	ofx := []byte("<OFX><STMTTRN><DTPOSTED>20240301</DTPOSTED><TRNAMT>10.00</TRNAMT><FITID>F1</FITID></STMTTRN></OFX>")
	txs, err = ParseStatementFile("extrato.ofx", ofx)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	qif := []byte("!Type:Bank\nD01/03/2024\nT10,00\nPPix\n^\n")
	txs, err = ParseStatementFile("extrato.qif", qif)
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	_, err = ParseStatementFile("extrato.pdf", []byte("%PDF"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func multipartUpload(t *testing.T, field, filename string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	for k, v := range extra {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestImportStatementHandlerPersists(t *testing.T) {
	store := newFakeStore()
	handler := ImportStatementHandler(newTestSyncer(store, &fakeAggregator{}))

	content := []byte("Data;Descrição;Valor\n01/03/2024;Pix recebido;10,00\n02/03/2024;Boleto;-20,00\n")
	body, contentType := multipartUpload(t, "file", "extrato.csv", content, nil)

	r := httptest.NewRequest("POST", constants.RouteImport, body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":2`)
	require.Len(t, store.upserted, 2)
	// fingerprint ids generated for records without a document number
	assert.Contains(t, store.upserted[0].ExternalID, "stmt-")
}

func TestImportStatementHandlerPreview(t *testing.T) {
	store := newFakeStore()
	handler := ImportStatementHandler(newTestSyncer(store, &fakeAggregator{}))

	content := []byte("Data;Descrição;Valor\n01/03/2024;Pix;10,00\n")
	body, contentType := multipartUpload(t, "file", "extrato.csv", content, map[string]string{"persist": "false"})

	r := httptest.NewRequest("POST", constants.RouteImport, body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"preview"`)
	assert.Zero(t, store.upsertCalls)
}

func TestImportStatementHandlerBadFile(t *testing.T) {
	handler := ImportStatementHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	body, contentType := multipartUpload(t, "file", "extrato.csv", []byte("Conta;Agência\n1;2\n"), nil)
	r := httptest.NewRequest("POST", constants.RouteImport, body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestImportStatementHandlerNoFiles(t *testing.T) {
	handler := ImportStatementHandler(newTestSyncer(newFakeStore(), &fakeAggregator{}))

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("persist", "true"))
	require.NoError(t, w.Close())

	r := httptest.NewRequest("POST", constants.RouteImport, &buf)
	r.Header.Set("Content-Type", w.FormDataContentType())
	r.Header.Set("Authorization", "Bearer svc-secret")
	rec := httptest.NewRecorder()
	handler(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportStatementHandlerSegmentField(t *testing.T) {
	store := newFakeStore()
	handler := ImportStatementHandler(newTestSyncer(store, &fakeAggregator{}))

	content := []byte("Data;Descrição;Valor\n01/03/2024;Pix;10,00\n")
	body, contentType := multipartUpload(t, "file", "extrato.csv", content, map[string]string{"segmentId": "seg-3"})

	r := httptest.NewRequest("POST", constants.RouteImport, body)
	r.Header.Set("Content-Type", contentType)
	r.Header.Set("Authorization", "Bearer svc-secret")
	w := httptest.NewRecorder()
	handler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.upserted, 1)
	require.NotNil(t, store.upserted[0].SegmentID)
	assert.Equal(t, "seg-3", *store.upserted[0].SegmentID)
}
