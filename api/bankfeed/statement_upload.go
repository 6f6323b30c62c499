package bankfeed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"NexoCorpERP/api/constants"
	"NexoCorpERP/internal/logger"

	"github.com/extrame/xls"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

func statementFileExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// ParseStatementFile dispatches on the file extension. XML statements are
// routed through the OFX parser since banks ship OFX 2.x with an .xml
// extension.
func ParseStatementFile(filename string, data []byte) ([]CanonicalTransaction, error) {
	switch statementFileExt(filename) {
	case ".csv", ".txt":
		return ParseCSVStatement(string(data))
	case ".ofx", ".xml":
		return ParseOFXStatement(string(data))
	case ".qif":
		return ParseQIFStatement(string(data))
	case ".xlsx":
		rows, err := parseXLSXRows(data)
		if err != nil {
			return nil, &FormatError{Reason: "could not read xlsx workbook: " + err.Error()}
		}
		return statementRowsFromSheet(rows)
	case ".xls":
		rows, err := parseXLSRows(data)
		if err != nil {
			return nil, &FormatError{Reason: "could not read xls workbook: " + err.Error()}
		}
		return statementRowsFromSheet(rows)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func parseXLSXRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	return f.GetRows(sheet)
}

func parseXLSRows(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	rows := book.ReadAllCells(50000)
	if len(rows) == 0 {
		return nil, fmt.Errorf("workbook has no rows")
	}
	return rows, nil
}

func statementRowsFromSheet(rows [][]string) ([]CanonicalTransaction, error) {
	if len(rows) < 2 {
		return nil, &FormatError{Reason: "statement needs a header line and at least one data row"}
	}
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return parseStatementRows(headers, rows[1:])
}

// FingerprintExternalID derives a stable id for statement records that
// carry no document number, so re-importing the same file updates instead
// of duplicating.
func FingerprintExternalID(tx CanonicalTransaction) string {
	payload := fmt.Sprintf("%s|%.2f|%s|%s", tx.Date, tx.Amount, tx.Direction, tx.Description)
	sum := sha256.Sum256([]byte(payload))
	return "stmt-" + hex.EncodeToString(sum[:16])
}

// ImportStatementHandler ingests uploaded statement files. With
// persist=true (the default) parsed records go through the same dedup and
// upsert path as the aggregator sync; persist=false returns a preview.
func ImportStatementHandler(s *Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := s.Authorize(r)
		if err != nil {
			writeFeedError(w, err)
			return
		}

		if err := r.ParseMultipartForm(constants.MaxUploadBytes); err != nil {
			writeFeedError(w, &BadRequestError{Reason: "failed to parse multipart form"})
			return
		}
		files := r.MultipartForm.File["file"]
		if len(files) == 0 {
			writeFeedError(w, &BadRequestError{Reason: "no files uploaded"})
			return
		}

		persist := r.FormValue("persist") != "false"
		segment := formSegment(r, s, caller)

		batches := make([]map[string]interface{}, 0, len(files))
		for _, header := range files {
			batch, err := importOneStatement(r, s, header, persist, segment)
			if err != nil {
				writeFeedError(w, err)
				return
			}
			batches = append(batches, batch)
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"batches": batches,
		})
	}
}

func importOneStatement(r *http.Request, s *Syncer, header *multipart.FileHeader, persist bool, segment *string) (map[string]interface{}, error) {
	file, err := header.Open()
	if err != nil {
		return nil, &BadRequestError{Reason: "failed to open file: " + header.Filename}
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return nil, &BadRequestError{Reason: "failed to read file: " + header.Filename}
	}

	records, err := ParseStatementFile(header.Filename, data)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	for i := range records {
		if strings.TrimSpace(records[i].ExternalID) == "" {
			records[i].ExternalID = FingerprintExternalID(records[i])
		}
		records[i].SegmentID = segment
		if records[i].Raw == nil {
			if raw, err := json.Marshal(map[string]string{"source": "file", "batchId": batchID, "filename": header.Filename}); err == nil {
				records[i].Raw = raw
			}
		}
	}

	batch := map[string]interface{}{
		"batchId":  batchID,
		"filename": header.Filename,
		"parsed":   len(records),
	}

	if persist {
		result, err := UpsertBatch(r.Context(), s.Store, records)
		if err != nil {
			return nil, err
		}
		batch["imported"] = result.Inserted
		batch["updated"] = result.Updated
		logger.Audit(fmt.Sprintf("statement import %s: %s parsed=%d imported=%d updated=%d",
			batchID, header.Filename, len(records), result.Inserted, result.Updated))
	} else {
		batch["preview"] = records
	}
	return batch, nil
}

func formSegment(r *http.Request, s *Syncer, caller Caller) *string {
	if v := strings.TrimSpace(r.FormValue("segmentId")); v != "" {
		return &v
	}
	if caller.Scope == "user" && caller.UserID != "" {
		if segment, err := s.Store.UserSegment(r.Context(), caller.UserID); err == nil {
			return segment
		}
	}
	return nil
}
