package constants

import "fmt"

// ============================================================================
// AUTHENTICATION & SESSION ERRORS
// ============================================================================

const (
	ErrMissingUserID  = "user_id is required in the request"
	ErrInvalidSession = "Your session has expired or is invalid. Please login again"
	ErrUnauthorized   = "You are not authorized to perform this action"
)

// ============================================================================
// BANK-FEED SYNC ERRORS
// ============================================================================

const (
	ErrSyncTargetRequired   = "Supply a connectionId or configure a default connection"
	ErrSyncUnauthorized     = "Sync requires a service credential or a valid user token"
	ErrAggregatorFetch      = "Failed to fetch transactions from the aggregator"
	ErrAggregatorConnection = "Failed to reach the open-banking aggregator"
	ErrConnectionNotFound   = "Bank connection not found at the aggregator"
	ErrConnectionIDRequired = "connectionId is required for this event"
	ErrConnectorRequired    = "connectorRef and credentials are required"
)

// ============================================================================
// FILE IMPORT ERRORS
// ============================================================================

const (
	ErrFileUploadFailed  = "File upload failed. Please check the file format and try again"
	ErrInvalidFileFormat = "Invalid file format. Please upload a valid CSV, OFX, QIF or Excel file"
	ErrFileParsingFailed = "Failed to parse file contents. Please check the file format"
	ErrEmptyFile         = "Uploaded file is empty"
	ErrInvalidHeaders    = "File has invalid or missing column headers"
	ErrInvalidDataRow    = "Invalid data found in row %d: %s"
)

// ============================================================================
// DATABASE OPERATION ERRORS
// ============================================================================

const (
	ErrDatabaseConnection = "Database connection failed. Please try again later"
	ErrQueryFailed        = "Database query failed. Please contact support if this persists"
	ErrDatabaseScanFailed = "Failed to read database results"
)

// ============================================================================
// GENERAL ERRORS
// ============================================================================

const (
	ErrInternalServer = "Internal server error. Please contact support"
	ErrInvalidRequest = "Invalid request. Please check your input"
	ErrNoDataFound    = "No data found matching your criteria"
)

// ============================================================================
// SUCCESS MESSAGES
// ============================================================================

const (
	SuccessUploaded     = "File processed successfully. %d transactions parsed"
	MsgNoNewTransaction = "no new transactions in period"
	MsgWebhookReceived  = "Webhook received"
)

// FormatError formats an error message with additional context
func FormatError(baseError string, context ...interface{}) string {
	if len(context) == 0 {
		return baseError
	}
	return fmt.Sprintf(baseError, context...)
}

// FormatRowError formats an error for a specific data row
func FormatRowError(rowNum int, reason string) string {
	return fmt.Sprintf(ErrInvalidDataRow, rowNum, reason)
}
