package aggregator

import (
	"encoding/json"
	"fmt"
)

// Transaction is one upstream transaction as returned by the open-finance
// provider. Raw keeps the untouched JSON payload so the importer can store
// provider fields we do not model.
type Transaction struct {
	ID          string                 `json:"id"`
	AccountID   string                 `json:"accountId"`
	Date        string                 `json:"date"`
	Description string                 `json:"description"`
	Amount      float64                `json:"amount"`
	Type        string                 `json:"type"`
	Category    string                 `json:"category"`
	Balance     *float64               `json:"balance"`
	Metadata    map[string]interface{} `json:"metadata"`
	Raw         json.RawMessage        `json:"-"`
}

// Account is a bank account under a connected item.
type Account struct {
	ID       string   `json:"id"`
	ItemID   string   `json:"itemId"`
	Type     string   `json:"type"`
	Subtype  string   `json:"subtype"`
	Name     string   `json:"name"`
	Number   string   `json:"number"`
	Balance  *float64 `json:"balance"`
	Currency string   `json:"currencyCode"`
}

// Item is a live connection between an end user and their institution.
type Item struct {
	ID              string                 `json:"id"`
	Status          string                 `json:"status"`
	ExecutionStatus string                 `json:"executionStatus"`
	Connector       *Connector             `json:"connector"`
	Error           map[string]interface{} `json:"error"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt"`
}

// Connector describes one supported institution.
type Connector struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Country   string `json:"country"`
	Type      string `json:"type"`
	ImageURL  string `json:"imageUrl"`
	IsSandbox bool   `json:"isSandbox"`
}

// Webhook is a registered event subscription.
type Webhook struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Event string `json:"event"`
}

// FetchResult carries the full page-merged transaction list for one
// account plus the window it was fetched for.
type FetchResult struct {
	Transactions []Transaction
	StartDate    string
	EndDate      string
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator API returned status %d: %s", e.Status, e.Body)
}

type pageEnvelope struct {
	Results    []json.RawMessage `json:"results"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	Total      int               `json:"total"`
}

type authResponse struct {
	APIKey string `json:"apiKey"`
}

type createItemRequest struct {
	ConnectorID int               `json:"connectorId"`
	Parameters  map[string]string `json:"parameters"`
	WebhookURL  string            `json:"webhookUrl,omitempty"`
}

type createWebhookRequest struct {
	Event string `json:"event"`
	URL   string `json:"url"`
}
