package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"NexoCorpERP/internal/config"
)

// Client talks to the open-finance aggregator REST API. It authenticates
// with client credentials, caches the short-lived API key, and retries a
// request once with a fresh key when the provider answers 401.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	httpClient   *http.Client

	mu           sync.Mutex
	cachedKey    string
	keyExpiresAt time.Time
	keyTTL       time.Duration
}

// NewClientFromEnv builds a client from AGGREGATOR_CLIENT_ID,
// AGGREGATOR_CLIENT_SECRET, AGGREGATOR_BASE_URL and
// AGGREGATOR_APIKEY_TTL_SECS.
func NewClientFromEnv() (*Client, error) {
	clientID := os.Getenv("AGGREGATOR_CLIENT_ID")
	clientSecret := os.Getenv("AGGREGATOR_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("AGGREGATOR_CLIENT_ID and AGGREGATOR_CLIENT_SECRET must be set")
	}

	baseURL := os.Getenv("AGGREGATOR_BASE_URL")
	if baseURL == "" {
		baseURL = config.DefaultAggregatorBaseURL
	}

	ttl := config.DefaultAPIKeyCacheTTL
	if raw := os.Getenv("AGGREGATOR_APIKEY_TTL_SECS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			ttl = v
		}
	}
	if ttl < config.MinAPIKeyCacheTTL {
		ttl = config.MinAPIKeyCacheTTL
	}

	return NewClient(clientID, clientSecret, baseURL, time.Duration(ttl)*time.Second), nil
}

func NewClient(clientID, clientSecret, baseURL string, keyTTL time.Duration) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		keyTTL:       keyTTL,
	}
}

// doRequest performs one authenticated call. A 401 clears the key cache
// and retries exactly once with a fresh key.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
	}

	retried := false
	for {
		key, err := c.apiKey(ctx)
		if err != nil {
			return nil, err
		}

		endpoint := c.baseURL + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", key)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response for %s %s: %w", method, path, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			c.ClearAPIKeyCache()
			retried = true
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
		}
		return respBody, nil
	}
}

// ListTransactions fetches every page of transactions for one account
// within [from, to]. Pages are merged before returning.
func (c *Client) ListTransactions(ctx context.Context, accountID, from, to string, pageSize int) (*FetchResult, error) {
	if pageSize <= 0 || pageSize > config.MaxFetchLimit {
		pageSize = config.DefaultFetchLimit
	}

	result := &FetchResult{StartDate: from, EndDate: to}
	page := 1
	for {
		query := url.Values{}
		query.Set("accountId", accountID)
		query.Set("from", from)
		query.Set("to", to)
		query.Set("pageSize", strconv.Itoa(pageSize))
		query.Set("page", strconv.Itoa(page))

		body, err := c.doRequest(ctx, http.MethodGet, "/transactions", query, nil)
		if err != nil {
			return nil, err
		}

		var envelope pageEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode transactions page %d: %w", page, err)
		}

		for _, raw := range envelope.Results {
			var tx Transaction
			if err := json.Unmarshal(raw, &tx); err != nil {
				return nil, fmt.Errorf("decode transaction on page %d: %w", page, err)
			}
			tx.Raw = raw
			result.Transactions = append(result.Transactions, tx)
		}

		if envelope.TotalPages == 0 || page >= envelope.TotalPages {
			break
		}
		page++
	}

	return result, nil
}

// ListAccounts returns the accounts under one connected item.
func (c *Client) ListAccounts(ctx context.Context, itemID string) ([]Account, error) {
	query := url.Values{}
	query.Set("itemId", itemID)

	body, err := c.doRequest(ctx, http.MethodGet, "/accounts", query, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results []Account `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return envelope.Results, nil
}

// GetItem fetches one connection by id.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), nil, nil)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return &item, nil
}

// CreateItem opens a new connection against a connector using the end
// user's institution credentials.
func (c *Client) CreateItem(ctx context.Context, connectorID int, parameters map[string]string, webhookURL string) (*Item, error) {
	payload := createItemRequest{
		ConnectorID: connectorID,
		Parameters:  parameters,
		WebhookURL:  webhookURL,
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/items", nil, payload)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode created item: %w", err)
	}
	return &item, nil
}

// ListConnectors returns supported institutions, optionally filtered by
// country code and name.
func (c *Client) ListConnectors(ctx context.Context, country, name string) ([]Connector, error) {
	query := url.Values{}
	if country != "" {
		query.Set("countries", country)
	}
	if name != "" {
		query.Set("name", name)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/connectors", query, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Results []Connector `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode connectors: %w", err)
	}
	return envelope.Results, nil
}

// CreateWebhook subscribes url to an event ("all" for every event).
func (c *Client) CreateWebhook(ctx context.Context, event, hookURL string) (*Webhook, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/webhooks", nil, createWebhookRequest{Event: event, URL: hookURL})
	if err != nil {
		return nil, err
	}
	var hook Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	return &hook, nil
}

// ListWebhooks returns the current event subscriptions.
func (c *Client) ListWebhooks(ctx context.Context) ([]Webhook, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/webhooks", nil, nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Results []Webhook `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhooks: %w", err)
	}
	return envelope.Results, nil
}
