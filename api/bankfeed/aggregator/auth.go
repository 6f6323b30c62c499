package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiKey returns a cached provider API key, exchanging the client
// credentials for a new one when the cache is cold or expired.
func (c *Client) apiKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cachedKey != "" && time.Now().Before(c.keyExpiresAt) {
		return c.cachedKey, nil
	}

	payload, err := json.Marshal(map[string]string{
		"clientId":     c.clientID,
		"clientSecret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if auth.APIKey == "" {
		return "", &APIError{Status: resp.StatusCode, Body: "auth response missing apiKey"}
	}

	c.cachedKey = auth.APIKey
	c.keyExpiresAt = time.Now().Add(c.keyTTL)
	return c.cachedKey, nil
}

// ClearAPIKeyCache drops the cached key so the next call re-authenticates.
func (c *Client) ClearAPIKeyCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedKey = ""
	c.keyExpiresAt = time.Time{}
}
