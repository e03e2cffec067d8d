// Package frappe is an HTTP client for the Frappe REST API, the external
// source system documents are ingested from.
package frappe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/ingestion"
)

// Client talks to a Frappe instance using token authentication.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
}

// NewClient creates a Client for the given Frappe instance.
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: timeout},
	}
}

// documentResponse is the Frappe resource API envelope.
type documentResponse struct {
	Data map[string]interface{} `json:"data"`
}

// FetchDocument retrieves a single document, optionally restricted to the
// given fields. Implements ingestion.SourceClient.
func (c *Client) FetchDocument(ctx context.Context, sourceType, sourceID string, fields []string) (map[string]interface{}, error) {
	endpoint := fmt.Sprintf("%s/api/resource/%s/%s",
		c.baseURL, url.PathEscape(sourceType), url.PathEscape(sourceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if len(fields) > 0 {
		encoded, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode fields: %w", err)
		}
		q := req.URL.Query()
		q.Set("fields", string(encoded))
		req.URL.RawQuery = q.Encode()
	}

	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", sourceType, sourceID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, ingestion.ErrDocumentNotFound
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s/%s: status %d: %s", sourceType, sourceID, resp.StatusCode, body)
	}

	var doc documentResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Data == nil {
		return nil, ingestion.ErrDocumentNotFound
	}
	return doc.Data, nil
}

// listResponse is the Frappe list API envelope.
type listResponse struct {
	Data []struct {
		Name string `json:"name"`
	} `json:"data"`
}

// ListDocuments returns the names of every document of the given doctype.
// Used for bulk re-indexing; pagination is disabled so one call enumerates
// the full doctype.
func (c *Client) ListDocuments(ctx context.Context, sourceType string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/resource/%s", c.baseURL, url.PathEscape(sourceType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	q := req.URL.Query()
	q.Set("fields", `["name"]`)
	// 0 disables Frappe's default page size of 20.
	q.Set("limit_page_length", "0")
	req.URL.RawQuery = q.Encode()

	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sourceType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("list %s: status %d: %s", sourceType, resp.StatusCode, body)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode document list: %w", err)
	}

	names := make([]string, 0, len(list.Data))
	for _, d := range list.Data {
		if d.Name != "" {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Ping verifies connectivity and credentials with a cheap method call.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/method/ping", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, c.apiSecret))

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: status %d", resp.StatusCode)
	}
	return nil
}
