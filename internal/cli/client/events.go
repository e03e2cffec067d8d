// Package client is the HTTP client for the ingest service events API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dossier-systems/dossier-ingest/internal/models"
	"github.com/dossier-systems/dossier-ingest/internal/webhook"
)

type EventsClient struct {
	baseURL string
	client  *http.Client
}

func NewEventsClient(baseURL string) *EventsClient {
	return &EventsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// EnqueueResponse is the intake endpoint's reply.
type EnqueueResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

// SendEvent signs and posts one webhook event.
func (c *EventsClient) SendEvent(secret string, event map[string]interface{}) (*EnqueueResponse, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	validator, err := webhook.NewValidator(secret)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", c.baseURL+"/events", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", validator.Sign(body))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("enqueue failed with status %d: %s", resp.StatusCode, detail)
	}

	var out EnqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the lifecycle record for one message.
func (c *EventsClient) Status(id string) (*models.QueueMessage, error) {
	resp, err := c.client.Get(c.baseURL + "/events/status/" + id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, fmt.Errorf("message %s not found", id)
	default:
		return nil, fmt.Errorf("status query failed with status %d", resp.StatusCode)
	}

	var msg models.QueueMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// StatsResponse is the stats endpoint's reply.
type StatsResponse struct {
	Counts models.QueueStats `json:"counts"`
	Total  int64             `json:"total"`
}

// Stats fetches per-status queue counts.
func (c *EventsClient) Stats() (*StatsResponse, error) {
	resp, err := c.client.Get(c.baseURL + "/events/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stats query failed with status %d", resp.StatusCode)
	}

	var out StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReindexResponse is the bulk re-index endpoint's reply.
type ReindexResponse struct {
	Status  string `json:"status"`
	Doctype string `json:"doctype"`
	Queued  int    `json:"queued"`
	Failed  int    `json:"failed"`
}

// Reindex queues an update event for every document of a doctype.
func (c *EventsClient) Reindex(doctype string) (*ReindexResponse, error) {
	resp, err := c.client.Post(c.baseURL+"/events/reindex/"+url.PathEscape(doctype), "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("re-index failed with status %d: %s", resp.StatusCode, detail)
	}

	var out ReindexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Replay re-drives a failed or dead-lettered message.
func (c *EventsClient) Replay(id string) (*EnqueueResponse, error) {
	resp, err := c.client.Post(c.baseURL+"/events/replay/"+id, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return nil, fmt.Errorf("message %s not found", id)
	case http.StatusConflict:
		return nil, fmt.Errorf("message %s is not in a replayable state", id)
	default:
		return nil, fmt.Errorf("replay failed with status %d", resp.StatusCode)
	}

	var out EnqueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
