// Package client is the sync layer between callers and the data service:
// a thin HTTP client plus the event, friends, and search layers that merge
// raw table reads into view models and keep the query cache coherent.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"bailacheck/internal/apperr"
	"bailacheck/internal/dto"
)

// Client talks to the data service. All failures come back tagged: network
// failures as apperr.KindNetwork, service errors mapped from the response
// status and code.
type Client struct {
	baseURL string
	userID  string
	httpc   *http.Client
	log     *zerolog.Logger
}

func New(baseURL, userID string, log *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		userID:  userID,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests and for
// routing through the offline proxy.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpc = h
	return c
}

// UserID is the authenticated user, empty when anonymous.
func (c *Client) UserID() string { return c.userID }

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindUnknown, "failed to encode request", false, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, "failed to build request", false, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, "Network error. Please check your connection and try again.", true, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Status string          `json:"status"`
		Error  *dto.Error      `json:"error"`
		Data   json.RawMessage `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Wrap(apperr.KindNetwork, "Network error. Please check your connection and try again.", true, err)
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return apperr.FromStatus(resp.StatusCode, "", fmt.Sprintf("request failed with status %d", resp.StatusCode))
		}
		return apperr.Wrap(apperr.KindUnknown, "failed to decode response", false, err)
	}

	if envelope.Error != nil {
		return apperr.FromStatus(resp.StatusCode, envelope.Error.Code, envelope.Error.Desc)
	}
	if resp.StatusCode >= 400 {
		return apperr.FromStatus(resp.StatusCode, "", fmt.Sprintf("request failed with status %d", resp.StatusCode))
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return apperr.Wrap(apperr.KindUnknown, "failed to decode response data", false, err)
		}
	}
	return nil
}
