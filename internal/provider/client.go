package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/postwing/postwing/internal/models"
)

// ErrAuthExpired reports that the provider rejected the account credential.
// It is never retried locally; the caller triggers re-authentication.
var ErrAuthExpired = errors.New("provider rejected credential")

// TransientError wraps provider failures that are safe to retry on a later
// run: network errors and 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// HTTPClient talks to the remote mail API over its REST surface.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client against provider.api_url.
func NewHTTPClient() *HTTPClient {
	baseURL := viper.GetString("provider.api_url")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) StartSync(ctx context.Context, account models.Account) (StartSyncResponse, error) {
	var out StartSyncResponse
	url := fmt.Sprintf("%s/v1/email/sync", c.baseURL)
	if err := c.do(ctx, http.MethodPost, url, account.AccessToken, nil, nil, &out); err != nil {
		return StartSyncResponse{}, fmt.Errorf("start sync: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) FetchUpdated(ctx context.Context, account models.Account, params FetchParams) (UpdatedPage, error) {
	query := map[string]string{}
	if params.DeltaToken != "" {
		query["deltaToken"] = params.DeltaToken
	}
	if params.PageToken != "" {
		query["pageToken"] = params.PageToken
	}

	var out UpdatedPage
	url := fmt.Sprintf("%s/v1/email/sync/updated", c.baseURL)
	if err := c.do(ctx, http.MethodGet, url, account.AccessToken, query, nil, &out); err != nil {
		return UpdatedPage{}, fmt.Errorf("fetch updated: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, account models.Account, msg OutgoingMessage) (SendResult, error) {
	var out SendResult
	url := fmt.Sprintf("%s/v1/email/messages", c.baseURL)
	query := map[string]string{"returnIds": "true"}
	if err := c.do(ctx, http.MethodPost, url, account.AccessToken, query, msg, &out); err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) do(ctx context.Context, method, url, token string, query map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(query) > 0 {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(payload), ErrAuthExpired)
	case resp.StatusCode >= 500:
		payload, _ := io.ReadAll(resp.Body)
		return &TransientError{Op: method + " " + url, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(payload))}
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(payload))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
