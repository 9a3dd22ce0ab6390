// Package d1 persists listings through the Cloudflare D1 HTTP API. D1 speaks
// SQLite dialect over HTTPS, so the SQL here mirrors the local sqlite adapter;
// only the transport differs.
package d1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/common"
	"github.com/calwatch/calwatch/internal/storage"
)

const apiBase = "https://api.cloudflare.com/client/v4"

// Client wraps the D1 query endpoint with retry and error classification.
type Client struct {
	http   *resty.Client
	config common.D1Config
	retry  *common.RetryPolicy
	logger arbor.ILogger
}

// queryResponse mirrors the D1 REST envelope.
type queryResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Result []QueryResult `json:"result"`
}

// QueryResult is one statement's result set and write metadata.
type QueryResult struct {
	Success bool              `json:"success"`
	Results []json.RawMessage `json:"results"`
	Meta    struct {
		Changes     int64 `json:"changes"`
		LastRowID   int64 `json:"last_row_id"`
		RowsRead    int64 `json:"rows_read"`
		RowsWritten int64 `json:"rows_written"`
	} `json:"meta"`
}

// NewClient creates a D1 API client.
func NewClient(config common.D1Config, retry *common.RetryPolicy, logger arbor.ILogger) *Client {
	if retry == nil {
		retry = common.NewRetryPolicy()
	}

	httpClient := resty.New().
		SetBaseURL(apiBase).
		SetTimeout(config.Timeout.Std()).
		SetAuthToken(config.APIToken).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		config: config,
		retry:  retry,
		logger: logger,
	}
}

// Query executes one parameterized statement and returns the first result
// set. Transient transport and rate-limit failures are retried by policy;
// authentication and schema failures come back wrapped as fatal.
func (c *Client) Query(ctx context.Context, sql string, params ...interface{}) (*QueryResult, error) {
	endpoint := fmt.Sprintf("/accounts/%s/d1/database/%s/query",
		c.config.AccountID, c.config.DatabaseID)

	if params == nil {
		params = []interface{}{}
	}

	var parsed queryResponse
	status, err := c.retry.ExecuteWithStatus(ctx, c.logger, func() (int, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{"sql": sql, "params": params}).
			SetResult(&parsed).
			Post(endpoint)
		if err != nil {
			return 0, err
		}
		if resp.IsError() {
			return resp.StatusCode(), fmt.Errorf("d1 query returned %s", resp.Status())
		}
		return resp.StatusCode(), nil
	})
	if err != nil {
		return nil, c.classify(status, err)
	}

	if !parsed.Success {
		msg := "unknown error"
		if len(parsed.Errors) > 0 {
			msg = parsed.Errors[0].Message
		}
		return nil, c.classifyMessage(msg)
	}
	if len(parsed.Result) == 0 {
		return nil, fmt.Errorf("d1 query returned empty result envelope")
	}

	return &parsed.Result[0], nil
}

// classify maps HTTP-level failures onto the shared taxonomy.
func (c *Client) classify(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return storage.Fatalf("d1 authentication rejected (%d): %v", status, err)
	case http.StatusNotFound:
		return storage.Fatalf("d1 database not found, check account/database ids: %v", err)
	}
	return err
}

// classifyMessage maps D1 statement errors onto the shared taxonomy.
func (c *Client) classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "no such table") ||
		strings.Contains(lower, "no such column") ||
		strings.Contains(lower, "authentication") {
		return storage.Fatalf("d1 statement failed: %s", msg)
	}
	return fmt.Errorf("d1 statement failed: %s", msg)
}
