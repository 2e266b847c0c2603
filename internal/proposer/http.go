package proposer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gzhole/agentlock/internal/action"
)

const maxResponseBytes = 1 << 20

// HTTPClient posts log records to a proposer service and decodes the
// candidate it answers with.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client for url (e.g. http://llm-agent:8001/propose_action).
// A nil client uses http.DefaultClient; the call deadline comes from ctx.
func NewHTTPClient(url string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{url: url, client: client}
}

func (c *HTTPClient) Propose(ctx context.Context, rec LogRecord) (*action.Candidate, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode log record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proposer request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read proposer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: proposer HTTP %d: %s", ErrUnusable, resp.StatusCode, bytes.TrimSpace(data))
	}

	cand, err := action.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}
	return cand, nil
}
