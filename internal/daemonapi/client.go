package daemonapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sheetengine/sheetengine/internal/sheetdb"
)

// DefaultGatewayURL is the default daemon gateway address.
const DefaultGatewayURL = "http://localhost:8765"

// GatewayTimeout bounds a single exec_batch round trip.
const GatewayTimeout = 30 * time.Second

// ErrGatewayUnavailable is returned when the daemon cannot be reached
// at all (connection refused, DNS failure, timeout before any
// response).
var ErrGatewayUnavailable = fmt.Errorf("daemon gateway unavailable")

// Client is a thin HTTP wrapper satisfying sheetdb.ExecBatcher: every
// call becomes one POST /exec_batch round trip against the daemon.
type Client struct {
	gatewayURL string
	httpClient *http.Client
}

// NewClient creates a client pointed at the default gateway address.
func NewClient() *Client {
	return &Client{
		gatewayURL: DefaultGatewayURL,
		httpClient: &http.Client{Timeout: GatewayTimeout},
	}
}

// SetGatewayURL overrides the gateway address.
func (c *Client) SetGatewayURL(url string) {
	c.gatewayURL = url
}

// CheckHealth checks that the daemon is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.gatewayURL+"/health", nil)
	if err != nil {
		return ErrGatewayUnavailable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrGatewayUnavailable
	}
	return nil
}

// ExecBatch satisfies sheetdb.ExecBatcher: it POSTs the statements to
// /exec_batch, tagged with a fresh request-correlation id, and returns
// the aggregate rows-affected count, or an error derived from the
// response body / transport failure.
func (c *Client) ExecBatch(dbName string, stmts []sheetdb.Statement) (int64, error) {
	wireStmts := make([]execStatement, len(stmts))
	for i, s := range stmts {
		wireStmts[i] = execStatement{SQL: s.SQL, Params: s.Params}
	}
	reqBody, err := json.Marshal(execBatchRequest{DBName: dbName, RequestID: uuid.New().String(), Statements: wireStmts})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal exec_batch request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), GatewayTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", c.gatewayURL+"/exec_batch", bytes.NewReader(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create exec_batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read exec_batch response: %w", err)
	}

	var parsed execBatchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse exec_batch response: %w", err)
	}
	if parsed.Error != "" {
		return 0, fmt.Errorf("%s", parsed.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("exec_batch failed with status %d", resp.StatusCode)
	}
	return parsed.RowsAffected, nil
}
