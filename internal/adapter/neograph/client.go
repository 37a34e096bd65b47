// Package neograph implements the graph store port over the Neo4j
// transactional HTTP endpoint.
package neograph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/askadmit/askadmit/internal/config"
	"github.com/askadmit/askadmit/internal/domain/graph"
	"github.com/askadmit/askadmit/internal/port/graphstore"
)

// Client talks to a Neo4j server over its transactional HTTP API.
type Client struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
}

// New creates a graph store client from config.
func New(cfg config.Graph) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		database: cfg.Database,
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type txRequest struct {
	Statements []txStatement `json:"statements"`
}

type txStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type txResponse struct {
	Results []struct {
		Columns []string `json:"columns"`
		Data    []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute runs a single auto-committed query and returns the rows keyed by
// return alias. Query rejections surface as *graphstore.SyntaxError with the
// server's message intact for use in repair prompts.
func (c *Client) Execute(ctx context.Context, query string, params map[string]any) ([]graph.Record, error) {
	body, err := json.Marshal(txRequest{
		Statements: []txStatement{{Statement: query, Parameters: params}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	url := fmt.Sprintf("%s/db/%s/tx/commit", c.baseURL, c.database)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("graph API error %d: %s", resp.StatusCode, string(data))
	}

	var parsed txResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(parsed.Errors) > 0 {
		e := parsed.Errors[0]
		if isStatementError(e.Code) {
			return nil, &graphstore.SyntaxError{Code: e.Code, Message: e.Message}
		}
		return nil, fmt.Errorf("graph error %s: %s", e.Code, e.Message)
	}

	if len(parsed.Results) == 0 {
		return nil, nil
	}

	result := parsed.Results[0]
	records := make([]graph.Record, 0, len(result.Data))
	for _, d := range result.Data {
		rec := make(graph.Record, len(result.Columns))
		for i, col := range result.Columns {
			if i < len(d.Row) {
				rec[col] = d.Row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Ping checks connectivity by running a trivial query.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Execute(ctx, "RETURN 1 AS ok", nil)
	return err
}

// isStatementError reports whether the Neo4j status code describes a problem
// with the query text itself rather than the server or the data.
func isStatementError(code string) bool {
	return strings.HasPrefix(code, "Neo.ClientError.Statement.") ||
		strings.HasPrefix(code, "Neo.ClientError.Schema.")
}
