package corrosion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Statement is a parameterized SQL statement.
type Statement struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

// ExecResult is the result of a single statement in a transaction.
type ExecResult struct {
	RowsAffected uint    `json:"rows_affected"`
	Error        *string `json:"error"`
}

type execResponse struct {
	Results []ExecResult `json:"results"`
}

// ExecContext executes a single write statement and returns its result.
// Writes are expected to be idempotent on their natural key (check_id,
// region, scheduled_at_micros for results; node_id for heartbeats; id for
// checks) so a retried delivery after a transient failure never duplicates.
func (c *Client) ExecContext(ctx context.Context, query string, args ...any) (*ExecResult, error) {
	body, err := json.Marshal([]Statement{{Query: query, Params: args}})
	if err != nil {
		return nil, fmt.Errorf("marshal statement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath("/v1/transactions").String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create exec request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, fmt.Errorf("exec: unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var out execResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode exec response: %w", err)
	}
	if len(out.Results) == 0 {
		return nil, fmt.Errorf("exec %q: no results", query)
	}
	if out.Results[0].Error != nil {
		return nil, errors.New(*out.Results[0].Error)
	}
	return &out.Results[0], nil
}

// RowEvent is one data row: [rowid, [values...]].
type rowEvent struct {
	RowID  uint64
	Values []json.RawMessage
}

func (re *rowEvent) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid row event: %w", err)
	}
	if err := json.Unmarshal(raw[0], &re.RowID); err != nil {
		return fmt.Errorf("invalid row event rowid: %w", err)
	}
	return json.Unmarshal(raw[1], &re.Values)
}

type queryEvent struct {
	Columns []string  `json:"columns"`
	Row     *rowEvent `json:"row"`
	EOQ     *struct{} `json:"eoq"`
	Error   *string   `json:"error"`
}

// QueryContext executes a SELECT and returns all rows materialized (result
// sets here are bounded by time-bucket partition pruning upstream, so
// buffering the full response is acceptable).
func (c *Client) QueryContext(ctx context.Context, query string, args ...any) ([][]json.RawMessage, []string, error) {
	body, err := json.Marshal(Statement{Query: query, Params: args})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL.JoinPath("/v1/queries").String(), bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, nil, fmt.Errorf("query: unexpected status %d: %s", resp.StatusCode, respBody)
	}

	dec := json.NewDecoder(resp.Body)
	var columns []string
	var rows [][]json.RawMessage
	for {
		var e queryEvent
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("decode query event: %w", err)
		}
		switch {
		case e.Columns != nil:
			columns = e.Columns
		case e.Row != nil:
			rows = append(rows, e.Row.Values)
		case e.Error != nil:
			return nil, nil, errors.New(*e.Error)
		case e.EOQ != nil:
			return rows, columns, nil
		}
	}
	return rows, columns, nil
}
