package driven

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/alorle/catalog-sync/internal/catalog"
	"github.com/alorle/catalog-sync/internal/metrics"
)

const (
	baserowBreakerName = "baserow"
	maxErrorBodySize   = 64 * 1024
)

// BaserowConfig configures the Baserow adapter.
type BaserowConfig struct {
	BaseURL string
	Token   string
	// Tables binds each logical table to its numeric Baserow table id.
	// Missing or zero ids mean the table is not configured.
	Tables map[catalog.TableKind]int

	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	RetryAttempts uint
	RetryDelay    time.Duration

	BreakerFailureThreshold uint32
	BreakerTimeout          time.Duration
}

// BaserowHTTPAdapter implements the RowStore port against the Baserow REST API.
// Every call is rate limited and guarded by a circuit breaker; listings are
// retried with backoff.
type BaserowHTTPAdapter struct {
	baseURL       string
	token         string
	tables        map[catalog.TableKind]int
	httpClient    *http.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker[[]byte]
	retryAttempts uint
	retryDelay    time.Duration
	logger        *slog.Logger
}

// NewBaserowHTTPAdapter creates a new HTTP adapter for Baserow.
// cfg.BaseURL should point to the Baserow instance (e.g., https://api.baserow.io).
func NewBaserowHTTPAdapter(cfg BaserowConfig, logger *slog.Logger) *BaserowHTTPAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 250 * time.Millisecond
	}
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	tables := make(map[catalog.TableKind]int, len(cfg.Tables))
	for k, v := range cfg.Tables {
		tables[k] = v
	}

	a := &BaserowHTTPAdapter{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		tables:        tables,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        logger,
	}

	threshold := cfg.BreakerFailureThreshold
	metrics.SetCircuitBreakerState(baserowBreakerName, gobreaker.StateClosed.String())

	a.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        baserowBreakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			metrics.SetCircuitBreakerState(name, to.String())
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
		},
		// The remote rejecting a request says nothing about its health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var remoteErr *catalog.RemoteError
			return errors.As(err, &remoteErr) && remoteErr.IsClientError()
		},
	})

	return a
}

// rowsPage mirrors Baserow's paginated list response.
type rowsPage struct {
	Count   int              `json:"count"`
	Next    *string          `json:"next"`
	Results []map[string]any `json:"results"`
}

// errorBody mirrors Baserow's error response.
type errorBody struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// List returns one page of rows of table.
func (a *BaserowHTTPAdapter) List(ctx context.Context, table catalog.TableKind, opts catalog.ListOptions) (catalog.Page, error) {
	tableID, err := a.tableID(table)
	if err != nil {
		return catalog.Page{}, err
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.Size
	if size < 1 {
		size = 100
	}

	params := url.Values{}
	params.Set("user_field_names", "true")
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(size))
	for _, f := range opts.Filters {
		op := f.Op
		if op == "" {
			op = catalog.FilterEqual
		}
		params.Set(fmt.Sprintf("filter__%s__%s", f.Field, op), f.Value)
	}

	path := fmt.Sprintf("/api/database/rows/table/%d/", tableID)

	return retry.DoWithData(
		func() (catalog.Page, error) {
			body, err := a.do(ctx, "list", http.MethodGet, path, params, nil)
			if err != nil {
				return catalog.Page{}, err
			}

			var resp rowsPage
			if err := json.Unmarshal(body, &resp); err != nil {
				return catalog.Page{}, retry.Unrecoverable(fmt.Errorf("failed to decode rows page: %w", err))
			}

			rows := make([]catalog.Row, 0, len(resp.Results))
			for _, raw := range resp.Results {
				row, err := toRow(raw)
				if err != nil {
					return catalog.Page{}, retry.Unrecoverable(err)
				}
				rows = append(rows, row)
			}

			return catalog.Page{Rows: rows, Count: resp.Count, HasNext: resp.Next != nil}, nil
		},
		retry.Context(ctx),
		retry.Attempts(a.retryAttempts),
		retry.Delay(a.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("retrying row listing", "table", table, "page", page, "attempt", n+1, "error", err)
		}),
	)
}

// Create inserts a row into table.
func (a *BaserowHTTPAdapter) Create(ctx context.Context, table catalog.TableKind, fields map[string]any) (catalog.Row, error) {
	tableID, err := a.tableID(table)
	if err != nil {
		return catalog.Row{}, err
	}

	path := fmt.Sprintf("/api/database/rows/table/%d/", tableID)
	row, err := a.writeRow(ctx, "create", http.MethodPost, path, fields)
	if err != nil {
		return catalog.Row{}, err
	}

	a.logger.Debug("row created", "table", table, "row_id", row.ID)
	return row, nil
}

// Update applies a partial update to a row of table.
func (a *BaserowHTTPAdapter) Update(ctx context.Context, table catalog.TableKind, id int, fields map[string]any) (catalog.Row, error) {
	tableID, err := a.tableID(table)
	if err != nil {
		return catalog.Row{}, err
	}

	path := fmt.Sprintf("/api/database/rows/table/%d/%d/", tableID, id)
	row, err := a.writeRow(ctx, "update", http.MethodPatch, path, fields)
	if err != nil {
		return catalog.Row{}, notFound(err)
	}

	a.logger.Debug("row updated", "table", table, "row_id", id)
	return row, nil
}

// Delete removes a row of table.
func (a *BaserowHTTPAdapter) Delete(ctx context.Context, table catalog.TableKind, id int) error {
	tableID, err := a.tableID(table)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/api/database/rows/table/%d/%d/", tableID, id)
	if _, err := a.do(ctx, "delete", http.MethodDelete, path, nil, nil); err != nil {
		return notFound(err)
	}

	a.logger.Debug("row deleted", "table", table, "row_id", id)
	return nil
}

// Configured reports whether table has a Baserow table id.
func (a *BaserowHTTPAdapter) Configured(table catalog.TableKind) bool {
	return a.tables[table] > 0
}

// Ping verifies that the configured token is accepted by Baserow.
func (a *BaserowHTTPAdapter) Ping(ctx context.Context) error {
	_, err := a.do(ctx, "ping", http.MethodGet, "/api/database/tokens/check/", nil, nil)
	return err
}

func (a *BaserowHTTPAdapter) tableID(table catalog.TableKind) (int, error) {
	id := a.tables[table]
	if id <= 0 {
		return 0, fmt.Errorf("%w: %s", catalog.ErrTableNotConfigured, table)
	}
	return id, nil
}

func (a *BaserowHTTPAdapter) writeRow(ctx context.Context, op, method, path string, fields map[string]any) (catalog.Row, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return catalog.Row{}, fmt.Errorf("failed to encode row: %w", err)
	}

	params := url.Values{}
	params.Set("user_field_names", "true")

	body, err := a.do(ctx, op, method, path, params, payload)
	if err != nil {
		return catalog.Row{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return catalog.Row{}, fmt.Errorf("failed to decode row: %w", err)
	}
	return toRow(raw)
}

// do sends one request through the rate limiter and the circuit breaker and
// returns the response body of a 2xx answer.
func (a *BaserowHTTPAdapter) do(ctx context.Context, op, method, path string, params url.Values, payload []byte) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := a.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	start := time.Now()
	body, err := a.breaker.Execute(func() ([]byte, error) {
		return a.send(ctx, method, reqURL, payload)
	})
	metrics.RecordRemoteRequest(op, resultLabel(err), time.Since(start))

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			a.logger.Warn("row store request rejected by circuit breaker", "operation", op)
			return nil, fmt.Errorf("row store unavailable: %w", err)
		}
		a.logger.Error("row store request failed", "operation", op, "method", method, "path", path, "error", err)
		return nil, err
	}

	return body, nil
}

func (a *BaserowHTTPAdapter) send(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+a.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach row store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &catalog.RemoteError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// errorMessage extracts a readable message from a Baserow error body.
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		return strings.TrimSpace(string(body))
	}

	if len(eb.Detail) == 0 {
		return eb.Error
	}

	var detail string
	if err := json.Unmarshal(eb.Detail, &detail); err != nil {
		detail = string(eb.Detail)
	}
	return eb.Error + ": " + detail
}

func toRow(raw map[string]any) (catalog.Row, error) {
	var id int
	switch v := raw["id"].(type) {
	case float64:
		id = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return catalog.Row{}, fmt.Errorf("%w: %v", catalog.ErrMissingID, err)
		}
		id = int(n)
	default:
		return catalog.Row{}, catalog.ErrMissingID
	}

	delete(raw, "id")
	return catalog.Row{ID: id, Fields: raw}, nil
}

func notFound(err error) error {
	var remoteErr *catalog.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", catalog.ErrRowNotFound, err)
	}
	return err
}

// isRetryable reports whether a failed listing may succeed on a new attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, catalog.ErrTableNotConfigured) {
		return false
	}
	var remoteErr *catalog.RemoteError
	if errors.As(err, &remoteErr) {
		return !remoteErr.IsClientError() || remoteErr.Status == http.StatusTooManyRequests
	}
	return true
}

func resultLabel(err error) string {
	var remoteErr *catalog.RemoteError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	case errors.As(err, &remoteErr) && remoteErr.IsClientError():
		return "client_error"
	default:
		return "error"
	}
}
