package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tobennaogbu/kobocart-backend/internal/analytics/types"
	pkgbigquery "github.com/tobennaogbu/kobocart-backend/pkg/bigquery"
)

const (
	defaultBatchSize      = 1
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// Config controls the revenue writer behavior.
type Config struct {
	RevenueTable string
	BatchSize    int
	RetryPolicy  RetryPolicy
}

// RetryPolicy bounds how hard the writer pushes a failing insert.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultMaximumBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = p.InitialBackoff
	}
	return p
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter streams revenue rows into BigQuery. Rows carry the event id
// as their streaming insert id, so a replayed event dedups on the server side
// even if the idempotency cache missed it.
type BigQueryWriter struct {
	client        tableInserter
	revenueTable  string
	revenueSchema cbigquery.Schema
	batchSize     int
	retry         RetryPolicy

	revenueBuffer []types.RevenueRow
}

// New creates a BigQueryWriter backed by a shared client.
func New(client *pkgbigquery.Client, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.RevenueTable)
	if table == "" {
		return nil, errors.New("revenue table is required")
	}

	schema, err := cbigquery.InferSchema(types.RevenueRow{})
	if err != nil {
		return nil, fmt.Errorf("infer revenue row schema: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &BigQueryWriter{
		client:        client,
		revenueTable:  table,
		revenueSchema: schema,
		batchSize:     batchSize,
		retry:         cfg.RetryPolicy.withDefaults(),
	}, nil
}

// InsertRevenue buffers one revenue row, flushing once the batch fills.
func (w *BigQueryWriter) InsertRevenue(ctx context.Context, row types.RevenueRow) error {
	w.revenueBuffer = append(w.revenueBuffer, row)
	if len(w.revenueBuffer) >= w.batchSize {
		return w.flushRevenue(ctx)
	}
	return nil
}

// Flush writes any buffered rows immediately.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	return w.flushRevenue(ctx)
}

func (w *BigQueryWriter) flushRevenue(ctx context.Context) error {
	if len(w.revenueBuffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.revenueBuffer))
	for i := range w.revenueBuffer {
		rows[i] = &cbigquery.StructSaver{
			Schema:   w.revenueSchema,
			InsertID: w.revenueBuffer[i].EventID,
			Struct:   &w.revenueBuffer[i],
		}
	}

	if err := w.insertWithRetry(ctx, w.revenueTable, rows); err != nil {
		return err
	}
	w.revenueBuffer = w.revenueBuffer[:0]
	return nil
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	backoff := retry.WithCappedDuration(w.retry.MaximumBackoff, retry.NewExponential(w.retry.InitialBackoff))
	backoff = retry.WithMaxRetries(uint64(w.retry.MaxAttempts-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}
		wrapped := fmt.Errorf("insert %s rows: %w", table, err)
		if retryableInsertError(err) {
			return retry.RetryableError(wrapped)
		}
		return wrapped
	})
}

// retryableInsertError reports whether a streaming insert failure is worth
// another attempt. Aggregate errors retry only when every member does: one
// permanently bad row would otherwise loop forever.
func retryableInsertError(err error) bool {
	if err == nil {
		return false
	}

	// MultiError and PutMultiError come back from Put by value, so the As
	// targets must be the value types.
	var multi cbigquery.MultiError
	if errors.As(err, &multi) {
		return allRetryable(len(multi), func(i int) bool { return retryableInsertError(multi[i]) })
	}
	var pme cbigquery.PutMultiError
	if errors.As(err, &pme) {
		return allRetryable(len(pme), func(i int) bool { return retryableInsertError(pme[i].Errors) })
	}
	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil {
			return false
		}
		return allRetryable(len(rowErr.Errors), func(i int) bool { return retryableInsertError(rowErr.Errors[i]) })
	}

	var bqErr *cbigquery.Error
	if errors.As(err, &bqErr) && bqErr != nil {
		switch bqErr.Reason {
		case "backendError", "rateLimitExceeded", "internalError":
			return true
		}
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusRequestTimeout,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		st := statusErr.GRPCStatus()
		if st == nil {
			return false
		}
		switch st.Code() {
		case codes.Aborted,
			codes.DeadlineExceeded,
			codes.Internal,
			codes.ResourceExhausted,
			codes.Unavailable:
			return true
		}
		return false
	}

	return false
}

func allRetryable(n int, at func(int) bool) bool {
	if n == 0 {
		return false
	}
	for i := 0; i < n; i++ {
		if !at(i) {
			return false
		}
	}
	return true
}

// EncodeJSON converts a payload into the NullJSON shape BigQuery JSON
// columns take. Nil and empty payloads encode as SQL NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		return rawJSON(value), nil
	case []byte:
		return rawJSON(value), nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return rawJSON(marshaled), nil
}

func rawJSON(value []byte) cbigquery.NullJSON {
	if len(value) == 0 {
		return cbigquery.NullJSON{}
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}
}
