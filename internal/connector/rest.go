package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/go-viper/mapstructure/v2"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

type restConfig struct {
	URL        string            `mapstructure:"url"`
	Method     string            `mapstructure:"method"`
	Headers    map[string]string `mapstructure:"headers"`
	AuthToken  string            `mapstructure:"auth_token"`
	DataPath   string            `mapstructure:"data_path"`
	TimeoutSec int               `mapstructure:"timeout_seconds"`
}

// REST reads JSON row sets from an HTTP endpoint. The response is
// expected to be an array of flat objects, optionally nested under
// data_path. Incremental reads pass the cursor as a query parameter.
type REST struct {
	cfg    restConfig
	cursor string
}

var _ Connector = (*REST)(nil)

func NewREST() *REST { return &REST{} }

func (r *REST) Kind() string { return "rest" }

func (r *REST) Configure(params map[string]any) []string {
	var errs []string
	if err := mapstructure.WeakDecode(params, &r.cfg); err != nil {
		return []string{err.Error()}
	}
	if r.cfg.URL == "" {
		errs = append(errs, "rest: required parameter 'url' is missing")
	}
	return errs
}

func (r *REST) SupportsIncremental() bool { return true }

func (r *REST) newClient() *resty.Client {
	client := resty.New()
	if r.cfg.TimeoutSec > 0 {
		client.SetTimeout(time.Duration(r.cfg.TimeoutSec) * time.Second)
	}
	for key, val := range r.cfg.Headers {
		client.SetHeader(key, val)
	}
	if r.cfg.AuthToken != "" {
		client.SetAuthToken(r.cfg.AuthToken)
	}
	return client
}

func (r *REST) Read(ctx context.Context, object string) (ChunkIterator, error) {
	return r.fetch(ctx, object, nil, "")
}

func (r *REST) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string, batchSize int) (ChunkIterator, error) {
	params := map[string]string{}
	if cursorValue != "" {
		params[cursorField+"_after"] = cursorValue
	}
	if batchSize > 0 {
		params["limit"] = fmt.Sprintf("%d", batchSize)
	}
	return r.fetch(ctx, object, params, cursorField)
}

func (r *REST) fetch(ctx context.Context, object string, params map[string]string, cursorField string) (ChunkIterator, error) {
	url := r.cfg.URL
	if object != "" && !strings.Contains(url, object) {
		url = strings.TrimSuffix(url, "/") + "/" + object
	}

	var payload any
	request := r.newClient().R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&payload)

	resp, err := request.Get(url)
	if err != nil {
		return nil, r.wrap("get", err)
	}
	if resp.IsError() {
		return nil, &core.ConnectorError{
			Connector: "rest", Op: "get",
			Err:       fmt.Errorf("HTTP %d from %s", resp.StatusCode(), url),
			Transient: resp.StatusCode() >= 500 || resp.StatusCode() == 429,
		}
	}

	records, err := r.extractRecords(payload)
	if err != nil {
		return nil, err
	}
	chunk := recordsToChunk(records)
	if cursorField != "" {
		r.trackCursor(chunk, cursorField)
	}
	return newSliceIterator(chunk), nil
}

func (r *REST) extractRecords(payload any) ([]map[string]any, error) {
	if r.cfg.DataPath != "" {
		for _, part := range strings.Split(r.cfg.DataPath, ".") {
			obj, ok := payload.(map[string]any)
			if !ok {
				return nil, &core.ConnectorError{
					Connector: "rest", Op: "decode",
					Err: fmt.Errorf("data_path %q does not match response shape", r.cfg.DataPath),
				}
			}
			payload = obj[part]
		}
	}

	list, ok := payload.([]any)
	if !ok {
		return nil, &core.ConnectorError{
			Connector: "rest", Op: "decode",
			Err: fmt.Errorf("expected a JSON array of records, got %T", payload),
		}
	}

	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, &core.ConnectorError{
				Connector: "rest", Op: "decode",
				Err: fmt.Errorf("expected objects in response array, got %T", item),
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *REST) trackCursor(chunk *DataChunk, cursorField string) {
	idx := -1
	for i, col := range chunk.Columns {
		if col == cursorField {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	for _, row := range chunk.Rows {
		formatted := formatCursor(row[idx])
		if CursorAfter(formatted, r.cursor) {
			r.cursor = formatted
		}
	}
}

func (r *REST) CursorValue() string { return r.cursor }

func (r *REST) wrap(op string, err error) error {
	var netErr net.Error
	transient := errors.As(err, &netErr) && netErr.Timeout()
	return &core.ConnectorError{Connector: "rest", Op: op, Err: err, Transient: transient}
}

// recordsToChunk flattens JSON records into a columnar-ordered chunk.
// Columns are sorted by name so the order is stable across runs.
func recordsToChunk(records []map[string]any) *DataChunk {
	var columns []string
	index := make(map[string]int)
	for _, record := range records {
		for key := range record {
			if _, ok := index[key]; !ok {
				index[key] = -1
				columns = append(columns, key)
			}
		}
	}
	sort.Strings(columns)
	for i, col := range columns {
		index[col] = i
	}

	rows := make([][]any, len(records))
	for i, record := range records {
		row := make([]any, len(columns))
		for key, val := range record {
			row[index[key]] = val
		}
		rows[i] = row
	}
	return &DataChunk{Columns: columns, Rows: rows}
}
