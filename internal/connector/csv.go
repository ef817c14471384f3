package connector

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// csvConfig holds the parameters of a CSV connector.
type csvConfig struct {
	Path      string `mapstructure:"path"`
	Delimiter string `mapstructure:"delimiter"`
	HasHeader *bool  `mapstructure:"has_header"`
}

// CSV reads and writes local delimiter-separated files. Values are
// parsed into int/float/bool where unambiguous so loads keep numeric
// affinity.
type CSV struct {
	cfg    csvConfig
	cursor string
}

var _ Connector = (*CSV)(nil)
var _ Writer = (*CSV)(nil)
var _ FileBacked = (*CSV)(nil)

func NewCSV() *CSV { return &CSV{} }

func (c *CSV) Kind() string { return "csv" }

func (c *CSV) Configure(params map[string]any) []string {
	var errs []string
	if err := mapstructure.Decode(params, &c.cfg); err != nil {
		return []string{err.Error()}
	}
	if c.cfg.Path == "" {
		errs = append(errs, "csv: required parameter 'path' is missing")
	}
	if len(c.cfg.Delimiter) > 1 {
		errs = append(errs, "csv: 'delimiter' must be a single character")
	}
	return errs
}

func (c *CSV) SupportsIncremental() bool { return false }

// FilePath exposes the backing file for the engine's COPY fast path.
func (c *CSV) FilePath() string { return c.cfg.Path }

func (c *CSV) Read(ctx context.Context, object string) (ChunkIterator, error) {
	path := c.cfg.Path
	if path == "" {
		path = object
	}
	chunk, err := c.readFile(path)
	if err != nil {
		return nil, err
	}
	return newSliceIterator(chunk), nil
}

func (c *CSV) ReadIncremental(context.Context, string, string, string, int) (ChunkIterator, error) {
	return nil, &core.ConnectorError{
		Connector: "csv", Op: "read_incremental",
		Err: fmt.Errorf("incremental reads are not supported"),
	}
}

func (c *CSV) CursorValue() string { return c.cursor }

func (c *CSV) readFile(path string) (*DataChunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &core.ConnectorError{Connector: "csv", Op: "read", Err: err}
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if c.cfg.Delimiter != "" {
		reader.Comma = rune(c.cfg.Delimiter[0])
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &core.ConnectorError{Connector: "csv", Op: "read", Err: err}
	}
	if len(records) == 0 {
		return &DataChunk{}, nil
	}

	hasHeader := c.cfg.HasHeader == nil || *c.cfg.HasHeader
	var columns []string
	var body [][]string
	if hasHeader {
		columns = records[0]
		body = records[1:]
	} else {
		columns = make([]string, len(records[0]))
		for i := range columns {
			columns[i] = fmt.Sprintf("column%d", i)
		}
		body = records
	}

	rows := make([][]any, len(body))
	for i, record := range body {
		row := make([]any, len(record))
		for j, cell := range record {
			row[j] = inferCell(cell)
		}
		rows[i] = row
	}
	return &DataChunk{Columns: columns, Rows: rows}, nil
}

// Write writes the chunk to the destination path as CSV with a header.
func (c *CSV) Write(_ context.Context, destination string, chunk *DataChunk, _ map[string]any) error {
	file, err := os.Create(destination)
	if err != nil {
		return &core.ConnectorError{Connector: "csv", Op: "write", Err: err}
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if chunk == nil {
		writer.Flush()
		return writer.Error()
	}
	if err := writer.Write(chunk.Columns); err != nil {
		return &core.ConnectorError{Connector: "csv", Op: "write", Err: err}
	}
	for _, row := range chunk.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = cellString(cell)
		}
		if err := writer.Write(record); err != nil {
			return &core.ConnectorError{Connector: "csv", Op: "write", Err: err}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return &core.ConnectorError{Connector: "csv", Op: "write", Err: err}
	}
	return nil
}

// inferCell parses ints, floats and booleans; anything else stays a
// string.
func inferCell(cell string) any {
	if cell == "" {
		return nil
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	switch strings.ToLower(cell) {
	case "true":
		return true
	case "false":
		return false
	}
	return cell
}

func cellString(cell any) string {
	if cell == nil {
		return ""
	}
	switch v := cell.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
