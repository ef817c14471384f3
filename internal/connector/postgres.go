package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

type postgresConfig struct {
	DSN       string `mapstructure:"dsn"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Database  string `mapstructure:"database"`
	User      string `mapstructure:"user"`
	Password  string `mapstructure:"password"`
	SSLMode   string `mapstructure:"sslmode"`
	BatchSize int    `mapstructure:"batch_size"`
}

// Postgres reads tables or queries from a PostgreSQL server via pgx.
// Incremental reads filter on a monotonically increasing cursor column.
type Postgres struct {
	cfg    postgresConfig
	cursor string
}

var _ Connector = (*Postgres)(nil)

func NewPostgres() *Postgres { return &Postgres{} }

func (p *Postgres) Kind() string { return "postgres" }

func (p *Postgres) Configure(params map[string]any) []string {
	var errs []string
	if err := mapstructure.WeakDecode(params, &p.cfg); err != nil {
		return []string{err.Error()}
	}
	if p.cfg.DSN == "" && p.cfg.Host == "" {
		errs = append(errs, "postgres: either 'dsn' or 'host' is required")
	}
	if p.cfg.DSN == "" && p.cfg.Database == "" {
		errs = append(errs, "postgres: required parameter 'database' is missing")
	}
	return errs
}

func (p *Postgres) SupportsIncremental() bool { return true }

func (p *Postgres) connString() string {
	if p.cfg.DSN != "" {
		return p.cfg.DSN
	}
	port := p.cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.cfg.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.cfg.Host, port, p.cfg.Database, p.cfg.User, p.cfg.Password, sslmode)
}

func (p *Postgres) Read(ctx context.Context, object string) (ChunkIterator, error) {
	query := fmt.Sprintf("SELECT * FROM %s", pgx.Identifier{object}.Sanitize())
	return p.runQuery(ctx, query, nil, "")
}

func (p *Postgres) ReadIncremental(ctx context.Context, object, cursorField, cursorValue string, batchSize int) (ChunkIterator, error) {
	ident := pgx.Identifier{object}.Sanitize()
	field := pgx.Identifier{cursorField}.Sanitize()
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", ident, field)
	var args []any
	if cursorValue != "" {
		query = fmt.Sprintf("SELECT * FROM %s WHERE %s > $1 ORDER BY %s", ident, field, field)
		args = append(args, cursorValue)
	}
	if batchSize > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, batchSize)
	}
	return p.runQuery(ctx, query, args, cursorField)
}

func (p *Postgres) runQuery(ctx context.Context, query string, args []any, cursorField string) (ChunkIterator, error) {
	conn, err := pgx.Connect(ctx, p.connString())
	if err != nil {
		return nil, p.wrap("connect", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, p.wrap("query", err)
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	columns := make([]string, len(descriptions))
	cursorIdx := -1
	for i, desc := range descriptions {
		columns[i] = desc.Name
		if cursorField != "" && desc.Name == cursorField {
			cursorIdx = i
		}
	}

	var collected [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, p.wrap("scan", err)
		}
		if cursorIdx >= 0 {
			p.trackCursor(values[cursorIdx])
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap("read", err)
	}

	return newSliceIterator(&DataChunk{Columns: columns, Rows: collected}), nil
}

func (p *Postgres) CursorValue() string { return p.cursor }

func (p *Postgres) trackCursor(val any) {
	formatted := formatCursor(val)
	if CursorAfter(formatted, p.cursor) {
		p.cursor = formatted
	}
}

// formatCursor renders cursor candidates; timestamp-like values use the
// watermark format YYYY-MM-DD HH:MM:SS.
func formatCursor(val any) string {
	switch v := val.(type) {
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// wrap classifies errors: timeouts, connection failures and deadlocks
// are transient and retried; everything else propagates immediately.
func (p *Postgres) wrap(op string, err error) error {
	return &core.ConnectorError{
		Connector: "postgres",
		Op:        op,
		Err:       err,
		Transient: isTransientPG(err),
	}
}

func isTransientPG(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"53300", // too_many_connections
			"57P03": // cannot_connect_now
			return true
		}
		// Class 08: connection exceptions.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return pgconn.SafeToRetry(err)
}
