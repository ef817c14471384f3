package connector

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

type s3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseSSL    *bool  `mapstructure:"use_ssl"`
}

// S3 reads and writes CSV objects in an S3-compatible store through the
// MinIO client.
type S3 struct {
	cfg    s3Config
	cursor string
}

var _ Connector = (*S3)(nil)
var _ Writer = (*S3)(nil)

func NewS3() *S3 { return &S3{} }

func (s *S3) Kind() string { return "s3" }

func (s *S3) Configure(params map[string]any) []string {
	var errs []string
	if err := mapstructure.WeakDecode(params, &s.cfg); err != nil {
		return []string{err.Error()}
	}
	if s.cfg.Endpoint == "" {
		errs = append(errs, "s3: required parameter 'endpoint' is missing")
	}
	if s.cfg.Bucket == "" {
		errs = append(errs, "s3: required parameter 'bucket' is missing")
	}
	return errs
}

func (s *S3) SupportsIncremental() bool { return false }

func (s *S3) client() (*minio.Client, error) {
	useSSL := s.cfg.UseSSL == nil || *s.cfg.UseSSL
	return minio.New(s.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		Secure: useSSL,
		Region: s.cfg.Region,
	})
}

func (s *S3) Read(ctx context.Context, object string) (ChunkIterator, error) {
	client, err := s.client()
	if err != nil {
		return nil, s.wrap("connect", err)
	}

	obj, err := client.GetObject(ctx, s.cfg.Bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap("get_object", err)
	}
	defer obj.Close()

	records, err := csv.NewReader(obj).ReadAll()
	if err != nil {
		return nil, s.wrap("read", err)
	}
	if len(records) == 0 {
		return newSliceIterator(&DataChunk{}), nil
	}

	columns := records[0]
	rows := make([][]any, len(records)-1)
	for i, record := range records[1:] {
		row := make([]any, len(record))
		for j, cell := range record {
			row[j] = inferCell(cell)
		}
		rows[i] = row
	}
	return newSliceIterator(&DataChunk{Columns: columns, Rows: rows}), nil
}

func (s *S3) ReadIncremental(context.Context, string, string, string, int) (ChunkIterator, error) {
	return nil, &core.ConnectorError{
		Connector: "s3", Op: "read_incremental",
		Err: fmt.Errorf("incremental reads are not supported"),
	}
}

func (s *S3) CursorValue() string { return s.cursor }

// Write uploads the chunk as a CSV object. The destination may be
// either an object key or an s3://bucket/key URI.
func (s *S3) Write(ctx context.Context, destination string, chunk *DataChunk, _ map[string]any) error {
	client, err := s.client()
	if err != nil {
		return s.wrap("connect", err)
	}

	bucket, key := s.cfg.Bucket, destination
	if strings.HasPrefix(destination, "s3://") {
		trimmed := strings.TrimPrefix(destination, "s3://")
		if slash := strings.IndexByte(trimmed, '/'); slash > 0 {
			bucket, key = trimmed[:slash], trimmed[slash+1:]
		}
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if chunk != nil {
		if err := writer.Write(chunk.Columns); err != nil {
			return s.wrap("write", err)
		}
		for _, row := range chunk.Rows {
			record := make([]string, len(row))
			for i, cell := range row {
				record[i] = cellString(cell)
			}
			if err := writer.Write(record); err != nil {
				return s.wrap("write", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return s.wrap("write", err)
	}

	_, err = client.PutObject(ctx, bucket, key, &buf, int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return s.wrap("put_object", err)
	}
	return nil
}

func (s *S3) wrap(op string, err error) error {
	return &core.ConnectorError{
		Connector: "s3",
		Op:        op,
		Err:       err,
		Transient: isTransientS3(err),
	}
}

func isTransientS3(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable":
		return true
	}
	return false
}
