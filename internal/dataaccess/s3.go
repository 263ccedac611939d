package dataaccess

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"

	"github.com/nemanja-m/gotransform/pkg/core"
)

const parquetContentType = "application/vnd.apache.parquet"

type S3Config struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	Token             string
	Bucket            string
	Region            string
	Secure            bool
	RequestsPerSecond float64
}

// S3 reads and writes objects in one bucket under input and output prefixes.
type S3 struct {
	client       *minio.Client
	bucket       string
	inputPrefix  string
	outputPrefix string
	limiter      *rate.Limiter
	opts         Options
}

func NewS3(cfg S3Config, inputPrefix, outputPrefix string, opts Options) (*S3, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, cfg.Token),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &S3{
		client:       client,
		bucket:       cfg.Bucket,
		inputPrefix:  normalizePrefix(inputPrefix),
		outputPrefix: normalizePrefix(outputPrefix),
		limiter:      rate.NewLimiter(limit, max(1, int(cfg.RequestsPerSecond))),
		opts:         opts,
	}, nil
}

func normalizePrefix(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func (s *S3) Describe() string {
	return fmt.Sprintf("s3 bucket=%s input=%s output=%s", s.bucket, s.inputPrefix, s.outputPrefix)
}

func (s *S3) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *S3) list(ctx context.Context, prefix string) ([]minio.ObjectInfo, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	var objects []minio.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		objects = append(objects, object)
	}
	return objects, nil
}

func (s *S3) ListFiles(ctx context.Context) ([]core.FileReference, error) {
	objects, err := s.list(ctx, s.inputPrefix)
	if err != nil {
		return nil, readError(err)
	}
	files := make([]core.FileReference, 0, len(objects))
	for _, o := range objects {
		rel := strings.TrimPrefix(o.Key, s.inputPrefix)
		if !s.opts.matches(rel) {
			continue
		}
		files = append(files, core.FileReference{Path: rel, Size: o.Size})
	}
	return s.opts.finalize(files), nil
}

func (s *S3) ReadTable(ctx context.Context, file core.FileReference) (*core.Table, error) {
	if err := s.wait(ctx); err != nil {
		return nil, readError(err)
	}
	key := s.inputPrefix + file.Path
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, readError(fmt.Errorf("failed to get object %s: %w", key, err))
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, readError(fmt.Errorf("failed to stat object %s: %w", key, err))
	}
	t, err := DecodeParquet(obj, stat.Size)
	if err != nil {
		return nil, readError(fmt.Errorf("%s: %w", key, err))
	}
	return t, nil
}

func (s *S3) put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (s *S3) WriteTable(ctx context.Context, relPath string, t *core.Table) (int64, error) {
	var buf bytes.Buffer
	if err := EncodeParquet(&buf, t); err != nil {
		return 0, core.NewError(core.KindWrite, fmt.Errorf("%s: %w", relPath, err))
	}
	if err := s.put(ctx, s.outputPrefix+relPath, buf.Bytes(), parquetContentType); err != nil {
		return 0, writeError(err)
	}
	return int64(buf.Len()), nil
}

func (s *S3) ListOutputs(ctx context.Context) ([]string, error) {
	objects, err := s.list(ctx, s.outputPrefix)
	if err != nil {
		return nil, readError(err)
	}
	outputs := make([]string, 0, len(objects))
	for _, o := range objects {
		if path.Ext(o.Key) == ".parquet" {
			outputs = append(outputs, strings.TrimPrefix(o.Key, s.outputPrefix))
		}
	}
	return outputs, nil
}

func (s *S3) WriteReport(ctx context.Context, data []byte) error {
	return writeError(s.put(ctx, s.outputPrefix+ReportName, data, "application/json"))
}
